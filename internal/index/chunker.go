package index

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxChunkChars is the character budget per chunk, counted in runes.
	maxChunkChars = 460
	// chunkOverlap is carried from the tail of each chunk into the next
	// one so context survives the cut points.
	chunkOverlap = 80
)

var (
	blankLine = regexp.MustCompile(`\n\s*\n`)
	spaceRun  = regexp.MustCompile(`\s+`)
)

// splitParagraphs splits on blank-line boundaries and collapses whitespace
// runs inside each paragraph. Splitting happens before normalization so
// the blank-line boundaries are still visible.
func splitParagraphs(text string) []string {
	var paras []string
	for _, p := range blankLine.Split(text, -1) {
		p = strings.TrimSpace(spaceRun.ReplaceAllString(p, " "))
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// SplitChunks splits a document body into chunk texts of at most
// maxChunkChars runes. Paragraphs are merged greedily; whenever a chunk is
// flushed its last chunkOverlap runes seed the next buffer. A paragraph
// that cannot fit on its own is hard-sliced into overlapping windows.
func SplitChunks(text string) []string {
	var chunks []string
	var buf []rune
	fresh := false // buf holds more than the carried overlap

	flush := func() {
		if fresh {
			chunks = append(chunks, string(buf))
			buf = tailRunes(buf, chunkOverlap)
			fresh = false
		}
	}

	for _, p := range splitParagraphs(text) {
		pr := []rune(p)
		if joined := joinRunes(buf, pr); len(joined) <= maxChunkChars {
			buf = joined
			fresh = true
			continue
		}
		flush()
		joined := joinRunes(buf, pr)
		if len(joined) <= maxChunkChars {
			buf = joined
			fresh = true
			continue
		}
		// Too large even after flushing: slice into fixed windows that
		// overlap the previous one by chunkOverlap runes.
		step := maxChunkChars - chunkOverlap
		for start := 0; start < len(joined); start += step {
			end := start + maxChunkChars
			if end >= len(joined) {
				chunks = append(chunks, string(joined[start:]))
				break
			}
			chunks = append(chunks, string(joined[start:end]))
		}
		buf = tailRunes([]rune(chunks[len(chunks)-1]), chunkOverlap)
		fresh = false
	}
	flush()
	return chunks
}

// ChunkDocument derives vector-less chunks from a document. Chunk ids are
// deterministic: {docId}-c{sequence}.
func ChunkDocument(doc Document) []Chunk {
	parts := SplitChunks(doc.Text)
	chunks := make([]Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, Chunk{
			ChunkID:      fmt.Sprintf("%s-c%d", doc.ID, i),
			DocID:        doc.ID,
			Text:         text,
			TokensApprox: approxTokens(text),
			Metadata: ChunkMetadata{
				Title:    doc.Title,
				Section:  doc.Section,
				Tags:     doc.Tags,
				Lang:     doc.Lang,
				Priority: doc.Priority,
			},
		})
	}
	return chunks
}

// approxTokens is ceil(runes/4), minimum 1.
func approxTokens(text string) int {
	n := (utf8.RuneCountInString(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func joinRunes(buf, p []rune) []rune {
	if len(buf) == 0 {
		return p
	}
	out := make([]rune, 0, len(buf)+1+len(p))
	out = append(out, buf...)
	out = append(out, ' ')
	return append(out, p...)
}

func tailRunes(r []rune, n int) []rune {
	if len(r) <= n {
		return append([]rune(nil), r...)
	}
	return append([]rune(nil), r[len(r)-n:]...)
}
