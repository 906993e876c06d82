package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jihoon-dev/portfolio-chat/provider"
)

// Builder is the offline indexer: documents in, embedded index out. Any
// embedding failure aborts the whole run — a partial index would break
// similarity comparison across the corpus.
type Builder struct {
	Provider provider.Provider
	Model    string // embedding model id recorded in the artifact
	Logger   *log.Logger
}

// Build chunks and embeds every document and assembles the index.
func (b *Builder) Build(ctx context.Context, docs []Document) (*Index, error) {
	var chunks []Chunk
	for _, doc := range docs {
		dcs := ChunkDocument(doc)
		if len(dcs) == 0 {
			continue
		}
		texts := make([]string, len(dcs))
		for i, c := range dcs {
			texts[i] = c.Text
		}
		vecs, err := b.Provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		if len(vecs) != len(dcs) {
			return nil, fmt.Errorf("embed document %s: got %d vectors for %d chunks", doc.ID, len(vecs), len(dcs))
		}
		for i := range dcs {
			dcs[i].Vector = vecs[i]
		}
		chunks = append(chunks, dcs...)
		if b.Logger != nil {
			b.Logger.Printf("document %s: %d chunks", doc.ID, len(dcs))
		}
	}
	return &Index{
		Version:        1,
		EmbeddingModel: b.Model,
		CreatedAt:      time.Now().UTC(),
		Chunks:         chunks,
	}, nil
}

// LoadDocuments reads the authored documents file (a JSON array).
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	return docs, nil
}

// WriteIndex serializes the index and replaces the artifact atomically
// (write to a temp file, then rename over the old one).
func WriteIndex(idx *Index, path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
