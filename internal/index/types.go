package index

import "time"

// Document is an authored source record. Documents are the input of the
// offline indexer and never appear on the request path.
type Document struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Section  string   `json:"section"` // summary, experience, project, skill, education, contact, policy
	Text     string   `json:"text"`
	Tags     []string `json:"tags"`
	Lang     string   `json:"lang"` // ko|en
	Priority int      `json:"priority"`
}

// ChunkMetadata is a snapshot of the parent document's fields, copied onto
// every chunk so retrieval needs no document lookup.
type ChunkMetadata struct {
	Title    string   `json:"title"`
	Section  string   `json:"section"`
	Tags     []string `json:"tags"`
	Lang     string   `json:"lang"`
	Priority int      `json:"priority"`
}

// Chunk is a bounded slice of a document with its embedding vector.
// Chunks are immutable once written; the index is only ever replaced
// wholesale by re-running the indexer.
type Chunk struct {
	ChunkID      string        `json:"chunkId"`
	DocID        string        `json:"docId"`
	Text         string        `json:"text"`
	TokensApprox int           `json:"tokensApprox"`
	Vector       []float32     `json:"vector"`
	Metadata     ChunkMetadata `json:"metadata"`
}

// Index is the persisted artifact. Every vector in one index comes from
// the same embedding model; similarity comparison assumes a shared space.
type Index struct {
	Version        int       `json:"version"`
	EmbeddingModel string    `json:"embeddingModel"`
	CreatedAt      time.Time `json:"createdAt"`
	Chunks         []Chunk   `json:"chunks"`
}
