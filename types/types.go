package types

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is the atomic retrievable unit: one bounded segment of a source
// document together with its embedding.
type Chunk struct {
	ID         uuid.UUID      `json:"id"`
	SourceName string         `json:"source_name"`
	Title      string         `json:"title"`
	Index      int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ScoredChunk is a chunk returned from similarity search.
// Similarity is 1 - cosine distance to the query embedding.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// IngestResult reports the outcome of replacing one document.
// Success means at least one chunk was stored; per-chunk embedding
// failures are collected in Errors instead of aborting the batch.
type IngestResult struct {
	Success     bool     `json:"success"`
	SourceName  string   `json:"source_name"`
	Title       string   `json:"title"`
	ChunksAdded int      `json:"chunks_added"`
	TotalChunks int      `json:"total_chunks"`
	DeletedOld  int64    `json:"deleted_old"`
	Errors      []string `json:"errors,omitempty"`
}

// DocumentSummary is one source-name group in the document listing.
type DocumentSummary struct {
	SourceName string    `json:"source_name"`
	Title      string    `json:"title"`
	Chunks     int       `json:"chunks"`
	TotalChars int64     `json:"total_chars"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type DocumentPage struct {
	Documents  []DocumentSummary `json:"documents"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PerPage    int               `json:"per_page"`
	TotalPages int               `json:"total_pages"`
}

type Stats struct {
	TotalChunks    int64      `json:"total_chunks"`
	TotalDocuments int64      `json:"total_documents"`
	TotalChars     int64      `json:"total_chars"`
	StorageSize    string     `json:"storage_size"`
	FirstDocument  *time.Time `json:"first_document,omitempty"`
	LastUpdate     *time.Time `json:"last_update,omitempty"`
}

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// Completion is the answer from the completion service, including the
// model identifier the gateway actually routed to.
type Completion struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// ChunkSource is the provenance shown to the chat caller for one
// retrieved chunk. Similarity is a rounded percentage.
type ChunkSource struct {
	Title      string `json:"title"`
	Similarity int    `json:"similarity"`
}
