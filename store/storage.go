// Package store persists chunks with their embeddings in Postgres and
// serves similarity search through the pgvector extension.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vectorchat/model"
	"vectorchat/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// DocumentStorer is the persistence contract for the RAG layer. Writes
// that change an embedding drive the Embedder themselves.
type DocumentStorer interface {
	ReplaceDocument(ctx context.Context, sourceName, title string, chunks []string, metadata map[string]any) (*types.IngestResult, error)
	GetChunk(ctx context.Context, id uuid.UUID) (*types.Chunk, error)
	UpdateChunkContent(ctx context.Context, id uuid.UUID, content string) error
	UpdateDocumentTitle(ctx context.Context, sourceName, title string) (int64, error)
	DeleteChunk(ctx context.Context, id uuid.UUID) error
	DeleteDocument(ctx context.Context, sourceName string) (int64, error)
	AddChunkToDocument(ctx context.Context, sourceName, content string) (*types.Chunk, error)
	GetDocument(ctx context.Context, sourceName string) ([]types.Chunk, error)
	ListDocuments(ctx context.Context, page, perPage int) (*types.DocumentPage, error)
	Search(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]types.ScoredChunk, error)
	Stats(ctx context.Context) (*types.Stats, error)
	ClearAll(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type PostgresStore struct {
	pool       *pgxpool.Pool
	embedder   model.Embedder
	dim        int
	embedDelay time.Duration
	locks      *sourceLocks
	logger     *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, embedder model.Embedder, dim int, embedDelay time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:       pool,
		embedder:   embedder,
		dim:        dim,
		embedDelay: embedDelay,
		locks:      newSourceLocks(),
		logger:     slog.Default(),
	}, nil
}

// Init creates the pgvector extension, the documents table and its
// indexes. The ivfflat index uses cosine distance to match the
// similarity definition used by Search.
func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS documents (
        id UUID PRIMARY KEY,
        source_name TEXT NOT NULL,
        title TEXT,
        chunk_index INT NOT NULL DEFAULT 0,
        content TEXT NOT NULL,
        embedding vector(%d),
        metadata JSONB DEFAULT '{}',
        created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
        updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
    );

    CREATE INDEX IF NOT EXISTS idx_docs_embedding ON documents
    USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

    CREATE INDEX IF NOT EXISTS idx_docs_source_name ON documents (source_name);
    `, p.dim)

	if _, err := p.pool.Exec(ctx, query); err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	return nil
}

// chunkWriter is the write slice of the store the batch ingest loop
// goes through, split from PostgresStore so the loop's accounting does
// not need a database to test.
type chunkWriter interface {
	deleteDocumentChunks(ctx context.Context, sourceName string) (int64, error)
	insertChunk(ctx context.Context, chunk *types.Chunk) error
}

// ReplaceDocument removes every chunk stored under sourceName, then
// inserts the new chunks with sequential indexes starting at zero.
// Per-chunk embedding failures are recorded and skipped; the call
// succeeds when at least one chunk was stored. A store-layer failure
// stops the batch.
func (p *PostgresStore) ReplaceDocument(ctx context.Context, sourceName, title string, chunks []string, metadata map[string]any) (*types.IngestResult, error) {
	unlock := p.locks.lock(sourceName)
	defer unlock()

	result, err := replaceChunks(ctx, p, p.embedder, p.embedDelay, sourceName, title, chunks, metadata)
	if err != nil {
		return nil, err
	}
	p.logger.Info("document replaced",
		"source", sourceName,
		"chunks_added", result.ChunksAdded,
		"deleted_old", result.DeletedOld,
		"errors", len(result.Errors))
	return result, nil
}

func replaceChunks(ctx context.Context, w chunkWriter, embedder model.Embedder, embedDelay time.Duration, sourceName, title string, chunks []string, metadata map[string]any) (*types.IngestResult, error) {
	deleted, err := w.deleteDocumentChunks(ctx, sourceName)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = sourceName
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	result := &types.IngestResult{
		SourceName:  sourceName,
		Title:       title,
		TotalChunks: len(chunks),
		DeletedOld:  deleted,
	}

	for i, chunk := range chunks {
		embedding, err := embedder.Embed(ctx, chunk)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("chunk %d: %v", i+1, err))
			continue
		}

		err = w.insertChunk(ctx, &types.Chunk{
			ID:         uuid.New(),
			SourceName: sourceName,
			Title:      title,
			Index:      i,
			Content:    chunk,
			Embedding:  embedding,
			Metadata:   metadata,
		})
		if err != nil {
			return nil, err
		}
		result.ChunksAdded++

		// Throttle to respect the embedding provider's rate limit.
		if embedDelay > 0 && i < len(chunks)-1 {
			time.Sleep(embedDelay)
		}
	}

	result.Success = result.ChunksAdded > 0
	return result, nil
}

func (p *PostgresStore) deleteDocumentChunks(ctx context.Context, sourceName string) (int64, error) {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE source_name = $1", sourceName)
	if err != nil {
		return 0, &types.StoreUnavailableError{Err: err}
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) insertChunk(ctx context.Context, chunk *types.Chunk) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO documents (id, source_name, title, chunk_index, content, embedding, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		chunk.ID, chunk.SourceName, chunk.Title, chunk.Index, chunk.Content,
		pgvector.NewVector(chunk.Embedding), chunk.Metadata,
	)
	if err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	return nil
}

const chunkColumns = "id, source_name, title, chunk_index, content, metadata, created_at, updated_at"

func scanChunk(row pgx.Row) (*types.Chunk, error) {
	var c types.Chunk
	err := row.Scan(
		&c.ID,
		&c.SourceName,
		&c.Title,
		&c.Index,
		&c.Content,
		&c.Metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) GetChunk(ctx context.Context, id uuid.UUID) (*types.Chunk, error) {
	row := p.pool.QueryRow(ctx,
		"SELECT "+chunkColumns+" FROM documents WHERE id = $1", id)
	chunk, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewNotFoundError("chunk", id.String())
	}
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	return chunk, nil
}

// UpdateChunkContent re-embeds the new content and replaces both the
// content and the embedding. An embedding failure is fatal here, unlike
// during batch ingestion.
func (p *PostgresStore) UpdateChunkContent(ctx context.Context, id uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.NewInputError("chunk content cannot be empty")
	}

	chunk, err := p.GetChunk(ctx, id)
	if err != nil {
		return err
	}

	unlock := p.locks.lock(chunk.SourceName)
	defer unlock()

	embedding, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
        UPDATE documents
        SET content = $1, embedding = $2, updated_at = NOW()
        WHERE id = $3`,
		content, pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return types.NewNotFoundError("chunk", id.String())
	}
	return nil
}

// UpdateDocumentTitle renames every chunk stored under sourceName.
func (p *PostgresStore) UpdateDocumentTitle(ctx context.Context, sourceName, title string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, types.NewInputError("title cannot be empty")
	}

	unlock := p.locks.lock(sourceName)
	defer unlock()

	tag, err := p.pool.Exec(ctx, `
        UPDATE documents SET title = $1, updated_at = NOW() WHERE source_name = $2`,
		title, sourceName,
	)
	if err != nil {
		return 0, &types.StoreUnavailableError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return 0, types.NewNotFoundError("document", sourceName)
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresStore) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	if tag.RowsAffected() == 0 {
		return types.NewNotFoundError("chunk", id.String())
	}
	return nil
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, sourceName string) (int64, error) {
	unlock := p.locks.lock(sourceName)
	defer unlock()

	deleted, err := p.deleteDocumentChunks(ctx, sourceName)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, types.NewNotFoundError("document", sourceName)
	}
	return deleted, nil
}

// AddChunkToDocument appends one chunk after the document's highest
// index. The document must already exist.
func (p *PostgresStore) AddChunkToDocument(ctx context.Context, sourceName, content string) (*types.Chunk, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, types.NewInputError("chunk content cannot be empty")
	}

	unlock := p.locks.lock(sourceName)
	defer unlock()

	var title string
	var maxIndex int
	row := p.pool.QueryRow(ctx, `
        SELECT title, MAX(chunk_index) FROM documents
        WHERE source_name = $1 GROUP BY title`,
		sourceName,
	)
	if err := row.Scan(&title, &maxIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewNotFoundError("document", sourceName)
		}
		return nil, &types.StoreUnavailableError{Err: err}
	}

	embedding, err := p.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	chunk := &types.Chunk{
		ID:         uuid.New(),
		SourceName: sourceName,
		Title:      title,
		Index:      maxIndex + 1,
		Content:    content,
		Metadata: map[string]any{
			"added_manually": true,
			"added_at":       time.Now().Format(time.RFC3339),
		},
	}

	_, err = p.pool.Exec(ctx, `
        INSERT INTO documents (id, source_name, title, chunk_index, content, embedding, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		chunk.ID, chunk.SourceName, chunk.Title, chunk.Index, chunk.Content,
		pgvector.NewVector(embedding), chunk.Metadata,
	)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	return chunk, nil
}

// GetDocument returns every chunk of a document in index order.
func (p *PostgresStore) GetDocument(ctx context.Context, sourceName string) ([]types.Chunk, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT "+chunkColumns+" FROM documents WHERE source_name = $1 ORDER BY chunk_index",
		sourceName,
	)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, &types.StoreUnavailableError{Err: err}
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	if len(chunks) == 0 {
		return nil, types.NewNotFoundError("document", sourceName)
	}
	return chunks, nil
}

// ListDocuments groups chunks by source name, most recently updated
// first, with total-count pagination.
func (p *PostgresStore) ListDocuments(ctx context.Context, page, perPage int) (*types.DocumentPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := p.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT source_name) FROM documents").Scan(&total); err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}

	rows, err := p.pool.Query(ctx, `
        SELECT source_name, title, COUNT(*), SUM(LENGTH(content)),
               MIN(created_at), MAX(updated_at)
        FROM documents
        GROUP BY source_name, title
        ORDER BY MAX(updated_at) DESC
        LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	defer rows.Close()

	docs := []types.DocumentSummary{}
	for rows.Next() {
		var d types.DocumentSummary
		if err := rows.Scan(&d.SourceName, &d.Title, &d.Chunks, &d.TotalChars, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, &types.StoreUnavailableError{Err: err}
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}

	return &types.DocumentPage{
		Documents:  docs,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Search returns the chunks closest to the query embedding, keeping
// only similarities strictly greater than minSimilarity. Similarity is
// 1 - cosine distance.
func (p *PostgresStore) Search(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]types.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, types.NewInputError("empty query embedding")
	}
	if limit < 1 {
		limit = 5
	}

	vector := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx, `
        SELECT `+chunkColumns+`,
               1 - (embedding <=> $1) AS similarity
        FROM documents
        WHERE 1 - (embedding <=> $1) > $2
        ORDER BY embedding <=> $1
        LIMIT $3`,
		vector, minSimilarity, limit,
	)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var sc types.ScoredChunk
		err := rows.Scan(
			&sc.ID,
			&sc.SourceName,
			&sc.Title,
			&sc.Index,
			&sc.Content,
			&sc.Metadata,
			&sc.CreatedAt,
			&sc.UpdatedAt,
			&sc.Similarity,
		)
		if err != nil {
			return nil, &types.StoreUnavailableError{Err: err}
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	return results, nil
}

func (p *PostgresStore) Stats(ctx context.Context) (*types.Stats, error) {
	var s types.Stats
	err := p.pool.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(DISTINCT source_name),
               COALESCE(SUM(LENGTH(content)), 0),
               pg_size_pretty(pg_total_relation_size('documents')),
               MIN(created_at),
               MAX(updated_at)
        FROM documents`,
	).Scan(&s.TotalChunks, &s.TotalDocuments, &s.TotalChars, &s.StorageSize, &s.FirstDocument, &s.LastUpdate)
	if err != nil {
		return nil, &types.StoreUnavailableError{Err: err}
	}
	return &s, nil
}

func (p *PostgresStore) ClearAll(ctx context.Context) (int64, error) {
	var count int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, &types.StoreUnavailableError{Err: err}
	}
	if _, err := p.pool.Exec(ctx, "TRUNCATE TABLE documents"); err != nil {
		return 0, &types.StoreUnavailableError{Err: err}
	}
	return count, nil
}

// Ping reports whether the backend and the vector extension are usable.
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	var one string
	if err := p.pool.QueryRow(ctx, "SELECT '[1,2,3]'::vector::text").Scan(&one); err != nil {
		return &types.StoreUnavailableError{Err: err}
	}
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
}
