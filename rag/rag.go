// Package rag retrieves stored chunks relevant to a query and formats
// them into a grounding block for the model prompt.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"vectorchat/model"
	"vectorchat/types"
)

// Searcher is the slice of the document store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]types.ScoredChunk, error)
}

// Retriever embeds a query and ranks stored chunks against it.
type Retriever struct {
	embedder model.Embedder
	store    Searcher
	logger   *slog.Logger
}

func NewRetriever(embedder model.Embedder, store Searcher) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
	}
}

// Search returns at most limit chunks with similarity strictly greater
// than minSimilarity, descending. An embedding failure degrades to an
// empty result: callers cannot tell "service down" from "no match",
// which is what the chat path wants.
func (r *Retriever) Search(ctx context.Context, query string, limit int, minSimilarity float64) ([]types.ScoredChunk, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, returning no results", "error", err)
		return nil, nil
	}
	return r.store.Search(ctx, embedding, limit, minSimilarity)
}

// ContextBuilder assembles retrieved chunks into a prompt block.
type ContextBuilder struct {
	retriever     *Retriever
	minSimilarity float64
}

func NewContextBuilder(retriever *Retriever, minSimilarity float64) *ContextBuilder {
	return &ContextBuilder{
		retriever:     retriever,
		minSimilarity: minSimilarity,
	}
}

// BuildContext retrieves up to maxChunks chunks for query and formats
// them as labeled blocks in descending-similarity order. It returns the
// block together with the chunks it was built from, so the caller can
// report sources without searching twice. An empty string means no
// context qualified.
func (b *ContextBuilder) BuildContext(ctx context.Context, query string, maxChunks int) (string, []types.ScoredChunk, error) {
	results, err := b.retriever.Search(ctx, query, maxChunks, b.minSimilarity)
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return "", nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Relevant information from the knowledge base:\n\n")
	for _, res := range results {
		title := res.Title
		if title == "" {
			title = res.SourceName
		}
		sim := int(math.Round(res.Similarity * 100))
		fmt.Fprintf(&sb, "【%s】(relevance: %d%%)\n%s\n\n", title, sim, strings.TrimSpace(res.Content))
	}
	return sb.String(), results, nil
}
