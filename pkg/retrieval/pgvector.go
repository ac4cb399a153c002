package retrieval

import (
	"context"
	"log/slog"

	"github.com/mikeboe/research-analyst/pkg/vectorstore"
)

// QueryEmbedder turns a query into the vector space of the chunk table.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// similaritySearcher is the subset of vectorstore.PGVectorStore used for search.
type similaritySearcher interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, sourceFilter string) ([]vectorstore.SimilaritySearchResult, error)
}

// PGVectorSearcher adapts a pgvector collection to VectorSearcher.
type PGVectorSearcher struct {
	store    similaritySearcher
	embedder QueryEmbedder
	logger   *slog.Logger
}

// NewPGVectorSearcher wires an embedder to a pgvector store.
func NewPGVectorSearcher(store *vectorstore.PGVectorStore, embedder QueryEmbedder) *PGVectorSearcher {
	return &PGVectorSearcher{store: store, embedder: embedder, logger: slog.Default()}
}

// Search embeds query and returns at most k hits in store order.
// Embedding and store failures wrap ErrRetrievalUnavailable; no matches is an empty slice.
func (s *PGVectorSearcher) Search(ctx context.Context, query string, k int) ([]VectorHit, error) {
	return s.SearchSource(ctx, query, k, "")
}

// SearchSource is Search restricted to chunks indexed from one source URL.
func (s *PGVectorSearcher) SearchSource(ctx context.Context, query string, k int, source string) ([]VectorHit, error) {
	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, unavailable("failed to embed query", err)
	}

	results, err := s.store.SimilaritySearch(ctx, embedding, k, source)
	if err != nil {
		return nil, unavailable("vector search failed", err)
	}

	hits := make([]VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, VectorHit{Chunk: r.Document.Content, Score: r.Score})
	}

	s.logger.Debug("Vector search complete", "k", k, "hits", len(hits), "source", source)
	return hits, nil
}
