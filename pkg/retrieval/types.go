package retrieval

import "context"

// VectorHit is a single (chunk, score) pair returned by similarity search.
// Higher scores are more relevant; the scale is owned by the store.
type VectorHit struct {
	Chunk string  `json:"chunk"`
	Score float64 `json:"score"`
}

// Triple is a (source, relation, target) fact returned by the graph store.
type Triple struct {
	Source   string `json:"source"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// VectorSearcher returns at most k hits ordered by descending relevance.
// A successful search with no matches returns an empty slice and a nil error.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int) ([]VectorHit, error)
}

// GraphQuerier returns the triples anchored on a single entity token.
type GraphQuerier interface {
	QueryEntities(ctx context.Context, token string) ([]Triple, error)
}
