package retrieval

import (
	"context"

	"github.com/mikeboe/research-analyst/pkg/graphstore"
)

type edgeFinder interface {
	EdgesForEntity(ctx context.Context, entity string) ([]graphstore.Edge, error)
}

// PGGraphQuerier adapts the knowledge_triples table to GraphQuerier.
type PGGraphQuerier struct {
	store edgeFinder
}

// NewPGGraphQuerier wraps a graph store.
func NewPGGraphQuerier(store *graphstore.Store) *PGGraphQuerier {
	return &PGGraphQuerier{store: store}
}

// QueryEntities returns every triple touching token, in insertion order.
func (g *PGGraphQuerier) QueryEntities(ctx context.Context, token string) ([]Triple, error) {
	edges, err := g.store.EdgesForEntity(ctx, token)
	if err != nil {
		return nil, unavailable("graph query failed", err)
	}

	triples := make([]Triple, 0, len(edges))
	for _, e := range edges {
		triples = append(triples, Triple{Source: e.Source, Relation: e.Relation, Target: e.Target})
	}
	return triples, nil
}
