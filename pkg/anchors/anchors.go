// Package anchors derives graph lookup keys from vector hits and resolves them
// against a graph store.
package anchors

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// DefaultTokensPerHit is how many leading tokens of each chunk become anchors.
const DefaultTokensPerHit = 5

// Extract returns the first perHit whitespace-delimited tokens of every hit, in hit order.
// Tokens are not normalized or deduplicated.
func Extract(hits []retrieval.VectorHit, perHit int) []string {
	if perHit <= 0 {
		perHit = DefaultTokensPerHit
	}

	var tokens []string
	for _, h := range hits {
		fields := strings.Fields(h.Chunk)
		if len(fields) > perHit {
			fields = fields[:perHit]
		}
		tokens = append(tokens, fields...)
	}
	return tokens
}

// Traverse queries the graph once per token and concatenates the triples in token order.
// With workers > 1 the lookups run concurrently; the merge order stays the same.
// The first lookup error aborts the traversal.
func Traverse(ctx context.Context, graph retrieval.GraphQuerier, tokens []string, workers int) ([]retrieval.Triple, error) {
	if workers <= 1 {
		return traverseSequential(ctx, graph, tokens)
	}

	perToken := make([][]retrieval.Triple, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tok := range tokens {
		g.Go(func() error {
			triples, err := graph.QueryEntities(gctx, tok)
			if err != nil {
				return fmt.Errorf("anchor %q: %w", tok, err)
			}
			perToken[i] = triples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return flatten(perToken), nil
}

func traverseSequential(ctx context.Context, graph retrieval.GraphQuerier, tokens []string) ([]retrieval.Triple, error) {
	out := []retrieval.Triple{}
	for _, tok := range tokens {
		triples, err := graph.QueryEntities(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("anchor %q: %w", tok, err)
		}
		out = append(out, triples...)
	}
	return out, nil
}

func flatten(perToken [][]retrieval.Triple) []retrieval.Triple {
	n := 0
	for _, t := range perToken {
		n += len(t)
	}
	out := make([]retrieval.Triple, 0, n)
	for _, t := range perToken {
		out = append(out, t...)
	}
	return out
}
