package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mikeboe/research-analyst/pkg/graphstore"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
)

// EdgeWriter persists graph edges.
type EdgeWriter interface {
	AddEdges(ctx context.Context, edges []graphstore.Edge) error
}

// ReadTriples parses one JSON triple per line. Blank lines and lines starting with # are skipped.
// Malformed triples fail the whole read.
func ReadTriples(r io.Reader) ([]retrieval.Triple, error) {
	var triples []retrieval.Triple

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var t retrieval.Triple
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := retrieval.ValidateTriples([]retrieval.Triple{t}); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		triples = append(triples, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read triples: %w", err)
	}
	return triples, nil
}

// StoreTriples validates and writes triples to the graph store.
func StoreTriples(ctx context.Context, store EdgeWriter, triples []retrieval.Triple) error {
	if err := retrieval.ValidateTriples(triples); err != nil {
		return err
	}

	edges := make([]graphstore.Edge, len(triples))
	for i, t := range triples {
		edges[i] = graphstore.Edge{Source: t.Source, Relation: t.Relation, Target: t.Target}
	}
	if err := store.AddEdges(ctx, edges); err != nil {
		return fmt.Errorf("failed to store triples: %w", err)
	}
	return nil
}
