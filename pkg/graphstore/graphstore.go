// Package graphstore keeps entity relation triples in Postgres.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge_triples (
	id          BIGSERIAL PRIMARY KEY,
	source      TEXT NOT NULL,
	relation    TEXT NOT NULL,
	target      TEXT NOT NULL,
	created_at  TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
	UNIQUE (source, relation, target)
);
CREATE INDEX IF NOT EXISTS idx_knowledge_triples_source ON knowledge_triples(source);
CREATE INDEX IF NOT EXISTS idx_knowledge_triples_target ON knowledge_triples(target);
`

// Edge is a stored (source, relation, target) fact.
type Edge struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Relation  string    `json:"relation"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the knowledge_triples table.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store on an existing pool. Call EnsureSchema before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the triples table and its lookup indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create knowledge_triples: %w", err)
	}
	return nil
}

// AddEdges inserts edges in one batch. Duplicates are ignored.
func (s *Store) AddEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(`
			INSERT INTO knowledge_triples (source, relation, target)
			VALUES ($1, $2, $3)
			ON CONFLICT (source, relation, target) DO NOTHING
		`, e.Source, e.Relation, e.Target)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range edges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert triple: %w", err)
		}
	}
	return nil
}

// EdgesForEntity returns every edge whose source or target equals entity, in insertion order.
func (s *Store) EdgesForEntity(ctx context.Context, entity string) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, relation, target, created_at
		FROM knowledge_triples
		WHERE source = $1 OR target = $1
		ORDER BY id ASC
	`, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to query triples: %w", err)
	}
	defer rows.Close()

	edges := []Edge{}
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.Source, &e.Relation, &e.Target, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triples: %w", err)
	}
	return edges, nil
}

// Count returns the number of stored triples.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM knowledge_triples").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count triples: %w", err)
	}
	return n, nil
}
