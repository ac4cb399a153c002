package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Document is an evidence chunk with its embedding
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// SimilaritySearchResult pairs a chunk with its cosine similarity to the query
type SimilaritySearchResult struct {
	Document Document
	Score    float64
}

// PGVectorStore stores evidence chunks in a pgvector table
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName rejects anything that is not a plain lower-case-led identifier
// of at most 63 characters (the PostgreSQL limit).
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// NewPGVectorStore binds a store to one collection table
func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name %q: must start with a lower-case letter or underscore and hold at most 63 alphanumeric characters or underscores", tableName)
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

// TableName returns the collection table this store reads and writes.
func (vs *PGVectorStore) TableName() string {
	return vs.tableName
}

// EnsureTable creates the collection table and, when the dimension allows it, an HNSW index.
func (vs *PGVectorStore) EnsureTable(ctx context.Context, dimension int) error {
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to ensure vector extension: %w", err)
	}

	if _, err := vs.pool.Exec(ctx, createTableQuery(vs.tableName, dimension)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", vs.tableName, err)
	}

	// HNSW supports up to 2000 dimensions; larger vectors fall back to exact search.
	if dimension <= 2000 {
		if _, err := vs.pool.Exec(ctx, createIndexQuery(vs.tableName)); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", vs.tableName, err)
		}
	}
	return nil
}

// AddDocuments inserts chunks with their embeddings in a single batch
func (vs *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (content, metadata, embedding)
		VALUES ($1, $2, $3)
	`, pgx.Identifier{vs.tableName}.Sanitize())

	batch := &pgx.Batch{}
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(query, doc.Content, metadataJSON, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	return nil
}

// SimilaritySearch returns up to topK chunks ordered by descending cosine similarity.
// An empty sourceFilter searches the whole collection.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, sourceFilter string) ([]SimilaritySearchResult, error) {
	embedding := pgvector.NewVector(queryEmbedding)

	query := similarityQuery(vs.tableName, sourceFilter != "")
	args := []interface{}{embedding, topK}
	if sourceFilter != "" {
		args = append(args, sourceFilter)
	}

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	results := []SimilaritySearchResult{}
	for rows.Next() {
		var doc Document
		var metadataJSON []byte
		var similarity float64

		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		results = append(results, SimilaritySearchResult{Document: doc, Score: similarity})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// CountBySource reports how many chunks were indexed for a source URL.
func (vs *PGVectorStore) CountBySource(ctx context.Context, source string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE metadata->>'source' = $1`,
		pgx.Identifier{vs.tableName}.Sanitize())

	var n int
	if err := vs.pool.QueryRow(ctx, query, source).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func createTableQuery(tableName string, dimension int) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, pgx.Identifier{tableName}.Sanitize(), dimension)
}

func createIndexQuery(tableName string) string {
	return fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s USING hnsw (embedding vector_cosine_ops)
	`, pgx.Identifier{tableName + "_embedding_idx"}.Sanitize(), pgx.Identifier{tableName}.Sanitize())
}

// similarityQuery orders by distance and then id so equal scores come back in a stable order.
func similarityQuery(tableName string, filtered bool) string {
	where := ""
	if filtered {
		where = "WHERE metadata->>'source' = $3"
	}
	return fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, pgx.Identifier{tableName}.Sanitize(), where)
}
