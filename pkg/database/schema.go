package database

import (
	"context"
	"fmt"
)

// InitSchema creates the job bookkeeping tables. Chunk and triple tables are owned by
// vectorstore and graphstore.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, step := range schemaSteps {
		if _, err := db.Pool.Exec(ctx, step.query); err != nil {
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}
	return nil
}

type schemaStep struct {
	name  string
	query string
}

var schemaSteps = []schemaStep{
	{"create research_jobs table", `
		CREATE TABLE IF NOT EXISTS research_jobs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			query TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			config JSONB,
			decision TEXT,
			assembled_context TEXT,
			synthesis_output TEXT,
			state JSONB,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`},
	{"create research_logs table", `
		CREATE TABLE IF NOT EXISTS research_logs (
			id SERIAL PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES research_jobs(id) ON DELETE CASCADE,
			timestamp TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata JSONB
		)
	`},
	{"create index on research_logs", "CREATE INDEX IF NOT EXISTS idx_research_logs_job_id ON research_logs(job_id)"},
	{"create index on research_jobs", "CREATE INDEX IF NOT EXISTS idx_research_jobs_created_at ON research_jobs(created_at DESC)"},
}
