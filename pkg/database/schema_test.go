package database

import (
	"strings"
	"testing"
)

func TestSchemaStepsAreIdempotent(t *testing.T) {
	for _, step := range schemaSteps {
		if !strings.Contains(step.query, "IF NOT EXISTS") {
			t.Errorf("step %q is not idempotent: %s", step.name, step.query)
		}
	}
}

func TestJobsTableCarriesPipelineOutputs(t *testing.T) {
	jobs := schemaSteps[0].query
	for _, col := range []string{"query TEXT", "decision TEXT", "assembled_context TEXT", "synthesis_output TEXT", "state JSONB"} {
		if !strings.Contains(jobs, col) {
			t.Errorf("research_jobs is missing column %q", col)
		}
	}
}
