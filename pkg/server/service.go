package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mikeboe/research-analyst/pkg/database"
	"github.com/mikeboe/research-analyst/pkg/research"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

type Service struct {
	DB *database.PostgresDB
	// NewAnalyst returns a fresh pipeline driver per job.
	NewAnalyst func() *research.Analyst
}

func NewService(db *database.PostgresDB, newAnalyst func() *research.Analyst) *Service {
	return &Service{
		DB:         db,
		NewAnalyst: newAnalyst,
	}
}

type Job struct {
	ID               uuid.UUID       `json:"id"`
	Query            string          `json:"query"`
	Status           string          `json:"status"`
	Decision         *string         `json:"decision,omitempty"`
	AssembledContext *string         `json:"assembled_context,omitempty"`
	SynthesisOutput  *string         `json:"synthesis_output,omitempty"`
	State            json.RawMessage `json:"state,omitempty"`
	Config           json.RawMessage `json:"config"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type CreateJobRequest struct {
	Query string `json:"query"`
}

const jobColumns = "id, query, status, decision, assembled_context, synthesis_output, state, config, created_at, updated_at"

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(&job.ID, &job.Query, &job.Status, &job.Decision, &job.AssembledContext,
		&job.SynthesisOutput, &job.State, &job.Config, &job.CreatedAt, &job.UpdatedAt)
	return job, err
}

func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, research.ErrEmptyQuery
	}

	analyst := s.NewAnalyst()
	configJSON, err := json.Marshal(map[string]any{
		"thresholds": analyst.Engine.Thresholds(),
		"options":    analyst.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job config: %w", err)
	}

	job, err := scanJob(s.DB.Pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, query, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING `+jobColumns, uuid.New(), query, configJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	go s.runWorker(job.ID, query, analyst)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.DB.Pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM research_jobs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Pool.Query(ctx, "SELECT "+jobColumns+" FROM research_jobs ORDER BY created_at DESC LIMIT 50")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *Service) runWorker(jobID uuid.UUID, query string, analyst *research.Analyst) {
	ctx := context.Background()

	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'running', updated_at = NOW() WHERE id = $1", jobID)

	dbLogger := slog.New(NewDBLogHandler(s.DB, jobID))
	analyst.Logger = dbLogger
	analyst.OnStateUpdate = func(state research.ResearchState) {
		if err := s.saveState(ctx, jobID, state); err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
	}

	state, err := analyst.Run(ctx, query)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		dbLogger.Error("Failed to marshal state", "error", err)
		stateJSON = nil
	}

	_, err = s.DB.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = 'completed', decision = $2, assembled_context = $3, synthesis_output = $4,
			state = COALESCE($5, state), updated_at = NOW()
		WHERE id = $1`,
		jobID, string(state.AnalysisDecision), nullable(state.AssembledContext, state.HasContext),
		nullable(state.SynthesisOutput, state.SynthesisOutput != ""), stateJSON)
	if err != nil {
		dbLogger.Error("Failed to save final result to DB", "error", err)
	}
}

func (s *Service) saveState(ctx context.Context, jobID uuid.UUID, state research.ResearchState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1", jobID, stateJSON)
	return err
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	slog.New(NewDBLogHandler(s.DB, jobID)).Error(reason)
	_, _ = s.DB.Pool.Exec(ctx, "UPDATE research_jobs SET status = 'failed', updated_at = NOW() WHERE id = $1", jobID)
}

// nullable keeps "no context" distinct from an empty context in the jobs table.
func nullable(s string, present bool) *string {
	if !present {
		return nil
	}
	return &s
}
