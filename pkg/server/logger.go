package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mikeboe/research-analyst/pkg/database"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const insertLogQuery = `
	INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
	VALUES ($1, $2, $3, $4, $5)
`

// DBLogHandler is a slog.Handler that writes records to research_logs for one job.
type DBLogHandler struct {
	db    execer
	jobID uuid.UUID
	level slog.Leveler
	attrs []slog.Attr
	group string
}

func NewDBLogHandler(db *database.PostgresDB, jobID uuid.UUID) *DBLogHandler {
	return &DBLogHandler{db: db.Pool, jobID: jobID, level: slog.LevelDebug}
}

func (h *DBLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBLogHandler) Handle(_ context.Context, r slog.Record) error {
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		meta[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		meta[h.key(a.Key)] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Background context: the log row must survive a cancelled job context.
	_, err = h.db.Exec(context.Background(), insertLogQuery, h.jobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.key(name)
	return &next
}

func (h *DBLogHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

// errors and durations do not marshal usefully as-is
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
