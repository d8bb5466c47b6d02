// Package audit persists lifecycle events.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"tether/cmd/internal/auth/lifecycle"
)

// Execer is the subset of pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes events to the audit_events table.
type PostgresSink struct {
	db Execer
}

var _ lifecycle.Sink = (*PostgresSink)(nil)

func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{db: db}
}

// Handle inserts e. The client address, when known, is stored in attrs.
func (s *PostgresSink) Handle(ctx context.Context, e lifecycle.Event) error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return nil
	}

	attrs, err := json.Marshal(eventAttrs(e))
	if err != nil {
		return fmt.Errorf("audit: marshal attrs: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO audit_events (name, account_id, request_id, attrs, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, name, nullIfEmpty(e.AccountID), nullIfEmpty(e.RequestID), string(attrs), e.At.UTC())
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", name, err)
	}
	return nil
}

// LogSink writes events to a logger.
type LogSink struct {
	log *slog.Logger
}

var _ lifecycle.Sink = (*LogSink)(nil)

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Handle(ctx context.Context, e lifecycle.Event) error {
	s.log.InfoContext(ctx, "audit.event",
		"event", e.Name,
		"account_id", e.AccountID,
		"request_id", e.RequestID,
		"client_ip", e.ClientIP,
		"at", e.At.UTC(),
	)
	return nil
}

func eventAttrs(e lifecycle.Event) map[string]any {
	out := make(map[string]any, len(e.Attrs)+1)
	for k, v := range e.Attrs {
		out[k] = v
	}
	if e.ClientIP != "" {
		out["client_ip"] = e.ClientIP
	}
	return out
}

func nullIfEmpty(s string) any {
	if v := strings.TrimSpace(s); v != "" {
		return v
	}
	return nil
}
