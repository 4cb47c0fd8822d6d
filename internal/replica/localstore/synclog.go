package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hivelog/hivesync/internal/replica/scope"
)

// maxLogEntries bounds sync_log per context.
const maxLogEntries = 200

// LogEntry is one recorded sync attempt.
type LogEntry struct {
	ID       int64
	Context  string
	Kind     string
	Outcome  string
	Version  string
	Detail   string
	Duration time.Duration
	At       time.Time
}

// AppendLog records a sync attempt and trims old entries of the same
// context.
func (s *Store) AppendLog(ctx context.Context, e LogEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO sync_log (context, kind, outcome, version, detail, duration_ms, at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Context, e.Kind, e.Outcome,
		sql.NullString{String: e.Version, Valid: e.Version != ""},
		sql.NullString{String: e.Detail, Valid: e.Detail != ""},
		e.Duration.Milliseconds(),
		e.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
	DELETE FROM sync_log
	WHERE context = ? AND id NOT IN (
		SELECT id FROM sync_log WHERE context = ? ORDER BY id DESC LIMIT ?
	)`, e.Context, e.Context, maxLogEntries)
	if err != nil {
		return fmt.Errorf("failed to trim sync log: %w", err)
	}
	return nil
}

// RecentLog returns up to limit entries for c, newest first.
func (s *Store) RecentLog(ctx context.Context, c scope.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, context, kind, outcome, version, detail, duration_ms, at
	FROM sync_log
	WHERE context = ?
	ORDER BY id DESC
	LIMIT ?`, c.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e          LogEntry
			version    sql.NullString
			detail     sql.NullString
			durationMS int64
			at         string
		)
		if err := rows.Scan(&e.ID, &e.Context, &e.Kind, &e.Outcome, &version, &detail, &durationMS, &at); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		e.Version = version.String
		e.Detail = detail.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
