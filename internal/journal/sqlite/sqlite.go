package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/session"
)

// Sink writes journal events to a SQLite database. It is the default journal
// backend and the only one that also serves reads.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite journal sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS idle_journal(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			log_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			idle_seconds INTEGER NULL,
			source TEXT NULL,
			started_at INTEGER NULL,
			ended_at INTEGER NULL,
			gap_detected BOOLEAN NULL,
			clock_tampering BOOLEAN NULL,
			reported_idle_seconds INTEGER NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_idle_journal_log ON idle_journal(log_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	var (
		idleSeconds, startedAt, endedAt interface{}
		source                          interface{}
		gapDetected, clockTampering     interface{}
		reported                        interface{}
	)
	if e.Idle != nil {
		idleSeconds = int64(e.Idle.IdleSeconds)
		source = string(e.Idle.Source)
		startedAt = e.Idle.StartedAt
		endedAt = e.Idle.EndedAt
		gapDetected = e.Idle.GapDetected
		clockTampering = e.Idle.ClockTampering
	}
	if e.ReportedIdleSeconds != nil {
		reported = int64(*e.ReportedIdleSeconds)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idle_journal(occurred_at, event, instance_id, log_id, task_id,
			idle_seconds, source, started_at, ended_at, gap_detected, clock_tampering, reported_idle_seconds)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.InstanceID, e.LogID, e.TaskID,
		idleSeconds, source, startedAt, endedAt, gapDetected, clockTampering, reported)
	return err
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, instance_id, log_id, task_id,
			idle_seconds, source, started_at, ended_at, gap_detected, clock_tampering, reported_idle_seconds
		FROM idle_journal ORDER BY id DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []journal.Event
	for rows.Next() {
		var (
			e              journal.Event
			occurredAt     time.Time
			evt            string
			idleSeconds    sql.NullInt64
			source         sql.NullString
			startedAt      sql.NullInt64
			endedAt        sql.NullInt64
			gapDetected    sql.NullBool
			clockTampering sql.NullBool
			reported       sql.NullInt64
		)
		if err := rows.Scan(&occurredAt, &evt, &e.InstanceID, &e.LogID, &e.TaskID,
			&idleSeconds, &source, &startedAt, &endedAt, &gapDetected, &clockTampering, &reported); err != nil {
			return nil, err
		}
		e.Type = journal.EventType(evt)
		e.OccurredAt = occurredAt
		if idleSeconds.Valid {
			e.Idle = &session.IdleEvent{
				IdleSeconds:    uint64(idleSeconds.Int64),
				Source:         session.Source(source.String),
				StartedAt:      startedAt.Int64,
				EndedAt:        endedAt.Int64,
				LogID:          e.LogID,
				GapDetected:    gapDetected.Bool,
				ClockTampering: clockTampering.Bool,
			}
		}
		if reported.Valid {
			v := uint64(reported.Int64)
			e.ReportedIdleSeconds = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
