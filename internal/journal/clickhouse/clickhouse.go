package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/punchd/punchd/internal/journal"
)

// Sink sends journal events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(dsn, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(6),
		event String,
		instance_id String,
		log_id String,
		task_id String,
		idle_seconds Nullable(Int64),
		source Nullable(String),
		started_at Nullable(Int64),
		ended_at Nullable(Int64),
		gap_detected Nullable(Bool),
		clock_tampering Nullable(Bool),
		reported_idle_seconds Nullable(Int64)
	) ENGINE = MergeTree() ORDER BY occurred_at`, s.table)

	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	var (
		idleSeconds, startedAt, endedAt *int64
		source                          *string
		gapDetected, clockTampering     *bool
		reported                        *int64
	)
	if e.Idle != nil {
		is := int64(e.Idle.IdleSeconds)
		src := string(e.Idle.Source)
		sa, ea := e.Idle.StartedAt, e.Idle.EndedAt
		gd, ct := e.Idle.GapDetected, e.Idle.ClockTampering
		idleSeconds, source, startedAt, endedAt = &is, &src, &sa, &ea
		gapDetected, clockTampering = &gd, &ct
	}
	if e.ReportedIdleSeconds != nil {
		r := int64(*e.ReportedIdleSeconds)
		reported = &r
	}

	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event, instance_id, log_id, task_id,
		idle_seconds, source, started_at, ended_at, gap_detected, clock_tampering, reported_idle_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.InstanceID,
		e.LogID,
		e.TaskID,
		idleSeconds,
		source,
		startedAt,
		endedAt,
		gapDetected,
		clockTampering,
		reported,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
