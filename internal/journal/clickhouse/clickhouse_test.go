package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/punchd/punchd/internal/journal"
	"github.com/punchd/punchd/internal/session"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, dsn := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink, err := New(dsn, "idle_journal_test")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	now := time.Now().UTC()
	events := []journal.Event{
		{
			Type:       journal.EventStarted,
			OccurredAt: now.Add(-time.Minute),
			InstanceID: "inst-ch",
			LogID:      "log-ch",
			TaskID:     "task-ch",
		},
		{
			Type:       journal.EventIdle,
			OccurredAt: now,
			InstanceID: "inst-ch",
			LogID:      "log-ch",
			TaskID:     "task-ch",
			Idle: &session.IdleEvent{
				IdleSeconds:    75,
				Source:         session.SourceUserInactive,
				StartedAt:      now.Add(-75 * time.Second).UnixMilli(),
				EndedAt:        now.UnixMilli(),
				LogID:          "log-ch",
				GapDetected:    true,
				ClockTampering: false,
			},
		},
	}

	for _, ev := range events {
		if err := sink.Send(ctx, ev); err != nil {
			t.Fatalf("Failed to send %s event: %v", ev.Type, err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM idle_journal_test WHERE log_id = ?", "log-ch")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events in journal, got %d", count)
	}
}
