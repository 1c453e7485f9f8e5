package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/procreaper/internal/history"
)

func sampleEvent(typ history.EventType, pid int) history.Event {
	now := time.Now().UTC()
	return history.Event{
		Type:       typ,
		OccurredAt: now,
		Record: history.Record{
			Target:    "worker",
			PID:       pid,
			PPID:      1,
			Cmdline:   "worker --serve",
			CreatedAt: now.Add(-2 * time.Minute),
			Age:       2 * time.Minute,
			MaxAge:    time.Minute,
		},
	}
}

func countRows(t *testing.T, s *Sink, event string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reap_history WHERE event = ?`, event).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reap.db")
	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	if err := sink.Send(ctx, sampleEvent(history.EventKilled, 100)); err != nil {
		t.Fatalf("send killed: %v", err)
	}
	if err := sink.Send(ctx, sampleEvent(history.EventKillFailed, 101)); err != nil {
		t.Fatalf("send kill_failed: %v", err)
	}

	if got := countRows(t, sink, "killed"); got != 1 {
		t.Errorf("killed rows = %d", got)
	}
	if got := countRows(t, sink, "kill_failed"); got != 1 {
		t.Errorf("kill_failed rows = %d", got)
	}

	var age int64
	if err := sink.db.QueryRow(`SELECT age_ms FROM reap_history WHERE pid = 100`).Scan(&age); err != nil {
		t.Fatalf("select: %v", err)
	}
	if age != (2 * time.Minute).Milliseconds() {
		t.Errorf("age_ms = %d", age)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	if err := sink.Send(context.Background(), sampleEvent(history.EventKilled, 7)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := countRows(t, sink, "killed"); got != 1 {
		t.Errorf("rows = %d", got)
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Send(ctx, sampleEvent(history.EventKilled, 1)); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
