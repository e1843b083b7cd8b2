package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/strand-labs/toolflow"
)

func newTestSQLiteStore(t *testing.T, cfg SQLiteStoreConfig) *SQLiteEventStore {
	t.Helper()
	if cfg.DSN == "" {
		cfg.DSN = filepath.Join(t.TempDir(), "events.db")
	}
	s, err := NewSQLiteEventStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteEventStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, SQLiteStoreConfig{})

	e := toolflow.NewEvent(toolflow.EventToolFinished, "run-1").
		WithPath("root/a", toolflow.KindTool).
		WithElapsed(150 * time.Millisecond).
		WithPayload("note", "done")
	e.Seq = 1

	if err := s.Append(ctx, e); err != nil {
		t.Fatal(err)
	}

	events, err := s.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	got := events[0]
	if got.Kind != toolflow.EventToolFinished {
		t.Errorf("kind = %q, want tool_finished", got.Kind)
	}
	if got.Path != "root/a" || got.NodeKind != toolflow.KindTool {
		t.Errorf("path = %q (%q), want root/a (tool)", got.Path, got.NodeKind)
	}
	if got.Elapsed != 150*time.Millisecond {
		t.Errorf("elapsed = %v, want 150ms", got.Elapsed)
	}
	if got.Payload["note"] != "done" {
		t.Errorf("payload = %v, want note=done", got.Payload)
	}
}

func TestSQLiteEventStore_ListAfterSeqAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, SQLiteStoreConfig{})

	for seq := uint64(1); seq <= 5; seq++ {
		if err := s.Append(ctx, event("run-1", seq)); err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.List(ctx, "run-1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Seq != 3 || events[1].Seq != 4 {
		t.Errorf("got %+v, want seqs 3 and 4", events)
	}
}

func TestSQLiteEventStore_LatestSeqAndRunIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, SQLiteStoreConfig{})

	seq, err := s.LatestSeq(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0 {
		t.Errorf("seq = %d, want 0 for unknown run", seq)
	}

	for _, e := range []toolflow.Event{event("run-b", 1), event("run-a", 3), event("run-a", 1)} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	seq, err = s.LatestSeq(ctx, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}

	ids, err := s.RunIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "run-a" || ids[1] != "run-b" {
		t.Errorf("run ids = %v, want [run-a run-b]", ids)
	}
}

func TestSQLiteEventStore_PruneByCount(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, SQLiteStoreConfig{
		RetentionCount: 2,
		PruneInterval:  time.Hour,
	})

	for seq := uint64(1); seq <= 5; seq++ {
		if err := s.Append(ctx, event("run-1", seq)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := s.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Seq != 4 || events[1].Seq != 5 {
		t.Errorf("got %+v, want only the two newest events", events)
	}
}

func TestSQLiteEventStore_PruneByAge(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t, SQLiteStoreConfig{
		RetentionAge:  time.Hour,
		PruneInterval: time.Hour,
	})

	old := event("run-1", 1)
	old.Time = time.Now().Add(-2 * time.Hour)
	fresh := event("run-1", 2)

	for _, e := range []toolflow.Event{old, fresh} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := s.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Seq != 2 {
		t.Errorf("got %+v, want only the fresh event", events)
	}
}
