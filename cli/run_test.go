package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/strand-labs/toolflow"
	"github.com/strand-labs/toolflow/monitor"
)

func TestBuildRunHandler_RecordsToEventDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")
	settings := &toolflow.Settings{BaseDir: t.TempDir(), EventDBPath: dbPath}

	handler, closeHandler, err := buildRunHandler(settings)
	if err != nil {
		t.Fatal(err)
	}

	handler(toolflow.NewEvent(toolflow.EventRunStarted, "run-1"))
	handler(toolflow.NewEvent(toolflow.EventToolStarted, "run-1").
		WithPath("root/a", toolflow.KindTool))
	handler(toolflow.NewEvent(toolflow.EventToolFinished, "run-1").
		WithPath("root/a", toolflow.KindTool))
	closeHandler()

	es, err := monitor.NewSQLiteEventStore(monitor.SQLiteStoreConfig{DSN: dbPath})
	if err != nil {
		t.Fatal(err)
	}
	defer es.Close()

	events, err := es.List(context.Background(), "run-1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("persisted events = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestBuildRunHandler_NoEventDB(t *testing.T) {
	settings := &toolflow.Settings{BaseDir: t.TempDir()}

	handler, closeHandler, err := buildRunHandler(settings)
	if err != nil {
		t.Fatal(err)
	}

	// Events flow through the log and bus plumbing without a store.
	handler(toolflow.NewEvent(toolflow.EventRunStarted, "run-1"))
	handler(toolflow.NewEvent(toolflow.EventToolWarning, "run-1").
		WithPath("root/a", toolflow.KindTool).
		WithPayload("text", "noisy"))
	closeHandler()
}
