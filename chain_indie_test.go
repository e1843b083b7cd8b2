package toolflow

import (
	"context"
	"testing"

	"github.com/strand-labs/toolflow/store"
)

func TestIndieChain_ReusesDespiteOuterFreshExecution(t *testing.T) {
	settings := testSettings(t)
	rs, err := store.NewFSStore(settings.BaseDir)
	if err != nil {
		t.Fatal(err)
	}

	var countFresh, countInner, countAfter int
	fresh := NewTool("fresh", func(ctx context.Context, tc *ToolContext) error {
		countFresh++
		return nil
	}).WithCanReuse(false)

	inner := countingTool("inner", &countInner, 7)
	indie, err := NewIndieChain("independent", inner)
	if err != nil {
		t.Fatal(err)
	}

	after := countingTool("after", &countAfter, 8)

	root, err := NewToolChain("root", fresh, indie, after)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), root, RunOptions{Settings: settings, Store: rs, Reuse: true}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// fresh executes both runs, flipping the outer chain's reuse flag. The
	// indie chain forces reuse internally anyway, so inner runs only once.
	// The sibling after the indie chain sees the outer flag restored, which
	// is still false, so it runs twice.
	if countFresh != 2 {
		t.Errorf("fresh executions = %d, want 2", countFresh)
	}
	if countInner != 1 {
		t.Errorf("inner executions = %d, want 1", countInner)
	}
	if countAfter != 2 {
		t.Errorf("after executions = %d, want 2", countAfter)
	}
}
