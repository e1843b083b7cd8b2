package toolflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/strand-labs/toolflow/store"
)

func testSettings(t *testing.T) *Settings {
	t.Helper()
	return &Settings{
		MaxProcesses: 1,
		Parallel:     false,
		BaseDir:      t.TempDir(),
	}
}

// countingTool returns a cacheable tool that counts executions and records a
// single value as its result.
func countingTool(name string, count *int, value int) *Tool {
	return NewTool(name, func(ctx context.Context, tc *ToolContext) error {
		*count++
		tc.SetResult(map[string]any{"value": value})
		return nil
	})
}

func TestToolChain_DuplicateSiblingName(t *testing.T) {
	a := NewTool("step", nil)
	b := NewTool("step", nil)

	_, err := NewToolChain("root", a, b)
	if err == nil {
		t.Fatal("expected error for duplicate sibling name")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
	if !strings.Contains(err.Error(), `"step"`) {
		t.Errorf("error %q does not name the duplicate", err)
	}
}

func TestToolChain_InvalidName(t *testing.T) {
	tests := []struct {
		name     string
		toolName string
	}{
		{name: "empty", toolName: ""},
		{name: "slash", toolName: "a/b"},
		{name: "backslash", toolName: `a\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewToolChain("root", NewTool(tt.toolName, nil))
			if err == nil {
				t.Fatalf("expected error for name %q", tt.toolName)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type = %T, want *ConfigError", err)
			}
		})
	}
}

func TestToolChain_SequentialOrder(t *testing.T) {
	var order []string
	mk := func(name string) *Tool {
		return NewTool(name, func(ctx context.Context, tc *ToolContext) error {
			order = append(order, name)
			return nil
		})
	}

	root, err := NewToolChain("root", mk("a"), mk("b"), mk("c"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Run(context.Background(), root, RunOptions{Settings: testSettings(t), Store: store.NewMemStore()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestToolChain_ErrorStopsChain(t *testing.T) {
	var ran []string
	boom := errors.New("boom")

	a := NewTool("a", func(ctx context.Context, tc *ToolContext) error {
		ran = append(ran, "a")
		return nil
	})
	b := NewTool("b", func(ctx context.Context, tc *ToolContext) error {
		return boom
	})
	c := NewTool("c", func(ctx context.Context, tc *ToolContext) error {
		ran = append(ran, "c")
		return nil
	})

	root, err := NewToolChain("root", a, b, c)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(context.Background(), root, RunOptions{Settings: testSettings(t), Store: store.NewMemStore()})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped boom", err)
	}
	if len(ran) != 1 || ran[0] != "a" {
		t.Errorf("ran %v, later siblings must not run after a failure", ran)
	}
}

func TestRun_Idempotence(t *testing.T) {
	settings := testSettings(t)
	rs, err := store.NewFSStore(settings.BaseDir)
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	root, err := NewToolChain("root", countingTool("calc", &count, 42))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), root, RunOptions{Settings: settings, Store: rs, Reuse: true}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if count != 1 {
		t.Errorf("executions = %d, want 1 (second run must reuse)", count)
	}
}

func TestRun_ReuseFlipsOnFreshExecution(t *testing.T) {
	settings := testSettings(t)
	rs, err := store.NewFSStore(settings.BaseDir)
	if err != nil {
		t.Fatal(err)
	}

	var countA, countB, countC int
	a := countingTool("a", &countA, 1)
	b := NewTool("b", func(ctx context.Context, tc *ToolContext) error {
		countB++
		return nil
	}).WithCanReuse(false)
	c := countingTool("c", &countC, 3)

	root, err := NewToolChain("root", a, b, c)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), root, RunOptions{Settings: settings, Store: rs, Reuse: true}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// a reuses on the second run; b always executes, which flips the chain
	// flag, so c can no longer reuse either.
	if countA != 1 {
		t.Errorf("a executions = %d, want 1", countA)
	}
	if countB != 2 {
		t.Errorf("b executions = %d, want 2", countB)
	}
	if countC != 2 {
		t.Errorf("c executions = %d, want 2", countC)
	}
}

func TestPathAddressing(t *testing.T) {
	leaf := NewTool("Leaf", nil)
	sub, err := NewToolChain("Sub", leaf)
	if err != nil {
		t.Fatal(err)
	}
	root, err := NewToolChain("Root", sub)
	if err != nil {
		t.Fatal(err)
	}

	if got := leaf.Path(); got != "Root/Sub/Leaf" {
		t.Errorf("leaf path = %q, want %q", got, "Root/Sub/Leaf")
	}

	ec := NewExecutionContext(testSettings(t), store.NewMemStore())
	ec.Register(root)

	n, ok := ec.Lookup("Root/Sub/Leaf")
	if !ok {
		t.Fatal("lookup by path failed")
	}
	if n != leaf {
		t.Error("lookup returned a different node")
	}
}

func TestErrorAnnotation_ExactlyOnce(t *testing.T) {
	boom := errors.New("boom")
	leaf := NewTool("Leaf", func(ctx context.Context, tc *ToolContext) error {
		return boom
	})
	sub, err := NewToolChain("Sub", leaf)
	if err != nil {
		t.Fatal(err)
	}
	root, err := NewToolChain("Root", sub)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(context.Background(), root, RunOptions{Settings: testSettings(t), Store: store.NewMemStore()})
	if err == nil {
		t.Fatal("expected error")
	}

	msg := err.Error()
	if got := strings.Count(msg, "occurred at path (kind):"); got != 1 {
		t.Fatalf("annotation count = %d, want exactly 1 in %q", got, msg)
	}
	if !strings.Contains(msg, "Root/Sub/Leaf (tool)") {
		t.Errorf("annotation %q does not name the innermost failing node", msg)
	}
	if !errors.Is(err, boom) {
		t.Error("original error not reachable through the annotation")
	}
}

func TestFetchTransform(t *testing.T) {
	settings := testSettings(t)
	rs, err := store.NewFSStore(settings.BaseDir)
	if err != nil {
		t.Fatal(err)
	}

	fetch := NewTool("Fetch", func(ctx context.Context, tc *ToolContext) error {
		tc.SetResult(map[string]any{"value": 42})
		return nil
	})
	transform := NewTool("Transform", func(ctx context.Context, tc *ToolContext) error {
		res, ok := tc.LookupResult("Root/Fetch")
		if !ok {
			return errors.New("fetch result missing")
		}
		v, ok := res.Data["value"].(int)
		if !ok {
			// Reloaded results round-trip through JSON.
			f, okf := res.Data["value"].(float64)
			if !okf {
				return errors.New("fetch value missing")
			}
			v = int(f)
		}
		tc.SetResult(map[string]any{"value": v * 2})
		return nil
	})

	root, err := NewToolChain("Root", fetch, transform)
	if err != nil {
		t.Fatal(err)
	}

	ec, err := Run(context.Background(), root, RunOptions{Settings: settings, Store: rs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, ok := ec.LookupResult("Root/Transform")
	if !ok {
		t.Fatal("transform result not registered")
	}
	if got := res.Data["value"]; got != 84 {
		t.Errorf("transform value = %v, want 84", got)
	}

	// The persisted copy is addressable by path key.
	stored, err := rs.Get("Root/Transform/result")
	if err != nil {
		t.Fatalf("stored transform result: %v", err)
	}
	if got, ok := stored.Data["value"].(float64); !ok || got != 84 {
		t.Errorf("stored transform value = %v, want 84", stored.Data["value"])
	}
}

func TestReloadOnly_AbortsWithPinnedMessage(t *testing.T) {
	settings := testSettings(t)
	settings.ReloadOnly = true

	root, err := NewToolChain("Root", NewTool("A", nil))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(context.Background(), root, RunOptions{Settings: settings, Store: store.NewMemStore(), Reuse: true})
	if err == nil {
		t.Fatal("expected reload-only abort")
	}

	var roErr *ReloadOnlyError
	if !errors.As(err, &roErr) {
		t.Fatalf("error type = %T, want *ReloadOnlyError", err)
	}
	want := `reload-only mode: cannot reuse "Root/A" (tool)`
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not contain %q", err.Error(), want)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root, err := NewToolChain("root", NewTool("a", nil))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(ctx, root, RunOptions{Settings: testSettings(t), Store: store.NewMemStore()})
	if !errors.Is(err, ErrRunCanceled) {
		t.Fatalf("error = %v, want ErrRunCanceled", err)
	}
}

func TestToolChain_LazyTools(t *testing.T) {
	var ran []string
	root, err := NewToolChain("root")
	if err != nil {
		t.Fatal(err)
	}
	root.LazyTools = func() []ToolNode {
		return []ToolNode{
			NewTool("late", func(ctx context.Context, tc *ToolContext) error {
				ran = append(ran, "late")
				return nil
			}),
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := Run(context.Background(), root, RunOptions{Settings: testSettings(t), Store: store.NewMemStore()}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// Materialization happens once; the child stays attached.
	if root.Len() != 1 {
		t.Errorf("chain length = %d, want 1", root.Len())
	}
	if len(ran) == 0 {
		t.Error("lazy tool never ran")
	}
}
