package pool

import (
	"os"
	"path/filepath"
)

// killFileName is the sentinel inside a pool session directory.
const killFileName = "KILL"

// KillFlag is the cooperative cancellation flag shared across a pool: a
// sentinel file in the session directory, visible to the parent and every
// worker process. A worker that hits a fatal error raises the flag instead
// of trying to serialize the error across the process boundary; the parent
// observes it between completions and tears the pool down.
type KillFlag struct {
	path string
}

// NewKillFlag returns the flag for a session directory. An empty directory
// yields an inert flag that is never raised.
func NewKillFlag(sessionDir string) *KillFlag {
	if sessionDir == "" {
		return &KillFlag{}
	}
	return &KillFlag{path: filepath.Join(sessionDir, killFileName)}
}

// Request raises the flag. Safe to call from any process of the pool.
func (f *KillFlag) Request() {
	if f == nil || f.path == "" {
		return
	}
	_ = os.WriteFile(f.path, []byte("kill requested\n"), 0o644)
}

// Requested reports whether any process of the pool raised the flag.
func (f *KillFlag) Requested() bool {
	if f == nil || f.path == "" {
		return false
	}
	_, err := os.Stat(f.path)
	return err == nil
}
