package toolflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "toolflow.yaml"
	homeConfigName    = "config.yaml"

	// EnvWorker marks a process as a pool worker. Parallel execution is
	// disabled inside workers so nested parallel chains degrade to
	// sequential instead of deadlocking on the shared concurrency gate.
	EnvWorker = "TOOLFLOW_WORKER"
)

// Settings is the global configuration surface of the engine.
type Settings struct {
	// MaxProcesses bounds the number of simultaneously running worker
	// processes. Defaults to the number of CPUs.
	MaxProcesses int `yaml:"max_processes"`

	// ReloadOnly makes the engine replay cached results only: encountering a
	// cacheable node that cannot be reused aborts the whole run.
	ReloadOnly bool `yaml:"reload_only"`

	// Parallel gates parallel execution globally.
	Parallel bool `yaml:"parallel"`

	// BaseDir is the root working directory for tool directories, log
	// markers, and (by default) the result store.
	BaseDir string `yaml:"base_dir"`

	// StoreDir is the result store root. Defaults to BaseDir.
	StoreDir string `yaml:"store_dir,omitempty"`

	// EventDBPath is an optional SQLite database recording run events.
	EventDBPath string `yaml:"event_db,omitempty"`
}

// DefaultSettings returns settings suitable for local runs.
func DefaultSettings() *Settings {
	return &Settings{
		MaxProcesses: runtime.NumCPU(),
		Parallel:     true,
		BaseDir:      ".",
	}
}

// ParallelEnabled reports whether parallel dispatch may be used. It is false
// inside worker processes regardless of configuration. A MaxProcesses of one
// still dispatches through the pool: the single worker slot serializes the
// children without changing the execution path.
func (s *Settings) ParallelEnabled() bool {
	if os.Getenv(EnvWorker) != "" {
		return false
	}
	return s.Parallel
}

// StoreDirOrBase returns the result store root, falling back to BaseDir.
func (s *Settings) StoreDirOrBase() string {
	if s.StoreDir != "" {
		return s.StoreDir
	}
	return s.BaseDir
}

// LoadSettings reads settings from a YAML file, then applies environment
// overrides. With an empty path it falls back to ./toolflow.yaml, then
// ~/.toolflow/config.yaml, then defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	resolved, found, err := discoverConfigPath(path)
	if err != nil {
		return nil, err
	}
	if found {
		data, err := os.ReadFile(resolved) // #nosec G304 -- path from caller
		if err != nil {
			return nil, fmt.Errorf("reading settings %s: %w", resolved, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings %s: %w", resolved, err)
		}
	}

	applyEnvOverrides(s)

	if s.MaxProcesses < 1 {
		s.MaxProcesses = 1
	}
	return s, nil
}

func discoverConfigPath(explicitPath string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, projectConfigName)
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".toolflow", homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			// An explicit path that does not exist is an error.
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("settings file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking settings path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("TOOLFLOW_MAX_PROCESSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.MaxProcesses = n
		}
	}
	if v := os.Getenv("TOOLFLOW_RELOAD_ONLY"); v != "" {
		s.ReloadOnly = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TOOLFLOW_PARALLEL"); v != "" {
		s.Parallel = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TOOLFLOW_BASE_DIR"); v != "" {
		s.BaseDir = v
	}
	if v := os.Getenv("TOOLFLOW_STORE_DIR"); v != "" {
		s.StoreDir = v
	}
	if v := os.Getenv("TOOLFLOW_EVENT_DB"); v != "" {
		s.EventDBPath = v
	}
}
