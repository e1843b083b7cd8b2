package monitor

import (
	"log/slog"

	"github.com/strand-labs/toolflow"
)

// LogHandler returns an event handler that renders events through a
// slog.Logger. Warnings and failures log at their matching levels; the
// high-volume lifecycle events log at debug so default output stays terse.
func LogHandler(logger *slog.Logger) toolflow.EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e toolflow.Event) {
		attrs := []any{
			"run_id", e.RunID,
			"path", e.Path,
		}
		if text, ok := e.Payload["text"].(string); ok {
			attrs = append(attrs, "text", text)
		}
		if errText, ok := e.Payload["error"].(string); ok {
			attrs = append(attrs, "error", errText)
		}
		if e.Elapsed > 0 {
			attrs = append(attrs, "elapsed", e.Elapsed)
		}

		switch e.Kind {
		case toolflow.EventRunStarted, toolflow.EventRunFinished:
			logger.Info(e.Kind.String(), attrs...)
		case toolflow.EventRunFailed, toolflow.EventToolFailed:
			logger.Error(e.Kind.String(), attrs...)
		case toolflow.EventToolWarning:
			logger.Warn(e.Kind.String(), attrs...)
		case toolflow.EventToolStarted, toolflow.EventToolFinished, toolflow.EventToolReused:
			logger.Info(e.Kind.String(), attrs...)
		default:
			logger.Debug(e.Kind.String(), attrs...)
		}
	}
}
