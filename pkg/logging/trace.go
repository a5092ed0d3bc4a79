package logging

import "log/slog"

// EnableTrace turns on candidate-level logging. Off by default: a single
// cell can produce hundreds of lines.
var EnableTrace = false

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
