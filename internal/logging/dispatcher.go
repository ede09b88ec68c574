package logging

import "log/slog"

// DispatcherLogger satisfies dispatcher.Logger. The dispatcher only needs
// Debug, Info and Error, which *slog.Logger already provides.
type DispatcherLogger struct {
	*slog.Logger
}

// NewDispatcherLogger wraps logger. A nil logger uses slog.Default.
func NewDispatcherLogger(logger *slog.Logger) DispatcherLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return DispatcherLogger{Logger: logger}
}
