// Package logging wires the process logger: a text handler for the console or
// session log file, plus optional sinks (Graylog, OpenTelemetry) that see
// every record.
package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

const sessionStampLayout = "20060102_150405"

// SessionFileName names the log file of one run, e.g.
// co2tracker.20260212_213836.log.
func SessionFileName(app string, start time.Time) string {
	return fmt.Sprintf("%s.%s.log", app, start.Format(sessionStampLayout))
}

// LogFilePath joins logsDir with SessionFileName.
func LogFilePath(logsDir, app string, start time.Time) string {
	return filepath.Join(logsDir, SessionFileName(app, start))
}

// ParseLevel reads a level name such as "debug" or "WARN". Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcTime renders record times as RFC3339 in UTC.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}
