package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/buildingco2/tracker"

// Indirections for tests.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// Options configures SlogManager.Setup.
type Options struct {
	// File receives the text output. Nil writes to stdout instead.
	File  io.Writer
	Level string
	// Provider enables the OpenTelemetry bridge when set.
	Provider *sdklog.LoggerProvider
	// Sinks receive every record next to the text output.
	Sinks []slog.Handler
}

// SlogManager owns the process logger. The level is shared by every Setup
// and can be changed at runtime with SetLevel.
type SlogManager struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
	level    slog.LevelVar
}

// NewSlogManager returns a manager that logs through slog.Default until
// Setup is called.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Setup replaces the logger. Records already written to a previous File stay
// there.
func (m *SlogManager) Setup(opts Options) {
	m.level.Set(ParseLevel(opts.Level))

	out := opts.File
	if out == nil {
		out = osStdout
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: &m.level, ReplaceAttr: utcTime}),
	}
	handlers = append(handlers, opts.Sinks...)
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(opts.Provider)))
	}

	logger := slog.New(NewFanout(handlers...))
	m.mu.Lock()
	m.logger = logger
	m.provider = opts.Provider
	m.mu.Unlock()

	logger.Info("Logging initialized", "level", m.level.Level().String(), "sinks", len(opts.Sinks), "otel", opts.Provider != nil)
}

// SetLevel changes the level of the text output.
func (m *SlogManager) SetLevel(name string) {
	m.level.Set(ParseLevel(name))
}

// Level reports the current level of the text output.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OpenTelemetry records to the exporter.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.RLock()
	p := m.provider
	m.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p.ForceFlush(ctx)
}

// WriteLog logs msg at the named level, tagged with the component that
// produced it. Used by code that reports through a level string, such as the
// GORM storage logger.
func (m *SlogManager) WriteLog(component, msg, level string) {
	m.Logger().Log(context.Background(), ParseLevel(level), msg, "component", component)
}
