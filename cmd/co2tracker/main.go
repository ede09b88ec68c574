package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/logging"
	intOtel "github.com/buildingco2/tracker/internal/otel"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "co2tracker"
)

// global variables
var (
	// ConfigDir holds co2tracker.cfg.json
	ConfigDir string

	LogFilePath string
	LogFile     *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is handed to the connection managers (database, influx)
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	gelfSink *logging.GELFSink

	SessionStartTime time.Time = time.Now()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and brings up logging. Everything after this
// logs through Logger.
func setup() error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(ConfigDir); err != nil {
		if !config.IsNotFound(err) {
			return fmt.Errorf("failed to load config: %w", err)
		}
		Logger.Warn("Config file not found, using defaults", "dir", ConfigDir)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		_ = os.Rename(LogFilePath, LogFilePath+".old")
	}
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	level := viper.GetString("logLevel")
	if verbose {
		level = "debug"
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
	if LogFile != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: LogFile, TimeFormat: time.RFC3339, NoColor: true})
	}
	ZLogger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Str("app", AppName).Logger()
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
		ZLogger = ZLogger.Level(lvl)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		pc := intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if LogFile != nil {
			pc.LogWriter = LogFile
		}
		OTelProvider, err = intOtel.New(context.Background(), pc)
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	opts := logging.Options{Level: level}
	if LogFile != nil {
		opts.File = LogFile
	}
	if OTelProvider != nil {
		opts.Provider = OTelProvider.LoggerProvider()
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		gelfSink, err = logging.NewGELFSink(gl.Address, level)
		if err != nil {
			Logger.Error("Failed to initialize GELF sink", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, logging.WithRuntime(gelfSink.Handler(), runtimeAttrs))
		}
	}

	// Re-setup logging with file output and optional OTel
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger().With("version", CurrentVersion)
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", LogFilePath, "configDir", absPath(ConfigDir))
	return nil
}

// runtimeAttrs is attached to every record shipped to Graylog.
func runtimeAttrs(context.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("storage", viper.GetString("storage.type"))}
	if a := current.Load(); a != nil {
		attrs = append(attrs, slog.Bool("influxValid", a.influx != nil && a.influx.IsValid))
	}
	return attrs
}

func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if gelfSink != nil {
		_ = gelfSink.Close()
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
