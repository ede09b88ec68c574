package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/buildingco2/tracker/internal/api"
	"github.com/buildingco2/tracker/internal/camera"
	"github.com/buildingco2/tracker/internal/catalog"
	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/detector"
	"github.com/buildingco2/tracker/internal/dispatcher"
	"github.com/buildingco2/tracker/internal/extract"
	"github.com/buildingco2/tracker/internal/geo"
	"github.com/buildingco2/tracker/internal/influx"
	"github.com/buildingco2/tracker/internal/logging"
	"github.com/buildingco2/tracker/internal/monitor"
	"github.com/buildingco2/tracker/internal/parser"
	"github.com/buildingco2/tracker/internal/recorder"
	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/internal/tracker"
	"github.com/buildingco2/tracker/internal/worker"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/spf13/viper"
)

// current is the running app, read by the log context provider.
var current atomic.Pointer[app]

// app holds the long-lived services shared by serve, scan and extract.
type app struct {
	backend    *storage.Cached
	dispatcher *dispatcher.Dispatcher
	influx     *influx.Manager
	workers    *worker.Manager
	recorder   *recorder.Recorder
	scanner    *scanner.Controller
	converter  *api.Client
	extract    *extract.Service
	monitor    *monitor.Service

	// onWaste is called after a disposal is persisted; serve points it at
	// the feed.
	onWaste func(buildingID string, p core.WasteDataPoint)
}

// newApp wires storage, the write path, trashcan mode and bill extraction.
func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	backend, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return nil, err
	}
	a.backend = backend

	a.dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	deps := worker.Dependencies{
		LogManager: SlogManager,
		OnWaste: func(buildingID string, p core.WasteDataPoint) {
			if a.onWaste != nil {
				a.onWaste(buildingID, p)
			}
		},
	}
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		backupPath := filepath.Join(viper.GetString("logsDir"), AppName+"_influx_backup.lp.gz")
		a.influx = influx.NewManager(influxCfg, ZLogger, backupPath)
		if err := a.influx.Connect(ctx); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
			a.influx = nil
		} else {
			deps.Metrics = a.influx
		}
	}

	recCfg := config.GetRecorderConfig()
	a.workers = worker.NewManager(deps, backend)
	a.workers.RegisterHandlers(a.dispatcher, recCfg.QueueSize)
	Logger.Info("Worker handlers registered with dispatcher")

	a.recorder = recorder.New(recCfg, a.dispatcher, nil, Logger)

	scanCfg := config.GetScannerConfig()
	a.scanner = scanner.NewController(a.sessionFactory(scanCfg), scanCfg.Interval, scanCfg.RecentLimit, Logger)

	extractCfg := config.GetExtractConfig()
	if extractCfg.ConverterURL != "" {
		a.converter = api.New(extractCfg.ConverterURL, extractCfg.ConverterSecret, extractCfg.Timeout)
		if err := a.converter.Healthcheck(ctx); err != nil {
			Logger.Warn("PDF converter is not reachable", "url", extractCfg.ConverterURL, "error", err)
		}
	}
	if extractCfg.APIKey != "" {
		gen, err := extract.NewGemini(ctx, extractCfg, "")
		if err != nil {
			Logger.Error("Failed to create bill extraction model", "error", err)
		} else {
			edeps := extract.Dependencies{
				Generator:  gen,
				Dispatcher: a.dispatcher,
				Config:     extractCfg,
				Logger:     Logger,
			}
			if a.converter != nil {
				edeps.Converter = a.converter
			}
			a.extract = extract.NewService(edeps)
		}
	} else {
		Logger.Warn("extract.apiKey is not set, bill extraction disabled")
	}

	a.monitor = monitor.NewService(monitor.Dependencies{
		LogManager:    SlogManager,
		WorkerManager: a.workers,
		Dispatcher:    a.dispatcher,
		Scanner:       a.scanner,
		Cache:         backend.Cache(),
		IsInfluxValid: func() bool { return a.influx != nil && a.influx.IsValid },
		StatusFile:    filepath.Join(viper.GetString("logsDir"), "status.json"),
	})

	current.Store(a)
	return a, nil
}

// sessionFactory builds a fresh camera, detector and tracker per session.
func (a *app) sessionFactory(scanCfg config.ScannerConfig) scanner.Factory {
	return func(buildingID string) (scanner.Dependencies, error) {
		if buildingID == "" {
			return scanner.Dependencies{}, recorder.ErrNoBuilding
		}
		size := camera.Size{Width: scanCfg.FrameWidth, Height: scanCfg.FrameHeight}

		src, err := newFrameSource(config.GetCameraConfig(), size)
		if err != nil {
			return scanner.Dependencies{}, err
		}

		detCfg := config.GetDetectorConfig()
		rf, err := detector.NewRoboflow(detector.RoboflowConfig{
			BaseURL: detCfg.BaseURL,
			Model:   detCfg.Model,
			Version: detCfg.Version,
			APIKey:  detCfg.APIKey,
			Timeout: detCfg.Timeout,
		}, parser.NewParser(Logger))
		if err != nil {
			_ = src.Close()
			return scanner.Dependencies{}, err
		}

		known := make(map[string]struct{})
		for _, it := range catalog.Items() {
			known[it.ID] = struct{}{}
		}

		trk := tracker.New(tracker.Config{
			ConfirmFrames: scanCfg.ConfirmFrames,
			StaleAfter:    scanCfg.StaleAfter,
			DisplayHold:   scanCfg.DisplayHold,
		}, geo.NewLayout(size.Width, size.Height))

		return scanner.Dependencies{
			Source:   src,
			Detector: detector.NewAdapter(rf, scanCfg.MinConfidence, Logger, detector.NewLabelFilter(known)),
			Tracker:  trk,
			Recorder: a.recorder.ForBuilding(buildingID),
			Logger:   Logger,
		}, nil
	}
}

func newFrameSource(camCfg config.CameraConfig, size camera.Size) (camera.Source, error) {
	switch camCfg.Type {
	case "directory":
		d, err := camera.NewDirectory(camCfg.Dir, size, camCfg.Loop, nil)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "snapshot", "":
		return camera.NewHTTPSnapshot(camCfg.URL, size, camCfg.Timeout, nil).WithMaxFailures(camCfg.MaxFailures), nil
	default:
		return nil, fmt.Errorf("unknown camera type %q", camCfg.Type)
	}
}

// Close stops sessions, drains queued writes and closes storage.
func (a *app) Close() {
	a.monitor.Stop()
	a.scanner.Stop()
	if a.extract != nil {
		a.extract.Close()
	}

	// Drain queued writes before the backend goes away.
	a.dispatcher.Close()

	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
	if err := a.backend.Close(); err != nil {
		Logger.Error("Failed to close storage", "error", err)
	}
	if exp, ok := a.backend.Unwrap().(storage.Exportable); ok {
		if path := exp.GetExportedFilePath(); path != "" {
			Logger.Info("Buildings exported", "path", path)
		}
	}
	stats := a.workers.Stats()
	Logger.Info("Shutdown complete", "persisted", stats.Persisted, "failed", stats.Failed)
	current.Store(nil)
}
