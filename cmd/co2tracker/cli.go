package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/extract"
	"github.com/buildingco2/tracker/internal/parser"
	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/internal/server"
	"github.com/buildingco2/tracker/internal/storage/memory"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	buildingID      string
	usageType       string
	commitUpload    bool
	extractParallel int
	verbose         bool
	exportPath      string
	compress        bool
)

var rootCmd = &cobra.Command{
	Use:   "co2tracker",
	Short: "Building CO2 dashboard backend",
	Long: `co2tracker serves per-building electricity, gas and waste data,
extracts usage from uploaded bills and runs trashcan mode, which watches a
camera and records classified disposals.`,
	SilenceUsage: true,
	Version:      CurrentVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and trashcan feed",
	RunE:  runServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run trashcan mode without the HTTP API",
	Long: `Polls the configured camera, tracks detections and records a disposal
each time an item enters its correct bin. Stops on Ctrl+C or when the camera
runs out of frames.`,
	RunE: runScan,
}

var extractCmd = &cobra.Command{
	Use:   "extract [bill file]...",
	Short: "Extract usage data points from utility bills",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExtract,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every building to a JSON file",
	RunE:  runExport,
}

var seedCmd = &cobra.Command{
	Use:   "seed [buildings.json]",
	Short: "Load buildings from a JSON file into storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ConfigDir, "config-dir", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log at debug level regardless of logLevel")

	scanCmd.Flags().StringVarP(&buildingID, "building", "b", "", "building to record disposals against (default recorder.buildingID)")

	extractCmd.Flags().StringVarP(&buildingID, "building", "b", "", "building the bill belongs to")
	extractCmd.Flags().StringVarP(&usageType, "type", "t", string(core.UsageElectricity), "usage type: electricity or gas")
	extractCmd.Flags().BoolVar(&commitUpload, "commit", false, "append the extracted points to the building")
	extractCmd.Flags().IntVarP(&extractParallel, "parallel", "p", 2, "bills extracted at once")
	_ = extractCmd.MarkFlagRequired("building")

	exportCmd.Flags().StringVarP(&exportPath, "out", "o", "buildings.json", "output file")
	exportCmd.Flags().BoolVar(&compress, "gzip", false, "gzip the output")

	rootCmd.AddCommand(serveCmd, scanCmd, extractCmd, exportCmd, seedCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := config.GetServerConfig()
	deps := server.Dependencies{
		Backend:           a.backend,
		Extract:           a.extract,
		Scanner:           a.scanner,
		Monitor:           a.monitor,
		Config:            srvCfg,
		DefaultBuildingID: config.GetRecorderConfig().BuildingID,
		Logger:            Logger,
	}
	if a.converter != nil {
		deps.Converter = a.converter
	}
	if srvCfg.Metrics {
		deps.Metrics = a.scanner.Metrics().Handler()
	}
	srv := server.New(deps)
	a.onWaste = srv.NotifyDisposal

	if err := a.monitor.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}

	if config.GetScannerConfig().AutoStart && deps.DefaultBuildingID != "" {
		if err := a.scanner.Start(ctx, deps.DefaultBuildingID); err != nil {
			Logger.Error("Failed to auto-start trashcan mode", "error", err)
		}
	}

	return srv.ListenAndServe(ctx)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if buildingID == "" {
		buildingID = config.GetRecorderConfig().BuildingID
	}
	if buildingID == "" {
		return errors.New("no building given; pass --building or set recorder.buildingID")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snaps, unsubscribe := a.scanner.Hub().Subscribe(16)
	defer unsubscribe()
	go func() {
		for snap := range snaps {
			for _, ev := range snap.Disposals {
				Logger.Info("Disposal", "item", ev.ItemType, "bin", ev.Bin, "confirmed", ev.Confirmed)
			}
		}
	}()

	if err := a.scanner.Start(ctx, buildingID); err != nil {
		return err
	}
	Logger.Info("Trashcan mode running", "building", buildingID)

	err = a.scanner.Wait()
	printScanSummary(cmd, a.scanner.Status())
	return err
}

func printScanSummary(cmd *cobra.Command, st scanner.Status) {
	m := st.Metrics
	fmt.Fprintf(cmd.OutOrStdout(), "cycles=%d detections=%d disposals=%d misses=%d inferenceErrors=%d recordErrors=%d\n",
		m.Cycles, m.Detections, m.Disposals, m.Misses, m.InferenceErrors, m.RecordErrors)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	bills := make([][]byte, len(args))
	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read bill %s: %w", path, err)
		}
		bills[i] = data
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.extract == nil {
		return errors.New("bill extraction is not configured; set extract.apiKey")
	}

	jobs := make([]extract.Job, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractParallel)
	for i, path := range args {
		g.Go(func() error {
			job, err := a.extract.Extract(gctx, buildingID, core.UsageType(usageType), filepath.Base(path), bills[i])
			if err != nil {
				return fmt.Errorf("extraction of %s failed: %w", path, err)
			}
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var points []parser.UsagePoint
	for _, job := range jobs {
		points = append(points, job.Points...)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(points); err != nil {
		return err
	}

	if commitUpload {
		for _, job := range jobs {
			if _, err := a.extract.Commit(job.ID); err != nil {
				return err
			}
		}
		Logger.Info("Extracted points queued", "building", buildingID, "bills", len(jobs), "count", len(points))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	backend, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}
	defer backend.Close()

	buildings, err := backend.ListBuildings(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list buildings: %w", err)
	}
	if err := memory.WriteBuildings(exportPath, buildings, compress); err != nil {
		return err
	}
	Logger.Info("Exported buildings", "path", exportPath, "count", len(buildings))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	buildings, err := memory.ReadBuildings(args[0])
	if err != nil {
		return err
	}

	backend, err := openStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}
	defer backend.Close()

	for _, b := range buildings {
		if err := backend.PutBuilding(cmd.Context(), b); err != nil {
			return fmt.Errorf("failed to store building %s: %w", b.ID, err)
		}
	}
	Logger.Info("Seeded buildings", "file", args[0], "count", len(buildings))
	return nil
}
