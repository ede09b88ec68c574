// Package server exposes buildings, uploads and trashcan mode over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/buildingco2/tracker/internal/config"
	"github.com/buildingco2/tracker/internal/extract"
	"github.com/buildingco2/tracker/internal/monitor"
	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/internal/storage"
	ws "github.com/gorilla/websocket"
	"github.com/rs/cors"
)

const (
	defaultMaxUploadMB = 20
	maxJSONBytes       = 1 << 20
	shutdownTimeout    = 10 * time.Second
)

// Dependencies holds everything the HTTP surface talks to. Only Backend is
// required; routes whose dependency is nil answer 503.
type Dependencies struct {
	Backend   storage.Backend
	Extract   *extract.Service
	Converter extract.Converter
	Scanner   *scanner.Controller
	Monitor   *monitor.Service
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Config  config.ServerConfig
	// DefaultBuildingID is used by trashcan start when the request names none.
	DefaultBuildingID string
	Logger            *slog.Logger
}

// Server serves the dashboard API.
type Server struct {
	deps     Dependencies
	logger   *slog.Logger
	upgrader ws.Upgrader
	feed     *feed

	// ctx bounds sessions started over HTTP and open feed connections.
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a configured server.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.MaxUploadMB <= 0 {
		deps.Config.MaxUploadMB = defaultMaxUploadMB
	}
	if len(deps.Config.CORSOrigins) == 0 {
		deps.Config.CORSOrigins = []string{"*"}
	}
	if deps.Monitor == nil {
		deps.Monitor = monitor.NewService(monitor.Dependencies{Scanner: deps.Scanner})
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:   deps,
		logger: deps.Logger,
		feed:   newFeed(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/buildings", s.handleGetBuildings)
	mux.HandleFunc("PATCH /api/buildings", s.handlePatchBuilding)
	mux.HandleFunc("GET /api/buildings/{id}/waste", s.handleListWaste)
	mux.HandleFunc("POST /api/buildings/{id}/waste", s.handleAddWaste)
	mux.HandleFunc("GET /api/buildings/{id}/emissions", s.handleEmissions)

	mux.HandleFunc("GET /api/uploads", s.handleListUploads)
	mux.HandleFunc("POST /api/uploads", s.handleUpload)
	mux.HandleFunc("GET /api/uploads/{id}", s.handleGetUpload)
	mux.HandleFunc("POST /api/uploads/{id}/commit", s.handleCommitUpload)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/pdf-to-image", s.handlePDFToImage)

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	mux.HandleFunc("GET /api/trashcan", s.handleTrashcanStatus)
	mux.HandleFunc("POST /api/trashcan/start", s.handleTrashcanStart)
	mux.HandleFunc("POST /api/trashcan/stop", s.handleTrashcanStop)
	mux.HandleFunc("GET /api/trashcan/feed", s.handleFeed)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.deps.Config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.deps.Config.Addr,
		Handler:     s.Handler(),
		ReadTimeout: s.deps.Config.ReadTimeout,
		// Feed connections manage their own write deadlines.
		WriteTimeout: s.deps.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close drops feed connections and stops a session started over HTTP.
func (s *Server) Close() {
	s.cancel()
	s.feed.closeAll()
	if s.deps.Scanner != nil {
		s.deps.Scanner.Stop()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.deps.Config.CORSOrigins, "*") || slices.Contains(s.deps.Config.CORSOrigins, origin)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONWithStatus(w, map[string]any{"error": msg}, status)
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}

// decodeJSON reads at most limit bytes of JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return json.NewDecoder(r.Body).Decode(v)
}

// bodyStatus maps a decodeJSON error to a response status.
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
