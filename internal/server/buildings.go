package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/buildingco2/tracker/internal/catalog"
	"github.com/buildingco2/tracker/internal/storage"
	"github.com/buildingco2/tracker/pkg/core"
)

// errUnknownSortKey is returned for a waste sort column we do not know.
var errUnknownSortKey = errors.New("unknown sort key")

func (s *Server) writeNotFound(w http.ResponseWriter) {
	writeJSONWithStatus(w, map[string]any{"message": "Building not found"}, http.StatusNotFound)
}

func (s *Server) handleGetBuildings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := r.URL.Query().Get("id"); id != "" {
		b, err := s.deps.Backend.GetBuilding(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			s.writeNotFound(w)
			return
		}
		if err != nil {
			s.logger.Error("Error fetching building", "id", id, "error", err)
			writeJSONWithStatus(w, map[string]any{"message": "Error fetching data", "error": err.Error()}, http.StatusInternalServerError)
			return
		}
		writeJSON(w, b)
		return
	}

	buildings, err := s.deps.Backend.ListBuildings(ctx)
	if err != nil {
		s.logger.Error("Error listing buildings", "error", err)
		writeJSONWithStatus(w, map[string]any{"message": "Error fetching data", "error": err.Error()}, http.StatusInternalServerError)
		return
	}
	if buildings == nil {
		buildings = []core.Building{}
	}
	writeJSON(w, buildings)
}

func (s *Server) handlePatchBuilding(w http.ResponseWriter, r *http.Request) {
	var p core.BuildingPatch
	if err := decodeJSON(w, r, maxJSONBytes, &p); err != nil {
		writeJSONWithStatus(w, map[string]any{"message": "Invalid request body", "error": err.Error()}, bodyStatus(err))
		return
	}
	if p.ID == "" {
		writeJSONWithStatus(w, map[string]any{"message": "Building id is required"}, http.StatusBadRequest)
		return
	}

	b, err := s.deps.Backend.UpdateBuilding(r.Context(), p)
	switch {
	case err == nil:
		writeJSON(w, map[string]any{"message": "Building updated successfully", "result": b})
	case errors.Is(err, storage.ErrNotFound):
		s.writeNotFound(w)
	case errors.Is(err, core.ErrIndexOutOfRange), errors.Is(err, core.ErrUnknownOperation):
		writeJSONWithStatus(w, map[string]any{"message": "Error updating data", "error": err.Error()}, http.StatusBadRequest)
	default:
		s.logger.Error("Error updating building", "id", p.ID, "error", err)
		writeJSONWithStatus(w, map[string]any{"message": "Error updating data", "error": err.Error()}, http.StatusInternalServerError)
	}
}

// wasteEntryRequest is a manually entered disposal. Emissions are entered in
// grams and stored divided by 1000.
type wasteEntryRequest struct {
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	WasteCategory string    `json:"wasteCategory"`
	TrashcanID    string    `json:"trashcanID"`
	Grams         float64   `json:"grams"`
}

func (req wasteEntryRequest) point(now time.Time) (core.WasteDataPoint, error) {
	if req.Type == "" {
		return core.WasteDataPoint{}, fmt.Errorf("type is required")
	}
	if req.Grams < 0 {
		return core.WasteDataPoint{}, fmt.Errorf("grams must not be negative")
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return core.WasteDataPoint{
		Timestamp:     ts.UTC(),
		ItemType:      req.Type,
		WasteCategory: req.WasteCategory,
		TrashcanID:    req.TrashcanID,
		Emissions:     req.Grams / 1000,
	}, nil
}

func (s *Server) handleAddWaste(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req wasteEntryRequest
	if err := decodeJSON(w, r, maxJSONBytes, &req); err != nil {
		writeError(w, bodyStatus(err), "invalid request body: "+err.Error())
		return
	}
	p, err := req.point(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.deps.Backend.AppendWaste(r.Context(), id, p)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeNotFound(w)
		return
	}
	if err != nil {
		s.logger.Error("Error adding waste entry", "building", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONWithStatus(w, p, http.StatusCreated)
}

// indexedWaste carries the entry's position in the stored array so a sorted
// view can still target deleteWasteEntry.
type indexedWaste struct {
	Index int `json:"index"`
	core.WasteDataPoint
}

func sortWaste(entries []indexedWaste, key, dir string) error {
	var less func(a, b core.WasteDataPoint) bool
	switch key {
	case "":
		return nil
	case "timestamp":
		less = func(a, b core.WasteDataPoint) bool { return a.Timestamp.Before(b.Timestamp) }
	case "type":
		less = func(a, b core.WasteDataPoint) bool { return a.ItemType < b.ItemType }
	case "wasteCategory":
		less = func(a, b core.WasteDataPoint) bool { return a.WasteCategory < b.WasteCategory }
	case "trashcanID":
		less = func(a, b core.WasteDataPoint) bool { return a.TrashcanID < b.TrashcanID }
	case "emissions":
		less = func(a, b core.WasteDataPoint) bool { return a.Emissions < b.Emissions }
	default:
		return fmt.Errorf("%w: %s", errUnknownSortKey, key)
	}

	desc := dir == "desc" || dir == "descending"
	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(entries[j].WasteDataPoint, entries[i].WasteDataPoint)
		}
		return less(entries[i].WasteDataPoint, entries[j].WasteDataPoint)
	})
	return nil
}

func (s *Server) handleListWaste(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, err := s.deps.Backend.GetBuilding(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeNotFound(w)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]indexedWaste, len(b.WasteGeneration))
	for i, p := range b.WasteGeneration {
		entries[i] = indexedWaste{Index: i, WasteDataPoint: p}
	}
	q := r.URL.Query()
	if err := sortWaste(entries, q.Get("sort"), q.Get("dir")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleEmissions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEmissionsFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	b, err := s.deps.Backend.GetBuilding(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeNotFound(w)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, DailySeries(b, filter))
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, catalog.Items())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.deps.Monitor.GetProgramStatus())
}
