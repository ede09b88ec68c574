package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/buildingco2/tracker/internal/scanner"
	"github.com/buildingco2/tracker/pkg/core"
	"github.com/buildingco2/tracker/pkg/streaming"
)

type startRequest struct {
	BuildingID string `json:"buildingId"`
}

func (s *Server) handleTrashcanStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		writeUnavailable(w, "trashcan mode")
		return
	}
	writeJSON(w, s.deps.Scanner.Status())
}

func (s *Server) handleTrashcanStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		writeUnavailable(w, "trashcan mode")
		return
	}
	var req startRequest
	if err := decodeJSON(w, r, maxJSONBytes, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, bodyStatus(err), "invalid request body: "+err.Error())
		return
	}
	if req.BuildingID == "" {
		req.BuildingID = s.deps.DefaultBuildingID
	}
	if req.BuildingID == "" {
		writeError(w, http.StatusBadRequest, "buildingId is required")
		return
	}

	// Sessions outlive the request; they end on stop or server close.
	err := s.deps.Scanner.Start(s.ctx, req.BuildingID)
	if errors.Is(err, scanner.ErrRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to start trashcan mode", "building", req.BuildingID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("Trashcan mode started", "building", req.BuildingID)
	writeJSON(w, s.deps.Scanner.Status())
}

func (s *Server) handleTrashcanStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		writeUnavailable(w, "trashcan mode")
		return
	}
	s.deps.Scanner.Stop()
	s.logger.Info("Trashcan mode stopped")
	writeJSON(w, s.deps.Scanner.Status())
}

// NotifyDisposal tells feed clients about a persisted disposal.
func (s *Server) NotifyDisposal(buildingID string, p core.WasteDataPoint) {
	msg, err := streaming.NewEnvelope(streaming.TypeDisposal, streaming.DisposalPayload{BuildingID: buildingID, Point: p})
	if err != nil {
		s.logger.Error("Failed to encode disposal", "error", err)
		return
	}
	s.feed.broadcast(msg)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		writeUnavailable(w, "trashcan mode")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("Feed upgrade failed", "error", err)
		return
	}

	fc := newFeedConn(conn, s.logger)
	s.feed.add(fc)
	defer s.feed.remove(fc)

	snaps, unsubscribe := s.deps.Scanner.Hub().Subscribe(feedSendBuffer)
	defer unsubscribe()

	go fc.writeLoop()
	go fc.readLoop()

	st := s.deps.Scanner.Status()
	if msg, err := streaming.NewEnvelope(streaming.TypeStatus, streaming.StatusPayload{
		Running:    st.Running,
		BuildingID: st.BuildingID,
		StartedAt:  st.StartedAt,
	}); err == nil {
		fc.send(msg)
	}

	for {
		select {
		case <-fc.done:
			return
		case <-s.ctx.Done():
			fc.close()
			return
		case snap, ok := <-snaps:
			if !ok {
				fc.close()
				return
			}
			msg, err := streaming.NewEnvelope(streaming.TypeSnapshot, snap)
			if err != nil {
				s.logger.Error("Failed to encode snapshot", "error", err)
				continue
			}
			fc.send(msg)
		}
	}
}
