package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/buildingco2/tracker/internal/api"
	"github.com/buildingco2/tracker/internal/extract"
	"github.com/buildingco2/tracker/pkg/core"
)

// readUpload pulls the "file" part out of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := s.deps.Config.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("no file uploaded: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return hdr.Filename, data, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extract == nil {
		writeUnavailable(w, "extraction")
		return
	}
	filename, data, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage := core.UsageType(r.FormValue("type"))
	job, err := s.deps.Extract.Submit(r.FormValue("buildingId"), usage, filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("Bill upload accepted", "job", job.ID, "building", job.BuildingID, "type", job.Type)
	writeJSONWithStatus(w, job, http.StatusAccepted)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extract == nil {
		writeUnavailable(w, "extraction")
		return
	}
	writeJSON(w, s.deps.Extract.List())
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extract == nil {
		writeUnavailable(w, "extraction")
		return
	}
	job, ok := s.deps.Extract.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, extract.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleCommitUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extract == nil {
		writeUnavailable(w, "extraction")
		return
	}
	job, err := s.deps.Extract.Commit(r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, job)
	case errors.Is(err, extract.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, extract.ErrNotComplete), errors.Is(err, extract.ErrAlreadyCommitted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Error committing upload", "job", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type chatRequest struct {
	ImageURL string `json:"imageURL"`
	Type     string `json:"type"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Extract == nil {
		writeUnavailable(w, "extraction")
		return
	}
	// The image travels inline as a data URL, so chat gets the upload limit.
	var req chatRequest
	if err := decodeJSON(w, r, s.deps.Config.MaxUploadMB<<20, &req); err != nil {
		writeError(w, bodyStatus(err), "invalid request body: "+err.Error())
		return
	}
	if req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "No image URL provided")
		return
	}
	data, mimeType, err := api.DecodeDataURL(req.ImageURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	usage := core.UsageType(req.Type)
	if usage == "" {
		usage = core.UsageElectricity
	}

	answer, err := s.deps.Extract.Describe(r.Context(), extract.Document{Data: data, MIMEType: mimeType}, usage)
	if errors.Is(err, extract.ErrInvalidUsageType) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Error processing chat", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"response": answer})
}

func (s *Server) handlePDFToImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Converter == nil {
		writeUnavailable(w, "converter")
		return
	}
	filename, data, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pages, err := s.deps.Converter.Convert(r.Context(), filename, bytes.NewReader(data))
	if err != nil {
		s.logger.Error("Error processing PDF", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process PDF")
		return
	}
	images := make([]string, 0, len(pages))
	for _, p := range pages {
		images = append(images, api.EncodeDataURL(p.Data, p.MIMEType))
	}
	writeJSON(w, map[string]any{"message": "PDF converted successfully", "images": images})
}
