package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buildingco2/tracker/internal/parser"
	"github.com/buildingco2/tracker/pkg/core"
)

// RoboflowConfig locates a hosted detection model.
type RoboflowConfig struct {
	BaseURL string
	Model   string
	Version int
	APIKey  string
	Timeout time.Duration
}

// Roboflow calls a hosted inference endpoint with a base64 JPEG body.
type Roboflow struct {
	endpoint   string
	httpClient *http.Client
	parser     *parser.Parser
}

// NewRoboflow creates a client for cfg.
func NewRoboflow(cfg RoboflowConfig, p *parser.Parser) (*Roboflow, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("roboflow: base URL and model are required")
	}
	if cfg.Version <= 0 {
		cfg.Version = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	q := url.Values{}
	q.Set("api_key", cfg.APIKey)
	q.Set("format", "json")

	return &Roboflow{
		endpoint: fmt.Sprintf("%s/%s/%d?%s",
			strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.Model), cfg.Version, q.Encode()),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		parser:     p,
	}, nil
}

// Detect implements Detector.
func (r *Roboflow) Detect(ctx context.Context, frame core.Frame) ([]core.Detection, error) {
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	body := base64.StdEncoding.EncodeToString(frame.Data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference returned status %d", resp.StatusCode)
	}
	return r.parser.ParseDetections(data)
}
