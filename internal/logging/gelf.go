package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// GELFSink ships log records to Graylog over UDP.
type GELFSink struct {
	writer  *gelf.Writer
	handler slog.Handler
}

// NewGELFSink dials addr (host:port) and returns a sink whose handler
// writes JSON records at or above level.
func NewGELFSink(addr, level string) (*GELFSink, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer: %w", err)
	}
	w.Facility = "co2tracker"
	return &GELFSink{
		writer:  w,
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}),
	}, nil
}

// Handler returns the slog handler to pass to Setup.
func (s *GELFSink) Handler() slog.Handler {
	return s.handler
}

// Close releases the UDP socket.
func (s *GELFSink) Close() error {
	return s.writer.Close()
}
