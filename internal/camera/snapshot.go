package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/buildingco2/tracker/pkg/core"
)

// DefaultMaxFailures is how many snapshots in a row may fail before the
// camera is reported as unavailable.
const DefaultMaxFailures = 3

// HTTPSnapshot fetches a still image from an IP camera for every frame.
// Until the first good frame any failure is final. After that, failures are
// reported as ErrFrameSkipped until maxFailures of them come in a row.
type HTTPSnapshot struct {
	url         string
	size        Size
	httpClient  *http.Client
	clock       clock.Clock
	maxFailures int
	failures    atomic.Int32
	seq         atomic.Uint64
	closed      atomic.Bool
}

// NewHTTPSnapshot creates a snapshot source for url.
func NewHTTPSnapshot(url string, size Size, timeout time.Duration, clk clock.Clock) *HTTPSnapshot {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.New()
	}
	return &HTTPSnapshot{
		url:         url,
		size:        size.orDefault(),
		httpClient:  &http.Client{Timeout: timeout},
		clock:       clk,
		maxFailures: DefaultMaxFailures,
	}
}

// WithMaxFailures sets the consecutive failure limit. Values below one mean
// every failure is final.
func (s *HTTPSnapshot) WithMaxFailures(n int) *HTTPSnapshot {
	s.maxFailures = max(n, 1)
	return s
}

// Frame implements Source.
func (s *HTTPSnapshot) Frame(ctx context.Context) (core.Frame, error) {
	if s.closed.Load() {
		return core.Frame{}, ErrClosed
	}
	data, err := s.fetch(ctx)
	if err != nil {
		return core.Frame{}, s.fail(ctx, err)
	}
	s.failures.Store(0)
	return core.Frame{
		Data:      data,
		Width:     s.size.Width,
		Height:    s.size.Height,
		Timestamp: s.clock.Now(),
		Seq:       s.seq.Add(1),
	}, nil
}

func (s *HTTPSnapshot) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil || s.seq.Load() == 0 {
		return err
	}
	n := int(s.failures.Add(1))
	if n >= s.maxFailures {
		return fmt.Errorf("%d snapshots failed in a row: %w", n, err)
	}
	return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
}

func (s *HTTPSnapshot) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return normalize(raw, s.size)
}

// Close implements Source.
func (s *HTTPSnapshot) Close() error {
	s.closed.Store(true)
	s.httpClient.CloseIdleConnections()
	return nil
}
