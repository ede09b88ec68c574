package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type ctxKey struct{}

func TestWithRuntime_AddsAttrsPerRecord(t *testing.T) {
	var buf bytes.Buffer
	valid := false
	h := WithRuntime(slog.NewTextHandler(&buf, nil), func(context.Context) []slog.Attr {
		return []slog.Attr{slog.Bool("influxValid", valid)}
	})
	logger := slog.New(h)

	logger.Info("first")
	valid = true
	logger.Info("second")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if assert.Len(t, lines, 2) {
		assert.Contains(t, string(lines[0]), "influxValid=false")
		assert.Contains(t, string(lines[1]), "influxValid=true")
	}
}

func TestWithRuntime_ReadsContext(t *testing.T) {
	var buf bytes.Buffer
	h := WithRuntime(slog.NewTextHandler(&buf, nil), func(ctx context.Context) []slog.Attr {
		if id, ok := ctx.Value(ctxKey{}).(string); ok {
			return []slog.Attr{slog.String("building", id)}
		}
		return nil
	})

	ctx := context.WithValue(context.Background(), ctxKey{}, "b1")
	slog.New(h).InfoContext(ctx, "waste entry added")

	assert.Contains(t, buf.String(), "building=b1")
}

func TestWithRuntime_NilProvider(t *testing.T) {
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	assert.Equal(t, inner, WithRuntime(inner, nil))
}

func TestRuntimeHandler_KeepsProviderThroughDerivation(t *testing.T) {
	var buf bytes.Buffer
	h := WithRuntime(slog.NewTextHandler(&buf, nil), func(context.Context) []slog.Attr {
		return []slog.Attr{slog.String("storage", "memory")}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("version", "0.0.1")})).Info("started")

	out := buf.String()
	assert.Contains(t, out, "version=0.0.1")
	assert.Contains(t, out, "storage=memory")
	assert.Same(t, h, h.WithGroup(""))
}
