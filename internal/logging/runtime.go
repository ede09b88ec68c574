package logging

import (
	"context"
	"log/slog"
)

// RuntimeAttrs computes attributes at the moment a record is handled, such as
// the active storage backend or whether the metrics sink is reachable.
type RuntimeAttrs func(ctx context.Context) []slog.Attr

// RuntimeHandler appends RuntimeAttrs to every record before passing it on.
type RuntimeHandler struct {
	slog.Handler
	attrs RuntimeAttrs
}

// WithRuntime decorates h. A nil attrs returns h unchanged.
func WithRuntime(h slog.Handler, attrs RuntimeAttrs) slog.Handler {
	if attrs == nil {
		return h
	}
	return &RuntimeHandler{Handler: h, attrs: attrs}
}

func (h *RuntimeHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h *RuntimeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RuntimeHandler{Handler: h.Handler.WithAttrs(attrs), attrs: h.attrs}
}

func (h *RuntimeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &RuntimeHandler{Handler: h.Handler.WithGroup(name), attrs: h.attrs}
}
