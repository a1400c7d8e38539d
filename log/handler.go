package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobridge-dev/gobridge/domain/entities"
)

// SinkHandler implements slog.Handler on top of a Sink, so code holding a
// *slog.Logger routes records through the handle's host callback.
type SinkHandler struct {
	sink   *Sink
	target string
	attrs  []slog.Attr
}

// HandlerOption configures a SinkHandler.
type HandlerOption func(*SinkHandler)

// WithTarget sets the target (component name) reported with each record.
func WithTarget(target string) HandlerOption {
	return func(h *SinkHandler) {
		h.target = target
	}
}

// NewHandler creates a SinkHandler writing to sink.
func NewHandler(sink *Sink, opts ...HandlerOption) *SinkHandler {
	h := &SinkHandler{sink: sink, target: "plugin"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewLogger is a convenience wrapper returning a *slog.Logger over a
// SinkHandler.
func NewLogger(sink *Sink, opts ...HandlerOption) *slog.Logger {
	return slog.New(NewHandler(sink, opts...))
}

// Enabled reports whether the sink would deliver records at this level.
// The sink re-checks at Handle time; this is the fast path for slog.
func (h *SinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return entities.LogLevelFromSlog(level) >= h.sink.Level()
}

// Handle formats the record and its attributes and emits it through the
// sink.
func (h *SinkHandler) Handle(_ context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Message)
	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})
	h.sink.Emit(entities.LogLevelFromSlog(rec.Level), h.target, b.String())
	return nil
}

// WithAttrs returns a handler that includes the given attributes on every
// record.
func (h *SinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &nh
}

// WithGroup returns a handler scoped to the group name. The group becomes
// the record target, which matches how hosts tag plugin log lines.
func (h *SinkHandler) WithGroup(name string) slog.Handler {
	nh := *h
	if name != "" {
		nh.target = h.target + "." + name
	}
	return &nh
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	fmt.Fprintf(b, " %s=%v", a.Key, a.Value.Any())
}
