package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

var _ slog.Handler = (*Handler)(nil)

// Handler is a slog.Handler that passes records to the next handler and
// reports each of them as a PROGRESS event for one scraper.
type Handler struct {
	next   slog.Handler
	sink   Sink
	id     string
	attrs  []slog.Attr
	prefix string
}

// NewHandler returns a Handler forwarding records of scraper id to sink.
func NewHandler(sink Sink, id string, next slog.Handler) *Handler {
	if sink == nil {
		sink = Discard
	}
	return &Handler{
		next: next,
		sink: sink,
		id:   id,
	}
}

// NewLogger is a shorthand for a logger built on NewHandler.
func NewLogger(sink Sink, id string, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.New(NewHandler(sink, id, base.Handler()))
}

// Enabled always accepts Info and above so that every progress line reaches
// the sink even when the text log is filtered more strictly.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	var cause error
	var b strings.Builder
	b.WriteString(record.Message)

	add := func(prefix string, a slog.Attr) {
		a.Value = a.Value.Resolve()
		if err, ok := a.Value.Any().(error); ok && cause == nil {
			cause = err
		}
		fmt.Fprintf(&b, " %s%s=%s", prefix, a.Key, a.Value.String())
	}
	// Stored attrs already carry the group prefix they were added under.
	for _, a := range h.attrs {
		add("", a)
	}
	record.Attrs(func(a slog.Attr) bool {
		add(h.prefix, a)
		return true
	})

	h.sink.Report(Event{
		ScraperID: h.id,
		Kind:      Progress,
		Message:   b.String(),
		TS:        record.Time,
		Cause:     cause,
	})

	if !h.next.Enabled(ctx, record.Level) {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}
