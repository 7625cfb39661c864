package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanout delivers each record to every member enabled for its level.
type fanout []slog.Handler

func newFanout(handlers ...slog.Handler) slog.Handler {
	members := make(fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			members = append(members, h)
		}
	}
	switch len(members) {
	case 0:
		return discard{}
	case 1:
		return members[0]
	default:
		return members
	}
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(derive func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = derive(h)
	}
	return out
}

// minLevel drops records below floor regardless of the wrapped handler's level.
type minLevel struct {
	slog.Handler
	floor slog.Level
}

func (m minLevel) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= m.floor && m.Handler.Enabled(ctx, level)
}

func (m minLevel) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < m.floor {
		return nil
	}
	return m.Handler.Handle(ctx, record)
}

func (m minLevel) WithAttrs(attrs []slog.Attr) slog.Handler {
	return minLevel{Handler: m.Handler.WithAttrs(attrs), floor: m.floor}
}

func (m minLevel) WithGroup(name string) slog.Handler {
	return minLevel{Handler: m.Handler.WithGroup(name), floor: m.floor}
}
