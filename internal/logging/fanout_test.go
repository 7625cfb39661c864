package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func jsonTo(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestNewFanoutCollapses(t *testing.T) {
	if _, ok := newFanout(nil, nil).(discard); !ok {
		t.Fatal("expected discard for no handlers")
	}
	var buf bytes.Buffer
	inner := jsonTo(&buf, slog.LevelInfo)
	if got := newFanout(nil, inner); got != inner {
		t.Fatalf("expected single handler unwrapped, got %T", got)
	}
}

func TestFanoutRoutesByLevel(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	logger := slog.New(newFanout(jsonTo(&infoBuf, slog.LevelInfo), jsonTo(&errBuf, slog.LevelError)))

	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be enabled through first member")
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be disabled for all members")
	}

	logger.Info("moved")
	logger.Error("sweep failed")

	if !strings.Contains(infoBuf.String(), "moved") || !strings.Contains(infoBuf.String(), "sweep failed") {
		t.Fatalf("info member missed records: %q", infoBuf.String())
	}
	if strings.Contains(errBuf.String(), "moved") || !strings.Contains(errBuf.String(), "sweep failed") {
		t.Fatalf("error member got wrong records: %q", errBuf.String())
	}
}

func TestFanoutCarriesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newFanout(jsonTo(&a, slog.LevelInfo), jsonTo(&b, slog.LevelInfo)))

	logger.With(String(FieldComponent, "sweeper")).WithGroup("run").Info("done", Int("expired", 2))

	for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
		out := buf.String()
		if !strings.Contains(out, `"component":"sweeper"`) || !strings.Contains(out, `"run":{"expired":2}`) {
			t.Fatalf("member %s missing attrs: %q", name, out)
		}
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutJoinsErrorsAndKeepsDelivering(t *testing.T) {
	var buf bytes.Buffer
	h := newFanout(failingHandler{jsonTo(&bytes.Buffer{}, slog.LevelInfo)}, jsonTo(&buf, slog.LevelInfo))

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "entry moved", 0)
	err := h.Handle(context.Background(), record)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(buf.String(), "entry moved") {
		t.Fatal("healthy member should still receive the record")
	}
}

func TestMinLevelFiltersBelowFloor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(minLevel{Handler: jsonTo(&buf, slog.LevelDebug), floor: slog.LevelWarn})

	logger.Info("quiet")
	logger.With(String("k", "v")).Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("unexpected output %q", out)
	}
}
