package listener_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trashcan/internal/journal"
	"trashcan/internal/listener"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/trash"
)

type recordingMover struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *recordingMover) MoveIn(_ context.Context, source string) (trash.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, source)
	if m.err != nil {
		return trash.Entry{}, m.err
	}
	return trash.Entry{StoredName: filepath.Base(source), OriginalPath: source, AddedAt: time.Now()}, nil
}

func (m *recordingMover) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.paths)
}

type recorder struct {
	mu     sync.Mutex
	events []journal.Event
}

func (r *recorder) Record(_ context.Context, event journal.Event) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return int64(len(r.events)), nil
}

func (r *recorder) snapshot() []journal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func startServer(t *testing.T, mover listener.Mover, opts ...listener.Option) *listener.Server {
	t.Helper()
	srv, err := listener.New(context.Background(), "127.0.0.1:0", mover, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("listener.New: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return srv
}

func send(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEndToEndCollidingNames(t *testing.T) {
	store, err := trash.Open(filepath.Join(t.TempDir(), "trash"))
	if err != nil {
		t.Fatalf("trash.Open: %v", err)
	}
	events := &recorder{}
	collector := metrics.New(prometheus.NewRegistry())
	srv := startServer(t, store, listener.WithJournal(events), listener.WithMetrics(collector))

	first := filepath.Join(t.TempDir(), "foo.txt")
	second := filepath.Join(t.TempDir(), "foo.txt")
	if err := os.WriteFile(first, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	send(t, srv.Addr(), first+"\n")
	waitFor(t, "first move", func() bool { return len(events.snapshot()) == 1 })
	send(t, srv.Addr(), second+"\r\n\n")
	waitFor(t, "second move", func() bool { return len(events.snapshot()) == 2 })

	for name, want := range map[string]string{"foo.txt": "first", "foo.txt.1": "second"} {
		data, err := os.ReadFile(filepath.Join(store.FilesDir(), name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != want {
			t.Fatalf("%s = %q, want %q", name, data, want)
		}
		record, err := os.ReadFile(filepath.Join(store.InfoDir(), name))
		if err != nil {
			t.Fatalf("read record %s: %v", name, err)
		}
		entry, err := trash.ParseRecord(name, record)
		if err != nil {
			t.Fatalf("ParseRecord: %v", err)
		}
		if filepath.Base(entry.OriginalPath) != "foo.txt" {
			t.Fatalf("unexpected original path %q", entry.OriginalPath)
		}
	}
	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be moved, stat err=%v", path, err)
		}
	}
	for _, event := range events.snapshot() {
		if event.Kind != journal.KindMoved {
			t.Fatalf("unexpected event kind %q", event.Kind)
		}
	}
}

func TestInvalidPathsAreJournaledAndSessionContinues(t *testing.T) {
	mover := &recordingMover{err: trash.ErrInvalidPath}
	events := &recorder{}
	srv := startServer(t, mover, listener.WithJournal(events))

	send(t, srv.Addr(), "relative/path\n/abs/one\n")
	waitFor(t, "both lines", func() bool { return len(events.snapshot()) == 2 })

	if got := mover.received(); !slices.Equal(got, []string{"relative/path", "/abs/one"}) {
		t.Fatalf("received = %v", got)
	}
	for _, event := range events.snapshot() {
		if event.Kind != journal.KindMoveFailed || !strings.Contains(event.Detail, "invalid source path") {
			t.Fatalf("unexpected event %+v", event)
		}
	}
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	mover := &recordingMover{}
	srv := startServer(t, mover)

	send(t, srv.Addr(), "/tmp/bad\xffname\n")
	waitFor(t, "decoded path", func() bool { return len(mover.received()) == 1 })

	if got := mover.received()[0]; got != "/tmp/bad�name" {
		t.Fatalf("path = %q", got)
	}
}

func TestReadTimeoutDropsPartialLine(t *testing.T) {
	mover := &recordingMover{}
	srv := startServer(t, mover, listener.WithReadTimeout(100*time.Millisecond))

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("/tmp/complete\n/tmp/trunc")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "complete line", func() bool { return len(mover.received()) == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := mover.received(); !slices.Equal(got, []string{"/tmp/complete"}) {
		t.Fatalf("received = %v", got)
	}
}

func TestMaxRequestBytesDropsOverflow(t *testing.T) {
	mover := &recordingMover{}
	srv := startServer(t, mover, listener.WithMaxRequestBytes(int64(len("/tmp/a\n/tmp/b"))))

	send(t, srv.Addr(), "/tmp/a\n/tmp/b\n/tmp/c\n")
	waitFor(t, "first line", func() bool { return len(mover.received()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := mover.received(); !slices.Equal(got, []string{"/tmp/a"}) {
		t.Fatalf("received = %v", got)
	}
}

func TestShutdownClosesStalledSessions(t *testing.T) {
	mover := &recordingMover{}
	srv, err := listener.New(context.Background(), "127.0.0.1:0", mover, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	srv.Serve()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("/tmp/x\n")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown err = %v, want deadline exceeded", err)
	}
}

func TestSplitPaths(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		complete bool
		want     []string
	}{
		{name: "single", payload: "/a\n", complete: true, want: []string{"/a"}},
		{name: "no trailing newline", payload: "/a\n/b", complete: true, want: []string{"/a", "/b"}},
		{name: "crlf and blanks", payload: "/a\r\n\n\r\n/b\n", complete: true, want: []string{"/a", "/b"}},
		{name: "incomplete drops tail", payload: "/a\n/b", complete: false, want: []string{"/a"}},
		{name: "incomplete single line", payload: "/a", complete: false, want: nil},
		{name: "empty", payload: "", complete: true, want: nil},
		{name: "spaces kept", payload: " /a b \n", complete: true, want: []string{" /a b "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := listener.SplitPaths([]byte(tc.payload), tc.complete)
			if !slices.Equal(got, tc.want) {
				t.Fatalf("SplitPaths(%q) = %q, want %q", tc.payload, got, tc.want)
			}
		})
	}
}
