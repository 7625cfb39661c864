// Package listener accepts client connections on the loopback trash port and
// moves every path a client sends into the store.
//
// The wire protocol is one absolute path per line. The client half-closes its
// write side when done and the daemon never answers. Invalid UTF-8 is replaced
// rather than rejected.
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"trashcan/internal/journal"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/trash"
)

// Mover moves one source path into the store.
type Mover interface {
	MoveIn(ctx context.Context, source string) (trash.Entry, error)
}

// EventRecorder journals move outcomes.
type EventRecorder interface {
	Record(ctx context.Context, event journal.Event) (int64, error)
}

// Server accepts trash requests over TCP.
type Server struct {
	mover       Mover
	logger      *slog.Logger
	journal     EventRecorder
	metrics     *metrics.Collector
	readTimeout time.Duration
	maxBytes    int64
	now         func() time.Time

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Option customizes a Server.
type Option func(*Server)

// WithJournal records moved and move_failed events.
func WithJournal(recorder EventRecorder) Option {
	return func(s *Server) { s.journal = recorder }
}

// WithMetrics counts connections and move outcomes.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) { s.metrics = collector }
}

// WithReadTimeout bounds how long a client may take to send its stream.
// Zero disables the deadline.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.readTimeout = timeout }
}

// WithMaxRequestBytes bounds the bytes read from one connection. Zero or
// negative disables the bound.
func WithMaxRequestBytes(limit int64) Option {
	return func(s *Server) { s.maxBytes = limit }
}

// New binds addr and returns a server ready to Serve.
func New(ctx context.Context, addr string, mover Mover, logger *slog.Logger, opts ...Option) (*Server, error) {
	if mover == nil {
		return nil, errors.New("listener requires a mover")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		mover:    mover,
		logger:   logging.NewComponentLogger(logger, "listener"),
		now:      time.Now,
		listener: ln,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve starts accepting connections in the background until Close or
// Shutdown is called.
func (s *Server) Serve() {
	s.logger.Info("trash listener ready",
		logging.String(logging.FieldEventType, "listener_ready"),
		logging.String("address", s.listener.Addr().String()),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "a client may fail to connect"),
					logging.String(logging.FieldErrorHint, "check file descriptor limits and restart the daemon if it persists"),
				)
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.handle(c)
			}(conn)
		}
	}()
}

// Close stops accepting and waits for in-flight sessions to finish.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.wg.Wait()
}

// Shutdown stops accepting and waits for in-flight sessions until ctx is
// done, after which remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	_ = s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	// Moves already received must complete even while the daemon shuts down.
	ctx := logging.WithConnID(context.WithoutCancel(s.ctx), uuid.NewString())
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldRemoteAddr, conn.RemoteAddr().String()),
	)

	payload, complete := s.readStream(conn, logger)
	paths := SplitPaths(payload, complete)
	logger.Debug("client stream received",
		logging.Int("bytes", len(payload)),
		logging.Int("paths", len(paths)),
	)

	moved := 0
	for _, path := range paths {
		if s.moveOne(ctx, logger, path) {
			moved++
		}
	}
	if len(paths) > 0 {
		logger.Info("client session complete",
			logging.String(logging.FieldEventType, "session_complete"),
			logging.Int("paths", len(paths)),
			logging.Int("moved", moved),
		)
	}
}

// readStream reads the client stream until EOF and decodes it with invalid
// UTF-8 replaced. It reports complete=false when the stream was cut short by
// the deadline, the byte limit, or a read error; the trailing partial line is
// then discarded by SplitPaths.
func (s *Server) readStream(conn net.Conn, logger *slog.Logger) ([]byte, bool) {
	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(s.now().Add(s.readTimeout))
	}

	var src io.Reader = conn
	if s.maxBytes > 0 {
		src = io.LimitReader(conn, s.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	complete := true
	switch {
	case err != nil:
		complete = false
		logging.WarnWithContext(logger, "client stream interrupted", "stream_read_failed",
			logging.Error(err),
			logging.Int("bytes", len(raw)),
			logging.String(logging.FieldImpact, "the unterminated final path is ignored"),
			logging.String(logging.FieldErrorHint, "clients must close their write side after the last path"),
		)
	case s.maxBytes > 0 && int64(len(raw)) > s.maxBytes:
		complete = false
		raw = raw[:s.maxBytes]
		logging.WarnWithContext(logger, "client stream exceeds size limit", "stream_too_large",
			logging.Int64("limit_bytes", s.maxBytes),
			logging.String(logging.FieldImpact, "paths past the limit are ignored"),
			logging.String(logging.FieldErrorHint, "raise daemon.max_request_bytes or send fewer paths per connection"),
		)
	}
	return Decode(raw), complete
}

// Decode replaces ill-formed UTF-8 sequences with U+FFFD.
func Decode(raw []byte) []byte {
	decoded, _, err := transform.Bytes(runes.ReplaceIllFormed(), raw)
	if err != nil {
		return raw
	}
	return decoded
}

func (s *Server) moveOne(ctx context.Context, logger *slog.Logger, path string) bool {
	entry, err := s.mover.MoveIn(ctx, path)
	result := classify(err)
	s.metrics.ObserveMove(result)

	switch result {
	case metrics.MoveResultMoved:
		logger.Info("moved to trash",
			logging.String(logging.FieldEventType, "entry_moved"),
			logging.String(logging.FieldSourcePath, entry.OriginalPath),
			logging.String(logging.FieldStoredName, entry.StoredName),
		)
		s.record(ctx, logger, journal.Event{
			Kind:         journal.KindMoved,
			StoredName:   entry.StoredName,
			OriginalPath: entry.OriginalPath,
			OccurredAt:   entry.AddedAt,
		})
		return true
	case metrics.MoveResultRecordFailed:
		logging.WarnWithContext(logger, "moved without committed record", "record_failed",
			logging.String(logging.FieldSourcePath, path),
			logging.String(logging.FieldStoredName, entry.StoredName),
			logging.Error(err),
			logging.String(logging.FieldImpact, "record stays pending until the next daemon start"),
			logging.String(logging.FieldErrorHint, "check free space and permissions under trash_dir/info"),
		)
		if entry.StoredName == "" {
			s.record(ctx, logger, journal.Event{
				Kind:         journal.KindMoveFailed,
				OriginalPath: path,
				OccurredAt:   s.now(),
				Detail:       err.Error(),
			})
			return false
		}
		s.record(ctx, logger, journal.Event{
			Kind:         journal.KindMoved,
			StoredName:   entry.StoredName,
			OriginalPath: entry.OriginalPath,
			OccurredAt:   entry.AddedAt,
			Detail:       err.Error(),
		})
		return true
	default:
		logging.WarnWithContext(logger, "move to trash failed", "move_failed",
			logging.String(logging.FieldSourcePath, path),
			logging.Error(err),
			logging.String("result", result),
			logging.String(logging.FieldImpact, "the file was left in place"),
			logging.String(logging.FieldErrorHint, hintFor(result)),
		)
		s.record(ctx, logger, journal.Event{
			Kind:         journal.KindMoveFailed,
			OriginalPath: path,
			OccurredAt:   s.now(),
			Detail:       err.Error(),
		})
		return false
	}
}

func (s *Server) record(ctx context.Context, logger *slog.Logger, event journal.Event) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Record(ctx, event); err != nil {
		logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "event missing from history"),
		)
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.MoveResultMoved
	case errors.Is(err, trash.ErrInvalidPath):
		return metrics.MoveResultInvalid
	case errors.Is(err, trash.ErrCrossDevice):
		return metrics.MoveResultCrossDevice
	case errors.Is(err, trash.ErrRecordFailed):
		return metrics.MoveResultRecordFailed
	default:
		return metrics.MoveResultFailed
	}
}

func hintFor(result string) string {
	switch result {
	case metrics.MoveResultInvalid:
		return "send absolute paths outside the trash directory"
	case metrics.MoveResultCrossDevice:
		return "trash_dir must be on the same filesystem as the file"
	default:
		return "check the file exists and the daemon can write to its directory"
	}
}

// SplitPaths splits a client payload into paths. Lines end with \n; a
// trailing \r is dropped and empty lines are skipped. When complete is false
// the final unterminated line is discarded because it may be a truncated
// path.
func SplitPaths(payload []byte, complete bool) []string {
	if !complete {
		if idx := bytes.LastIndexByte(payload, '\n'); idx >= 0 {
			payload = payload[:idx+1]
		} else {
			payload = nil
		}
	}
	var paths []string
	for line := range bytes.SplitSeq(payload, []byte{'\n'}) {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		paths = append(paths, string(line))
	}
	return paths
}
