// Package expiry removes trash entries whose age exceeds the retention
// threshold. A Sweeper runs on a cron schedule and on demand; every pass is
// serialized so scheduled and triggered sweeps never overlap.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"trashcan/internal/config"
	"trashcan/internal/journal"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/trash"
)

// Store is the part of trash.Store the sweeper needs.
type Store interface {
	Entries(ctx context.Context) ([]trash.Entry, []trash.RecordError, error)
	Remove(ctx context.Context, name string) error
	Snapshot(ctx context.Context) (trash.Snapshot, error)
}

// EventRecorder journals sweep outcomes.
type EventRecorder interface {
	Record(ctx context.Context, event journal.Event) (int64, error)
}

// Result summarizes one sweep.
type Result struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Expired   int
	Failed    int
	Removed   []string
	Invalid   []string
	Orphans   []string
}

// Sweeper applies the retention policy to a store.
type Sweeper struct {
	store     Store
	retention config.Retention
	schedule  string
	logger    *slog.Logger
	journal   EventRecorder
	metrics   *metrics.Collector
	now       func() time.Time

	runMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	stopped chan struct{}
	last    *Result
	wg      sync.WaitGroup
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithJournal records expired and expire_failed events.
func WithJournal(recorder EventRecorder) Option {
	return func(s *Sweeper) { s.journal = recorder }
}

// WithMetrics reports sweep outcomes and store gauges.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Sweeper) { s.metrics = collector }
}

// WithClock overrides the time source used by Trigger and scheduled runs.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a sweeper for store. Retention is captured by value and never
// re-read.
func New(store Store, retention config.Retention, schedule string, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logging.NewComponentLogger(logger, "sweeper"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retention returns the policy the sweeper applies.
func (s *Sweeper) Retention() config.Retention { return s.retention }

// Sweep removes every entry older than the retention threshold at now. An
// entry is expired when now - AddedAt is strictly greater than the threshold.
// Failures on individual entries are counted and the pass continues; the
// returned error is reserved for failures that abort the whole pass.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := time.Now()
	result := Result{ID: uuid.NewString(), StartedAt: now}
	ctx = logging.WithSweepID(ctx, result.ID)
	logger := logging.WithContext(ctx, s.logger)

	err := s.sweep(ctx, logger, now, &result)
	result.Duration = time.Since(started)
	s.metrics.ObserveSweep(result.Expired, result.Failed, result.Duration, err)

	s.mu.Lock()
	last := result
	s.last = &last
	s.mu.Unlock()

	if err != nil {
		logging.ErrorWithContext(logger, "sweep aborted", "sweep_failed",
			logging.Error(err),
			logging.Int("expired", result.Expired),
			logging.String(logging.FieldErrorHint, "check trash_dir permissions"),
		)
		return result, err
	}

	logger.Info("sweep complete",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.Int("scanned", result.Scanned),
		logging.Int("expired", result.Expired),
		logging.Int("failed", result.Failed),
		logging.Int("orphans", len(result.Orphans)),
		logging.Duration("sweep_duration", result.Duration),
	)
	return result, nil
}

func (s *Sweeper) sweep(ctx context.Context, logger *slog.Logger, now time.Time, result *Result) error {
	entries, bad, err := s.store.Entries(ctx)
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	for _, recordErr := range bad {
		result.Invalid = append(result.Invalid, recordErr.Name)
		logging.WarnWithContext(logger, "unreadable metadata record skipped", "record_invalid",
			logging.String(logging.FieldStoredName, recordErr.Name),
			logging.Error(recordErr.Err),
			logging.String(logging.FieldErrorHint, "inspect or delete the record under info/"),
			logging.String(logging.FieldImpact, "entry is never expired"),
		)
	}

	threshold := s.retention.Threshold()
	for _, entry := range entries {
		result.Scanned++
		if entry.Age(now) <= threshold {
			continue
		}
		if err := s.store.Remove(ctx, entry.StoredName); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			result.Failed++
			logging.WarnWithContext(logger, "expired entry not removed", "expire_failed",
				logging.String(logging.FieldStoredName, entry.StoredName),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the files area"),
				logging.String(logging.FieldImpact, "entry is retried on the next sweep"),
			)
			s.record(ctx, logger, journal.Event{
				Kind:         journal.KindExpireFailed,
				StoredName:   entry.StoredName,
				OriginalPath: entry.OriginalPath,
				OccurredAt:   now,
				Detail:       err.Error(),
			})
			continue
		}
		result.Expired++
		result.Removed = append(result.Removed, entry.StoredName)
		logger.Debug("entry expired",
			logging.String(logging.FieldStoredName, entry.StoredName),
			logging.String(logging.FieldSourcePath, entry.OriginalPath),
			logging.Duration("age", entry.Age(now)),
		)
		s.record(ctx, logger, journal.Event{
			Kind:         journal.KindExpired,
			StoredName:   entry.StoredName,
			OriginalPath: entry.OriginalPath,
			OccurredAt:   now,
		})
	}

	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logging.WarnWithContext(logger, "store snapshot failed", "snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphan report and store gauges are stale"),
		)
		return nil
	}
	result.Orphans = snapshot.Orphans
	s.metrics.SetStoreStats(snapshot.Entries, len(snapshot.Orphans), snapshot.Bytes)
	if len(snapshot.Orphans) > 0 {
		logging.WarnWithContext(logger, "files without metadata records", "orphans_found",
			logging.Int("orphans", len(snapshot.Orphans)),
			logging.Any("names", snapshot.Orphans),
			logging.String(logging.FieldErrorHint, "these files are never expired; remove them from files/ by hand"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}
	return nil
}

func (s *Sweeper) record(ctx context.Context, logger *slog.Logger, event journal.Event) {
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

// Trigger runs one sweep immediately using the sweeper clock.
func (s *Sweeper) Trigger(ctx context.Context) (Result, error) {
	return s.Sweep(ctx, s.now())
}

// Start runs one sweep immediately and then schedules further sweeps. The
// sweeper stops when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.stopped = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runScheduled(ctx)
	}()

	go func(stopped <-chan struct{}) {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}(s.stopped)

	s.logger.Info("sweeper started",
		logging.String(logging.FieldEventType, "sweeper_started"),
		logging.String("schedule", s.schedule),
		logging.Int("delete_after_days", s.retention.DeleteAfter),
	)
	return nil
}

func (s *Sweeper) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, _ = s.Trigger(ctx)
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	close(s.stopped)
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep time.
func (s *Sweeper) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || !s.running {
		return time.Time{}, false
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

// LastResult returns the most recent sweep result.
func (s *Sweeper) LastResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}
