package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"trashcan/internal/api"
	"trashcan/internal/config"
	"trashcan/internal/expiry"
	"trashcan/internal/journal"
	"trashcan/internal/listener"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/preflight"
	"trashcan/internal/trash"
)

// ErrAlreadyRunning reports that another daemon holds the store lock.
var ErrAlreadyRunning = errors.New("another trashcan daemon is already running for this trash directory")

const shutdownTimeout = 5 * time.Second

// Deps holds the components the daemon coordinates.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *trash.Store
	Retention config.Retention
	// Journal is nil when the journal is disabled.
	Journal *journal.Store
	Metrics *metrics.Collector
	LogPath string
	// RequestShutdown is invoked by the stop endpoint.
	RequestShutdown func()
}

// Daemon owns the listener, sweeper, and control API for one trash store.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *trash.Store
	retention config.Retention
	journal   *journal.Store
	metrics   *metrics.Collector
	sweeper   *expiry.Sweeper
	logPath   string
	shutdown  func()

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	listener  *listener.Server
	api       *apiServer

	addrMu     sync.RWMutex
	listenAddr string
	apiAddr    string
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.Store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:       deps.Config,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     deps.Store,
		retention: deps.Retention,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		logPath:   deps.LogPath,
		shutdown:  deps.RequestShutdown,
		lockPath:  deps.Config.LockPath(),
		lock:      flock.New(deps.Config.LockPath()),
	}

	sweeperOpts := []expiry.Option{expiry.WithMetrics(deps.Metrics)}
	if deps.Journal != nil {
		sweeperOpts = append(sweeperOpts, expiry.WithJournal(deps.Journal))
	}
	d.sweeper = expiry.New(deps.Store, deps.Retention, deps.Config.Daemon.SweepSchedule, logger, sweeperOpts...)
	return d, nil
}

// Start acquires the store lock, recovers interrupted moves, and starts the
// sweeper, listener, and control API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.start(ctx); err != nil {
		d.teardown()
		_ = d.lock.Unlock()
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("trashcan daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("trash_dir", d.store.Root()),
		logging.Int("delete_after_days", d.retention.DeleteAfter),
	)
	return nil
}

func (d *Daemon) start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel

	recovered, err := d.store.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover pending records: %w", err)
	}
	if len(recovered.Committed) > 0 || len(recovered.Discarded) > 0 {
		logging.WarnWithContext(d.logger, "recovered interrupted moves", "pending_recovered",
			logging.Int("committed", len(recovered.Committed)),
			logging.Int("discarded", len(recovered.Discarded)),
			logging.String(logging.FieldImpact, "records for moved files were committed late"),
			logging.String(logging.FieldErrorHint, "the previous daemon exited during a move"),
		)
	}

	for _, check := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "moves into the trash may fail"),
			logging.String(logging.FieldErrorHint, "run trashcan status for details"),
		)
	}

	listenerOpts := []listener.Option{
		listener.WithMetrics(d.metrics),
		listener.WithReadTimeout(d.cfg.ReadTimeout()),
		listener.WithMaxRequestBytes(d.cfg.Daemon.MaxRequestBytes),
	}
	if d.journal != nil {
		listenerOpts = append(listenerOpts, listener.WithJournal(d.journal))
	}
	srv, err := listener.New(ctx, d.cfg.Daemon.Listen, d.store, d.logger, listenerOpts...)
	if err != nil {
		return err
	}
	d.listener = srv

	apiSrv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		return err
	}
	if err := apiSrv.start(ctx); err != nil {
		return err
	}
	d.api = apiSrv

	d.addrMu.Lock()
	d.listenAddr = srv.Addr().String()
	d.apiAddr = apiSrv.address()
	d.addrMu.Unlock()

	if err := d.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	d.listener.Serve()
	return nil
}

// Stop shuts down the listener, sweeper, and API, then releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	d.teardown()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report the daemon as running"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("trashcan daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

func (d *Daemon) teardown() {
	if d.listener != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.listener.Shutdown(ctx); err != nil {
			logging.WarnWithContext(d.logger, "client sessions cut short", "listener_shutdown_timeout",
				logging.Error(err),
				logging.String(logging.FieldImpact, "paths not yet received were dropped"),
				logging.String(logging.FieldErrorHint, "clients should close their write side promptly"),
			)
		}
		cancel()
		d.listener = nil
	}
	d.sweeper.Stop()
	if d.api != nil {
		d.api.stop()
		d.api = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Close stops the daemon and closes the journal.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// ListenAddr returns the bound client address, or the configured one before
// the first start.
func (d *Daemon) ListenAddr() string {
	d.addrMu.RLock()
	defer d.addrMu.RUnlock()
	if d.listenAddr != "" {
		return d.listenAddr
	}
	return d.cfg.Daemon.Listen
}

// APIAddr returns the bound control API address, or empty when disabled.
func (d *Daemon) APIAddr() string {
	d.addrMu.RLock()
	defer d.addrMu.RUnlock()
	return d.apiAddr
}

// Sweep runs one expiry pass on demand.
func (d *Daemon) Sweep(ctx context.Context) (expiry.Result, error) {
	return d.sweeper.Trigger(ctx)
}

// History returns recent journal events.
func (d *Daemon) History(ctx context.Context, filter journal.Filter) ([]journal.Event, error) {
	if d.journal == nil {
		return nil, errors.New("journal disabled")
	}
	return d.journal.Recent(ctx, filter)
}

// MetricsHandler exposes the Prometheus registry.
func (d *Daemon) MetricsHandler() http.Handler {
	return d.metrics.Handler()
}

// RequestShutdown asks the owning process to exit.
func (d *Daemon) RequestShutdown() {
	if d.shutdown != nil {
		d.shutdown()
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		TrashDir:      d.store.Root(),
		LockFilePath:  d.lockPath,
		ListenAddress: d.ListenAddr(),
		LogPath:       d.logPath,
		Retention: api.Retention{
			DeleteAfterDays: d.retention.DeleteAfter,
			FilePath:        d.cfg.RetentionPath(),
			Warnings:        d.retention.Warnings,
		},
		Sweeper: api.SweeperStatus{
			Running:  d.sweeper.IsRunning(),
			Schedule: d.cfg.Daemon.SweepSchedule,
		},
		Journal: api.JournalStatus{Enabled: d.journal != nil},
		Checks:  api.FromChecks(preflight.RunAll(ctx, d.cfg)),
	}
	if status.Running {
		status.StartedAt = api.FormatTime(d.startedAt)
	}

	snapshot, err := d.store.Snapshot(ctx)
	if err != nil {
		status.Store.Error = err.Error()
	} else {
		status.Store = api.FromSnapshot(snapshot)
		d.metrics.SetStoreStats(snapshot.Entries, len(snapshot.Orphans), snapshot.Bytes)
	}

	if next, ok := d.sweeper.NextRun(); ok {
		status.Sweeper.NextRun = api.FormatTime(next)
	}
	if last, ok := d.sweeper.LastResult(); ok {
		result := api.FromSweepResult(last, nil)
		status.Sweeper.LastSweep = &result
	}

	if d.journal != nil {
		status.Journal.Path = d.journal.Path()
		if counts, err := d.journal.Counts(ctx); err == nil {
			status.Journal.Counts = api.FromCounts(counts)
		}
	}
	return status
}
