// Package daemonrun assembles and runs the trash daemon process: logging,
// retention policy, store, journal, metrics, and the daemon lifecycle.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"trashcan/internal/config"
	"trashcan/internal/daemon"
	"trashcan/internal/journal"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/trash"
)

// LogPointerName is the stable name that links to the current run's log.
const LogPointerName = "trashd.log"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the trash daemon and blocks until SIGINT, SIGTERM, a stop
// request through the control API, or cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, requestStop := context.WithCancel(signalCtx)
	defer requestStop()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("trashd-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FileFormat:  logging.FormatJSON,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if pruned := logging.PruneLogs(logger, cfg.Paths.LogDir, "trashd-*.log", cfg.Logging.RetentionDays, logPath); pruned > 0 {
		logger.Info("old run logs pruned",
			logging.String(logging.FieldEventType, "logs_pruned"),
			logging.Int("files", pruned),
		)
	}

	retention, err := loadRetention(logger, cfg.RetentionPath())
	if err != nil {
		logging.ErrorWithContext(logger, "retention policy unavailable", "retention_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on "+cfg.RetentionPath()),
		)
		return err
	}

	store, err := trash.Open(cfg.Paths.TrashDir)
	if err != nil {
		logging.ErrorWithContext(logger, "open trash store", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that trash_dir is writable"),
		)
		return err
	}

	collector := metrics.New(nil)

	var events *journal.Store
	if cfg.Daemon.JournalEnabled {
		events, err = openJournal(ctx, logger, cfg)
		if err != nil {
			return err
		}
	}

	d, err := daemon.New(daemon.Deps{
		Config:          cfg,
		Logger:          logger,
		Store:           store,
		Retention:       retention,
		Journal:         events,
		Metrics:         collector,
		LogPath:         logPath,
		RequestShutdown: requestStop,
	})
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other daemon uses this trash_dir and the listen address is free"),
		)
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", LogPointerName, err)
	}
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-ctx.Done()
	logger.Info("trashcan daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// loadRetention materializes the default retention file if needed and loads
// it. Skipped lines are logged but do not stop the daemon.
func loadRetention(logger *slog.Logger, path string) (config.Retention, error) {
	created, err := config.EnsureRetentionFile(path)
	if err != nil {
		return config.Retention{}, err
	}
	if created {
		logger.Info("default retention file written",
			logging.String(logging.FieldEventType, "retention_file_created"),
			logging.String("path", path),
		)
	}
	retention, err := config.LoadRetention(path)
	if err != nil {
		return config.Retention{}, err
	}
	for _, warning := range retention.Warnings {
		logging.WarnWithContext(logger, "retention file line ignored", "retention_line_invalid",
			logging.String("path", path),
			logging.String("detail", warning),
			logging.String(logging.FieldImpact, "the default applies for any key on that line"),
			logging.String(logging.FieldErrorHint, "use key:value lines such as delete_after:7"),
		)
	}
	logger.Info("retention policy loaded",
		logging.String(logging.FieldEventType, "retention_loaded"),
		logging.Int("delete_after_days", retention.DeleteAfter),
	)
	return retention, nil
}

func openJournal(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*journal.Store, error) {
	events, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logging.ErrorWithContext(logger, "open event journal", "journal_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+cfg.JournalPath()+" or set daemon.journal_enabled = false"),
		)
		return nil, err
	}
	if days := cfg.Logging.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if pruned, err := events.Prune(ctx, cutoff); err != nil {
			logging.WarnWithContext(logger, "journal prune failed", "journal_prune_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "old history is kept"),
			)
		} else if pruned > 0 {
			logger.Info("journal pruned",
				logging.String(logging.FieldEventType, "journal_pruned"),
				logging.Int64("events", pruned),
			)
		}
	}
	return events, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, LogPointerName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
