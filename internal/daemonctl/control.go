// Package daemonctl drives the daemon process from the CLI: launching it
// detached, waiting for the control API, stopping it and assembling status
// when the daemon is offline.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/sethvargo/go-retry"

	"trashcan/internal/api"
	"trashcan/internal/config"
	"trashcan/internal/preflight"
	"trashcan/internal/trash"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrDaemonNotRunning indicates no daemon holds the store lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached trashcan daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits until the control API answers health checks.
func WaitForClient(ctx context.Context, client *api.Client, timeout time.Duration) error {
	if client == nil {
		return api.ErrAPIUnavailable
	}
	var lastErr error
	err := poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		lastErr = client.Health(reqCtx)
		return lastErr == nil, nil
	})
	if err == nil {
		return nil
	}
	if lastErr != nil {
		err = lastErr
	}
	return fmt.Errorf("daemon failed to start: %w", err)
}

var errPollTimeout = errors.New("timed out")

// poll runs check right away and then every pollInterval until it reports
// done, fails, or timeout passes.
func poll(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) error {
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(pollInterval))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if !done {
			return retry.RetryableError(errPollTimeout)
		}
		return nil
	})
}

// EnsureStarted launches the daemon unless one already holds the store lock.
// With the control API enabled it waits for the API to answer; otherwise it
// waits for the pid file.
func EnsureStarted(ctx context.Context, client *api.Client, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if cfg == nil {
		return StartResult{}, errors.New("configuration not available")
	}
	running, pid, err := ProcessInfo(ctx, client, cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if client != nil {
		if err := WaitForClient(ctx, client, waitTimeout); err != nil {
			return StartResult{}, err
		}
	} else if err := waitForPIDFile(ctx, cfg.PIDPath(), waitTimeout); err != nil {
		return StartResult{}, err
	}
	pid, _ = ReadPIDFile(cfg.PIDPath())
	return StartResult{State: StartStateStarted, Launched: true, PID: pid}, nil
}

// WaitForShutdown waits for the daemon to release the store lock.
func WaitForShutdown(lockPath string, timeout time.Duration) error {
	err := poll(context.Background(), timeout, func(context.Context) (bool, error) {
		held, err := LockHeld(lockPath)
		return !held, err
	})
	switch {
	case errors.Is(err, errPollTimeout):
		return fmt.Errorf("daemon did not stop: still holding %s", lockPath)
	case err != nil:
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo reports whether a daemon is running for cfg and its pid when
// known. The control API is asked first; the store lock decides when the API
// is disabled or silent.
func ProcessInfo(ctx context.Context, client *api.Client, cfg *config.Config) (bool, int, error) {
	if client != nil {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		status, err := client.Status(reqCtx)
		cancel()
		if err == nil && status.Running {
			return true, status.PID, nil
		}
		if err != nil && !api.IsUnavailable(err) {
			return false, 0, err
		}
	}
	if cfg == nil {
		return false, 0, nil
	}
	held, err := LockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	if !held {
		return false, 0, nil
	}
	pid, _ := ReadPIDFile(cfg.PIDPath())
	return true, pid, nil
}

// LockHeld reports whether another process holds the daemon lock file.
func LockHeld(lockPath string) (bool, error) {
	if strings.TrimSpace(lockPath) == "" {
		return false, nil
	}
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock %q: %w", lockPath, err)
	}
	if locked {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// ReadPIDFile returns the pid recorded by a running daemon.
func ReadPIDFile(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", pidPath)
	}
	return pid, nil
}

func waitForPIDFile(ctx context.Context, pidPath string, timeout time.Duration) error {
	err := poll(ctx, timeout, func(context.Context) (bool, error) {
		_, err := ReadPIDFile(pidPath)
		return err == nil, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("daemon failed to start: no pid file at %s", pidPath)
	}
	return nil
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	if parsed, err := ReadPIDFile(pidPath); err == nil {
		pid = parsed
	} else if !errors.Is(err, os.ErrNotExist) && pid <= 0 {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate requests daemon stop and force-kills the process if it
// still holds the store lock after gracePeriod. Without a reachable control
// API the process is sent SIGTERM first.
func StopAndTerminate(ctx context.Context, client *api.Client, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	running, pid, err := ProcessInfo(ctx, client, cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}

	result := StopResult{PID: pid}
	stopErr := client.Stop(ctx)
	switch {
	case stopErr == nil:
		result.StopAcknowledged = true
	case api.IsUnavailable(stopErr):
		if err := signalTerm(pid); err != nil {
			return result, err
		}
	default:
		return result, stopErr
	}

	if WaitForShutdown(cfg.LockPath(), gracePeriod) == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

func signalTerm(pid int) error {
	if pid <= 0 {
		return errors.New("control API unavailable and daemon pid unknown")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, client *api.Client, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(ctx, client, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, client, cfg, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// BuildStatusSnapshot returns the live daemon status, or an offline status
// assembled from preflight checks, the retention file and the store on disk.
func BuildStatusSnapshot(ctx context.Context, client *api.Client, cfg *config.Config) (api.DaemonStatus, error) {
	if cfg == nil {
		return api.DaemonStatus{}, errors.New("configuration not available")
	}
	if client != nil {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := client.Status(reqCtx)
		cancel()
		if err == nil {
			return status, nil
		}
		if !api.IsUnavailable(err) {
			return api.DaemonStatus{}, err
		}
	}

	status := api.DaemonStatus{
		TrashDir:      cfg.Paths.TrashDir,
		LockFilePath:  cfg.LockPath(),
		ListenAddress: cfg.Daemon.Listen,
		Retention:     offlineRetention(cfg.RetentionPath()),
		Sweeper:       api.SweeperStatus{Schedule: cfg.Daemon.SweepSchedule},
		Journal:       api.JournalStatus{Enabled: cfg.Daemon.JournalEnabled},
		Checks:        api.FromChecks(preflight.RunAll(ctx, cfg)),
	}
	if cfg.Daemon.JournalEnabled {
		status.Journal.Path = cfg.JournalPath()
	}
	if running, pid, err := ProcessInfo(ctx, nil, cfg); err == nil && running {
		// The daemon runs without a reachable control API.
		status.Running = true
		status.PID = pid
	}
	probe := preflight.ProbeListener(ctx, cfg.Daemon.Listen)
	switch {
	case status.Running:
		status.Checks = append(status.Checks, api.FromChecks([]preflight.Result{probe})...)
	case probe.Passed:
		status.Checks = append(status.Checks, api.CheckResult{
			Name:   probe.Name,
			Detail: cfg.Daemon.Listen + " is taken by another process",
		})
	}
	status.Store = offlineStore(ctx, cfg.Paths.TrashDir)
	return status, nil
}

func offlineRetention(path string) api.Retention {
	out := api.Retention{DeleteAfterDays: config.DefaultDeleteAfterDays, FilePath: path}
	retention, err := config.LoadRetention(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		out.Warnings = []string{"retention file not created yet"}
	case err != nil:
		out.Warnings = []string{err.Error()}
	default:
		out.DeleteAfterDays = retention.DeleteAfter
		out.Warnings = retention.Warnings
	}
	return out
}

func offlineStore(ctx context.Context, root string) api.StoreStats {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return api.StoreStats{}
		}
		return api.StoreStats{Error: err.Error()}
	}
	store, err := trash.Open(root)
	if err != nil {
		return api.StoreStats{Error: err.Error()}
	}
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return api.StoreStats{Error: err.Error()}
	}
	return api.FromSnapshot(snapshot)
}
