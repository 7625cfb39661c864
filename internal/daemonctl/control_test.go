package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"trashcan/internal/api"
	"trashcan/internal/daemonctl"
	"trashcan/internal/testsupport"
)

func holdLock(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })
}

func statusServer(t *testing.T, status api.DaemonStatus) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "ok"})
		case "/api/status":
			_ = json.NewEncoder(w).Encode(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func deadClient(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()
	client, err := api.NewClient(addr, "")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	held, err := daemonctl.LockHeld(cfg.LockPath())
	if err != nil || held {
		t.Fatalf("missing lock file: held=%v err=%v", held, err)
	}

	holdLock(t, cfg.LockPath())
	held, err = daemonctl.LockHeld(cfg.LockPath())
	if err != nil || !held {
		t.Fatalf("held lock: held=%v err=%v", held, err)
	}
}

func TestLockHeldReleasedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.LockPath(), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	held, err := daemonctl.LockHeld(cfg.LockPath())
	if err != nil || held {
		t.Fatalf("stale lock file: held=%v err=%v", held, err)
	}
}

func TestReadPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ReadPIDFile(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ReadPIDFile(cfg.PIDPath()); err == nil {
		t.Fatal("expected invalid pid error")
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte(" 4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err := daemonctl.ReadPIDFile(cfg.PIDPath())
	if err != nil || pid != 4242 {
		t.Fatalf("ReadPIDFile = %d, %v", pid, err)
	}
}

func TestProcessInfoPrefersAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := statusServer(t, api.DaemonStatus{Running: true, PID: 777})

	running, pid, err := daemonctl.ProcessInfo(context.Background(), client, cfg)
	if err != nil || !running || pid != 777 {
		t.Fatalf("ProcessInfo = %v, %d, %v", running, pid, err)
	}
}

func TestProcessInfoFallsBackToLock(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())

	running, _, err := daemonctl.ProcessInfo(context.Background(), deadClient(t), cfg)
	if err != nil || running {
		t.Fatalf("expected not running, got %v, %v", running, err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	holdLock(t, cfg.LockPath())
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(31337)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	running, pid, err := daemonctl.ProcessInfo(context.Background(), nil, cfg)
	if err != nil || !running || pid != 31337 {
		t.Fatalf("ProcessInfo = %v, %d, %v", running, pid, err)
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndTerminate(context.Background(), deadClient(t), cfg, 100*time.Millisecond)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := daemonctl.WaitForShutdown(cfg.LockPath(), 50*time.Millisecond); err != nil {
		t.Fatalf("expected immediate success without lock, got %v", err)
	}
	holdLock(t, cfg.LockPath())
	if err := daemonctl.WaitForShutdown(cfg.LockPath(), 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout while lock is held")
	}
}

func TestWaitForClient(t *testing.T) {
	client := statusServer(t, api.DaemonStatus{})
	if err := daemonctl.WaitForClient(context.Background(), client, time.Second); err != nil {
		t.Fatalf("WaitForClient: %v", err)
	}
	if err := daemonctl.WaitForClient(context.Background(), deadClient(t), 300*time.Millisecond); err == nil {
		t.Fatal("expected error for unreachable API")
	}
	if err := daemonctl.WaitForClient(context.Background(), nil, time.Second); !errors.Is(err, api.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := statusServer(t, api.DaemonStatus{Running: true, PID: 12})

	result, err := daemonctl.EnsureStarted(context.Background(), client, cfg, "", daemonctl.LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning || result.Launched || result.PID != 12 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ForceKillProcess(cfg.PIDPath(), cfg.LockPath(), 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := daemonctl.ForceKillProcess(cfg.PIDPath()+".missing", "", 0); err == nil {
		t.Fatal("expected error without any pid")
	}
}

func TestBuildStatusSnapshotLive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := statusServer(t, api.DaemonStatus{Running: true, PID: 99, Store: api.StoreStats{Entries: 4}})

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), client, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !status.Running || status.PID != 99 || status.Store.Entries != 4 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetentionDays(5))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MoveIn(t, store, testsupport.BaseDir(cfg), "notes.txt", 128)

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), deadClient(t), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("expected offline status")
	}
	if status.Retention.DeleteAfterDays != 5 {
		t.Fatalf("retention = %+v", status.Retention)
	}
	if status.Store.Entries != 1 || status.Store.Bytes != 128 {
		t.Fatalf("store = %+v", status.Store)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight checks in offline status")
	}
	if status.Sweeper.Schedule != cfg.Daemon.SweepSchedule {
		t.Fatalf("schedule = %q", status.Sweeper.Schedule)
	}
}

func TestBuildStatusSnapshotWithoutStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), nil, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Store.Entries != 0 || status.Store.Error != "" {
		t.Fatalf("store = %+v", status.Store)
	}
	if status.Retention.DeleteAfterDays != 1 || len(status.Retention.Warnings) != 1 {
		t.Fatalf("retention = %+v", status.Retention)
	}
	if _, err := os.Stat(cfg.Paths.TrashDir); !os.IsNotExist(err) {
		t.Fatalf("offline status must not create the store, stat err=%v", err)
	}
}

func TestBuildStatusSnapshotFlagsTakenListenPort(t *testing.T) {
	squatter, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer squatter.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithoutAPI())
	cfg.Daemon.Listen = squatter.Addr().String()

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), nil, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	for _, check := range status.Checks {
		if check.Name == "Trash listener" {
			if check.Passed {
				t.Fatalf("a port held without the daemon lock must fail: %+v", check)
			}
			return
		}
	}
	t.Fatalf("expected a listener check, got %+v", status.Checks)
}
