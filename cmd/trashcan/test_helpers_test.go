package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus"

	"trashcan/internal/config"
	"trashcan/internal/daemon"
	"trashcan/internal/logging"
	"trashcan/internal/metrics"
	"trashcan/internal/testsupport"
	"trashcan/internal/trash"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *trash.Store
	daemon     *daemon.Daemon
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("TRASHCAN_TRASH_DIR", "")
	t.Setenv("TRASHCAN_API_TOKEN", "")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	events := testsupport.MustOpenJournal(t, cfg)

	var d *daemon.Daemon
	d, err := daemon.New(daemon.Deps{
		Config:          cfg,
		Logger:          logging.NewNop(),
		Store:           store,
		Retention:       config.Retention{DeleteAfter: 1},
		Journal:         events,
		Metrics:         metrics.New(prometheus.NewRegistry()),
		RequestShutdown: func() { d.Stop() },
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	bound := *cfg
	bound.Daemon.Listen = d.ListenAddr()
	bound.Daemon.APIBind = d.APIAddr()
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, &bound)

	return &cliTestEnv{
		cfg:        &bound,
		store:      store,
		daemon:     d,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
