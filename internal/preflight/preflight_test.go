package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trashcan/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("free", dir, 1); !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("free", dir, 1<<62); result.Passed {
		t.Fatal("expected failure with an unreachable minimum")
	}
	if result := CheckFreeSpace("free", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckSameFilesystem(t *testing.T) {
	base := t.TempDir()
	a := filepath.Join(base, "a")
	b := filepath.Join(base, "b")
	for _, dir := range []string{a, b} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if result := CheckSameFilesystem("fs", a, b); !result.Passed {
		t.Fatalf("expected sibling directories to share a filesystem: %s", result.Detail)
	}
	if result := CheckSameFilesystem("fs", a, filepath.Join(base, "missing")); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckRetentionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.conf")

	if result := CheckRetentionFile(path); !result.Passed || !strings.Contains(result.Detail, "missing") {
		t.Fatalf("missing file should pass with a note, got %+v", result)
	}

	if err := os.WriteFile(path, []byte("delete_after:7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckRetentionFile(path); !result.Passed || result.Detail != "delete after 7 day(s)" {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := os.WriteFile(path, []byte("delete_after:7\ngarbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckRetentionFile(path); result.Passed {
		t.Fatal("expected unreadable lines to fail the check")
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		0:        "0 B",
		1023:     "1023 B",
		1024:     "1.0 KiB",
		64 << 20: "64.0 MiB",
		3 << 30:  "3.0 GiB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestProbeListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	if result := ProbeListener(context.Background(), addr); !result.Passed {
		t.Fatalf("expected open listener to pass: %s", result.Detail)
	}
	_ = ln.Close()
	if result := ProbeListener(context.Background(), addr); result.Passed {
		t.Fatal("expected closed listener to fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_TempDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.Paths.TrashDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Name == "Trash free space" {
			// Depends on the host filesystem.
			continue
		}
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestFailed(t *testing.T) {
	results := []Result{{Name: "a", Passed: true}, {Name: "b"}, {Name: "c"}}
	failed := Failed(results)
	if len(failed) != 2 || failed[0].Name != "b" || failed[1].Name != "c" {
		t.Fatalf("unexpected failed results %+v", failed)
	}
}
