package testsupport

import (
	"context"
	"testing"

	"trashcan/internal/config"
	"trashcan/internal/journal"
	"trashcan/internal/trash"
)

// MustOpenStore opens the trash store under cfg.Paths.TrashDir.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...trash.Option) *trash.Store {
	t.Helper()

	store, err := trash.Open(cfg.Paths.TrashDir, opts...)
	if err != nil {
		t.Fatalf("trash.Open: %v", err)
	}
	return store
}

// MustOpenJournal opens the event journal for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	events, err := journal.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = events.Close()
	})
	return events
}

// MoveIn writes a file of size bytes under the test base directory and moves
// it into store.
func MoveIn(t testing.TB, store *trash.Store, dir, name string, size int64) trash.Entry {
	t.Helper()

	path := WriteFile(t, dir, name, size)
	entry, err := store.MoveIn(context.Background(), path)
	if err != nil {
		t.Fatalf("MoveIn %s: %v", path, err)
	}
	return entry
}
