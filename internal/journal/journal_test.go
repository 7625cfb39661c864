package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"trashcan/internal/journal"
)

func openJournal(t *testing.T) *journal.Store {
	t.Helper()
	store, err := journal.Open(filepath.Join(t.TempDir(), "logs", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openJournal(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	events := []journal.Event{
		{Kind: journal.KindMoved, StoredName: "a.txt", OriginalPath: "/home/u/a.txt", OccurredAt: base},
		{Kind: journal.KindMoveFailed, OriginalPath: "relative", OccurredAt: base.Add(time.Second), Detail: "invalid source path"},
		{Kind: journal.KindExpired, StoredName: "a.txt", OriginalPath: "/home/u/a.txt", OccurredAt: base.Add(2 * time.Second)},
	}
	for _, event := range events {
		id, err := store.Record(ctx, event)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if id == 0 {
			t.Fatal("expected id to be assigned")
		}
	}

	recent, err := store.Recent(ctx, journal.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	if recent[0].Kind != journal.KindExpired || recent[1].Kind != journal.KindMoveFailed {
		t.Fatalf("expected newest first, got %v then %v", recent[0].Kind, recent[1].Kind)
	}
	if !recent[0].OccurredAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("unexpected timestamp %v", recent[0].OccurredAt)
	}
	if recent[1].Detail != "invalid source path" {
		t.Fatalf("unexpected detail %q", recent[1].Detail)
	}

	moved, err := store.Recent(ctx, journal.Filter{Kinds: []journal.Kind{journal.KindMoved}})
	if err != nil {
		t.Fatalf("Recent filtered: %v", err)
	}
	if len(moved) != 1 || moved[0].StoredName != "a.txt" {
		t.Fatalf("unexpected filtered events %+v", moved)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[journal.KindMoved] != 1 || counts[journal.KindExpired] != 1 || counts[journal.KindExpireFailed] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestRecordRejectsUnknownKind(t *testing.T) {
	store := openJournal(t)
	if _, err := store.Record(context.Background(), journal.Event{Kind: "restored"}); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestPruneRemovesOldEvents(t *testing.T) {
	store := openJournal(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.Record(ctx, journal.Event{Kind: journal.KindMoved, OccurredAt: now.AddDate(0, 0, -40)}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Record(ctx, journal.Event{Kind: journal.KindMoved, OccurredAt: now}); err != nil {
		t.Fatal(err)
	}

	removed, err := store.Prune(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned event, got %d", removed)
	}
	recent, err := store.Recent(ctx, journal.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 remaining event, got %d", len(recent))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	if _, err := journal.Open(path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if kind, ok := journal.ParseKind(" Expired "); !ok || kind != journal.KindExpired {
		t.Fatalf("ParseKind = %q, %v", kind, ok)
	}
	if _, ok := journal.ParseKind("restored"); ok {
		t.Fatal("expected unknown kind to fail")
	}
}
