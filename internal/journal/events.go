package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a journal event.
type Kind string

const (
	KindMoved        Kind = "moved"
	KindMoveFailed   Kind = "move_failed"
	KindExpired      Kind = "expired"
	KindExpireFailed Kind = "expire_failed"
)

// Kinds lists every event kind in display order.
func Kinds() []Kind {
	return []Kind{KindMoved, KindMoveFailed, KindExpired, KindExpireFailed}
}

// ParseKind validates a textual event kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range Kinds() {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Event is one journal row.
type Event struct {
	ID           int64
	Kind         Kind
	StoredName   string
	OriginalPath string
	OccurredAt   time.Time
	Detail       string
}

// Record appends an event and returns its ID. A zero OccurredAt is replaced
// with the current time.
func (s *Store) Record(ctx context.Context, event Event) (int64, error) {
	if _, ok := ParseKind(string(event.Kind)); !ok {
		return 0, fmt.Errorf("record event: unknown kind %q", event.Kind)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	res, err := s.exec(ctx,
		`INSERT INTO events (kind, stored_name, original_path, occurred_at, detail) VALUES (?, ?, ?, ?, ?)`,
		string(event.Kind), event.StoredName, event.OriginalPath, occurred.UnixMilli(), event.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("record event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record event id: %w", err)
	}
	return id, nil
}

// Filter narrows Recent results.
type Filter struct {
	Limit int
	Kinds []Kind
}

const defaultRecentLimit = 50

// Recent returns the newest events first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT id, kind, stored_name, original_path, occurred_at, detail FROM events`
	args := make([]any, 0, len(filter.Kinds)+1)
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, kind := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		query += ` WHERE kind IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var events []Event
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		events = events[:0]
		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Counts returns the number of events per kind.
func (s *Store) Counts(ctx context.Context) (map[Kind]int64, error) {
	counts := make(map[Kind]int64)
	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM events GROUP BY kind`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(counts)
		for rows.Next() {
			var kind string
			var count int64
			if err := rows.Scan(&kind, &count); err != nil {
				return err
			}
			counts[Kind(kind)] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	return counts, nil
}

// Prune deletes events older than cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM events WHERE occurred_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		event    Event
		kind     string
		occurred int64
		detail   sql.NullString
	)
	if err := row.Scan(&event.ID, &kind, &event.StoredName, &event.OriginalPath, &occurred, &detail); err != nil {
		return Event{}, err
	}
	event.Kind = Kind(kind)
	event.OccurredAt = time.UnixMilli(occurred)
	event.Detail = detail.String
	return event, nil
}
