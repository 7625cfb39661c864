package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trashcan/internal/expiry"
	"trashcan/internal/journal"
)

func TestFormatTimeRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	formatted := FormatTime(ts)
	if formatted != "2023-11-14T22:13:20.123Z" {
		t.Fatalf("FormatTime = %q", formatted)
	}
	parsed, err := ParseTime(formatted)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("round trip = %v, want %v", parsed, ts)
	}
	if FormatTime(time.Time{}) != "" {
		t.Fatal("zero time should render empty")
	}
}

func TestFromSweepResult(t *testing.T) {
	dto := FromSweepResult(expiry.Result{
		ID:        "abc",
		StartedAt: time.UnixMilli(0),
		Duration:  1500 * time.Millisecond,
		Scanned:   4,
		Expired:   2,
		Failed:    1,
		Removed:   []string{"a", "b"},
	}, errors.New("boom"))

	if dto.DurationMillis != 1500 || dto.Expired != 2 || dto.Error != "boom" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.StartedAt != "1970-01-01T00:00:00.000Z" {
		t.Fatalf("StartedAt = %q", dto.StartedAt)
	}
}

func TestFromCounts(t *testing.T) {
	if FromCounts(nil) != nil {
		t.Fatal("expected nil for empty counts")
	}
	counts := FromCounts(map[journal.Kind]int64{journal.KindMoved: 3})
	if counts["moved"] != 3 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestClientHistorySendsQueryAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/history" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("limit") != "5" || r.URL.Query()["kind"][0] != "expired" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(HistoryResponse{Events: []HistoryEvent{{ID: 1, Kind: "expired"}}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.History(context.Background(), HistoryQuery{Limit: 5, Kinds: []string{"expired"}})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Kind != "expired" {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "scan records: denied"})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Sweep(context.Background())
	if err == nil || err.Error() != "POST /api/sweep returned status 500: scan records: denied" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNilClientIsUnavailable(t *testing.T) {
	client, err := NewClient("", "")
	if err != nil || client != nil {
		t.Fatalf("expected nil client, got %v, %v", client, err)
	}
	if err := client.Health(context.Background()); !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestIsUnavailableForRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	client, err := NewClient(addr, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Health(context.Background()); !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
