package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polynotify/internal/store"
)

type fakeStore struct {
	items    []store.Notification
	queryErr error
	pingErr  error

	gotLimit, gotSkip int
	gotStart, gotEnd  time.Time
}

func (f *fakeStore) GetAll(_ context.Context, limit, skip int) ([]store.Notification, error) {
	f.gotLimit, f.gotSkip = limit, skip
	return f.items, f.queryErr
}

func (f *fakeStore) GetByDateRange(_ context.Context, start, end time.Time) ([]store.Notification, error) {
	f.gotStart, f.gotEnd = start, end
	return f.items, f.queryErr
}

func (f *fakeStore) Count(context.Context) (int64, error) {
	return int64(len(f.items)), f.queryErr
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func newTestServer(st Store) *Server {
	return New(Config{Addr: "127.0.0.1:0"}, st, zerolog.Nop())
}

func do(t *testing.T, s *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s := newTestServer(&fakeStore{})
	rec := do(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	s = newTestServer(&fakeStore{pingErr: errors.New("down")})
	rec = do(t, s, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the store is unreachable", rec.Code)
	}
}

func TestListNotifications(t *testing.T) {
	t.Parallel()
	st := &fakeStore{items: []store.Notification{
		{NotificationID: "n1", Question: "q1"},
		{NotificationID: "n2", Question: "q2"},
	}}
	s := newTestServer(st)

	rec := do(t, s, "/api/v1/notifications?limit=10&skip=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if st.gotLimit != 10 || st.gotSkip != 5 {
		t.Fatalf("limit/skip = %d/%d, want 10/5", st.gotLimit, st.gotSkip)
	}

	var resp struct {
		Count int                  `json:"count"`
		Items []store.Notification `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Items) != 2 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestListNotificationsDefaultsAndClamps(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	s := newTestServer(st)

	do(t, s, "/api/v1/notifications")
	if st.gotLimit != defaultListLimit {
		t.Fatalf("default limit = %d, want %d", st.gotLimit, defaultListLimit)
	}

	do(t, s, "/api/v1/notifications?limit=9999")
	if st.gotLimit != defaultListLimit {
		t.Fatalf("oversized limit = %d, want fall back to %d", st.gotLimit, defaultListLimit)
	}

	rec := do(t, s, "/api/v1/notifications?limit=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a non-numeric limit", rec.Code)
	}
}

func TestListNotificationsEmptyIsJSONArray(t *testing.T) {
	t.Parallel()
	s := newTestServer(&fakeStore{})
	rec := do(t, s, "/api/v1/notifications")
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(resp["items"]) != "[]" {
		t.Fatalf("items = %s, want [] not null", resp["items"])
	}
}

func TestRangeEndpoint(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	s := newTestServer(st)

	rec := do(t, s, "/api/v1/notifications/range?start=2026-05-01T00:00:00Z&end=2026-05-02T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if st.gotStart.IsZero() || !st.gotEnd.After(st.gotStart) {
		t.Fatalf("range = %v .. %v", st.gotStart, st.gotEnd)
	}

	rec = do(t, s, "/api/v1/notifications/range?start=yesterday&end=2026-05-02T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed start", rec.Code)
	}

	rec = do(t, s, "/api/v1/notifications/range?start=2026-05-02T00:00:00Z&end=2026-05-01T00:00:00Z")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when end precedes start", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(&fakeStore{items: make([]store.Notification, 3)})
	rec := do(t, s, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["total"] != 3 {
		t.Fatalf("total = %d, want 3", resp["total"])
	}
}

func TestQueryFailureIs500(t *testing.T) {
	t.Parallel()
	s := newTestServer(&fakeStore{queryErr: errors.New("backend gone")})
	rec := do(t, s, "/api/v1/notifications")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(&fakeStore{})
	rec := do(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
