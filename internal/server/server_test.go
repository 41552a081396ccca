package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BattermanZ/StaleFlix/internal/backend"
	"github.com/BattermanZ/StaleFlix/internal/config"
	"github.com/BattermanZ/StaleFlix/internal/content"
	"github.com/BattermanZ/StaleFlix/internal/database"
	"github.com/BattermanZ/StaleFlix/internal/delivery"
	"github.com/BattermanZ/StaleFlix/internal/pipeline"
	"github.com/BattermanZ/StaleFlix/internal/session"
	"github.com/BattermanZ/StaleFlix/internal/store"
)

type fakeFetcher struct {
	snap *content.Snapshot
	err  error
}

func (f *fakeFetcher) FetchSnapshot(context.Context, bool) (*content.Snapshot, error) {
	return f.snap, f.err
}

type fakeBackend struct {
	submitted []string
	pushed    []content.Record
	err       error
}

func (b *fakeBackend) SubmitSelection(_ context.Context, ids []string) (string, error) {
	b.submitted = ids
	if b.err != nil {
		return "", b.err
	}
	return "Selection received", nil
}

func (b *fakeBackend) PushToDeliveryQueue(_ context.Context, records []content.Record) (string, error) {
	b.pushed = records
	if b.err != nil {
		return "", b.err
	}
	return "Pushed", nil
}

type fakeSender struct{ sent int }

func (s *fakeSender) Name() string { return "mailing_list" }

func (s *fakeSender) Send(context.Context, delivery.Newsletter) (string, error) {
	s.sent++
	return "queued", nil
}

func episodes(n int) *int { return &n }

func testSnapshot() *content.Snapshot {
	return &content.Snapshot{
		Timestamp: "2026-10-19T08:00:00Z",
		Content: []content.Record{
			{ID: "1", Title: "Dune", Category: content.Movie, Requester: "Alice", SizeGiB: "5",
				AddedAt: "2024-01-05", WatchStatus: map[string]string{"bob": "watched"}},
			{ID: "2", Title: "Severance", Category: content.Show, Requester: content.Unknown,
				SizeGiB: content.Unknown, AddedAt: "2023-02-01", TotalEpisodes: episodes(19)},
		},
	}
}

type testEnv struct {
	srv     *Server
	backend *fakeBackend
	sender  *fakeSender
	fetcher *fakeFetcher
	db      *database.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fetcher := &fakeFetcher{snap: testSnapshot()}
	sess := session.New(store.New(fetcher))
	sender := &fakeSender{}
	cfg := &config.Config{Newsletter: config.Newsletter{Namespace: "staleflix", MessageFormat: config.MessageHTML}}
	clock := func() time.Time { return time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC) }
	p := pipeline.New(cfg, db, []delivery.Sender{sender}, pipeline.WithClock(clock))

	be := &fakeBackend{}
	srv, err := New(Deps{Session: sess, Backend: be, Pipeline: p, DB: db})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &testEnv{srv: srv, backend: be, sender: sender, fetcher: fetcher, db: db}
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) refresh(t *testing.T) {
	t.Helper()
	if rec := e.do(t, "POST", "/refresh", nil, ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("refresh: expected 303, got %d", rec.Code)
	}
}

func TestIndexBeforeRefresh(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No stale content loaded yet") {
		t.Error("expected empty state before the first refresh")
	}
}

func TestIndexAfterRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	body := env.do(t, "GET", "/", nil, "").Body.String()
	for _, want := range []string{"Dune", "Severance", "badge-unknown", "hsl(88, 70%, 80%)", "bob", "19"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in index", want)
		}
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	env.fetcher.snap, env.fetcher.err = nil, errors.New("backend down")
	rec := env.do(t, "POST", "/refresh", nil, "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Code != "fetch_failed" || resp.Error.RequestID == "" {
		t.Errorf("unexpected error envelope: %+v", resp.Error)
	}

	body := env.do(t, "GET", "/", nil, "").Body.String()
	if !strings.Contains(body, "Dune") {
		t.Error("expected previous snapshot to survive a failed refresh")
	}
}

func TestToggleAndSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	if rec := env.do(t, "POST", "/selection/1/toggle", nil, ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("toggle: expected 303, got %d", rec.Code)
	}

	rec := env.do(t, "POST", "/submit", nil, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d", rec.Code)
	}
	if len(env.backend.submitted) != 1 || env.backend.submitted[0] != "1" {
		t.Errorf("unexpected submitted ids: %v", env.backend.submitted)
	}
	if !strings.Contains(rec.Body.String(), "Selection received") {
		t.Error("expected backend message in response")
	}

	subs, _ := env.db.GetRecentSubmissions(5)
	if len(subs) != 1 || subs[0].Kind != database.KindSelection || !subs[0].OK {
		t.Errorf("unexpected submission log: %+v", subs)
	}
}

func TestSubmitFailureReported(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.do(t, "POST", "/selection/all", url.Values{"checked": {"true"}}, "")
	env.backend.err = &backend.SubmitError{Endpoint: "submit-selection", Status: 500, Err: errors.New("boom")}

	rec := env.do(t, "POST", "/submit", nil, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "level=error") {
		t.Errorf("expected error notice in redirect, got %s", loc)
	}

	// Selection is left as it was.
	if env.do(t, "GET", "/healthz", nil, "").Code != http.StatusOK {
		t.Fatal("healthz failed")
	}
	body := env.do(t, "GET", "/", nil, "").Body.String()
	if !strings.Contains(body, "2 selected") {
		t.Error("expected selection to survive a failed submit")
	}
}

func TestPushSendsSelectedRecords(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.do(t, "POST", "/selection/2/toggle", nil, "")

	rec := env.do(t, "POST", "/push", nil, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(env.backend.pushed) != 1 || env.backend.pushed[0].Title != "Severance" {
		t.Errorf("unexpected pushed records: %+v", env.backend.pushed)
	}
}

func TestSortRoute(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	if rec := env.do(t, "GET", "/sort/added_at", nil, ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	body := env.do(t, "GET", "/", nil, "").Body.String()
	if strings.Index(body, "Severance") > strings.Index(body, "Dune") {
		t.Error("expected ascending added_at order")
	}

	if rec := env.do(t, "GET", "/sort/bogus", nil, "application/json"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown key, got %d", rec.Code)
	}
}

func TestNewsletterPreview(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.do(t, "POST", "/selection/all", url.Values{"checked": {"true"}}, "")

	rec := env.do(t, "POST", "/newsletter/preview", url.Values{"message": {"<p>Time to clean up</p>"}}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Time to clean up", "Movies", "TV Shows", "Dune", "Severance"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in preview", want)
		}
	}
}

func TestNewsletterDownload(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.do(t, "POST", "/selection/1/toggle", nil, "")

	rec := env.do(t, "POST", "/newsletter/download", url.Values{"message": {"Hi"}}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="staleflix-newsletter-2026-10.html"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<style") || !strings.Contains(body, "Dune") {
		t.Error("expected inlined newsletter with the selected movie")
	}
	if env.sender.sent != 0 {
		t.Error("download must not deliver")
	}

	issues, _ := env.db.GetAllIssues()
	if len(issues) != 1 {
		t.Errorf("expected the download to be archived, got %d issues", len(issues))
	}
}

func TestNewsletterSend(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)
	env.do(t, "POST", "/selection/all", url.Values{"checked": {"true"}}, "")

	rec := env.do(t, "POST", "/newsletter/send", url.Values{"message": {"Hi"}}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if env.sender.sent != 1 {
		t.Errorf("expected one delivery, got %d", env.sender.sent)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/issues/") {
		t.Fatalf("expected redirect to the issue, got %s", loc)
	}

	page := env.do(t, "GET", strings.SplitN(loc, "?", 2)[0], nil, "")
	if page.Code != http.StatusOK {
		t.Fatalf("issue page: expected 200, got %d", page.Code)
	}
	if !strings.Contains(page.Body.String(), "October 2026") || !strings.Contains(page.Body.String(), "mailing_list") {
		t.Error("expected issue month and delivery on the issue page")
	}

	list := env.do(t, "GET", "/issues", nil, "").Body.String()
	if !strings.Contains(list, "October 2026") {
		t.Error("expected issue in the archive list")
	}
}

func TestIssueNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/issues/missing", nil, "application/json")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.refresh(t)

	rec := env.do(t, "GET", "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["loaded"] != true || health["records"] != float64(2) {
		t.Errorf("unexpected health: %v", health)
	}

	metrics := env.do(t, "GET", "/metrics", nil, "").Body.String()
	for _, want := range []string{"staleflix_http_requests_total", `staleflix_refreshes_total{result="ok"} 1`, "staleflix_session_events_total"} {
		if !strings.Contains(metrics, want) {
			t.Errorf("expected %q in metrics", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
}

func TestStaticFiles(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/static/style.css", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
