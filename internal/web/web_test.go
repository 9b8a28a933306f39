package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"weekcal/internal/ai"
	"weekcal/internal/cache"
	"weekcal/internal/config"
	"weekcal/internal/digest"
	"weekcal/internal/ics"
	"weekcal/internal/model"
	"weekcal/internal/pipeline"
)

const testFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//weekcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:l1\r\nDTSTART:20250916T090000Z\r\nSUMMARY:Lecture 1\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const refFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//weekcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:r1\r\nDTSTART:20250916T080000Z\r\nSUMMARY:Lecture 1: Intro\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

type stubGen struct{ text string }

func (g stubGen) Generate(context.Context, string, ai.Request) (string, error) {
	return g.text, nil
}

func newTestServer(t *testing.T, auth *config.BasicAuthConfig) http.Handler {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cs101.ics"), []byte(testFeed), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ref.ics"), []byte(refFeed), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.FeedDir = dir
	cfg.CacheDir = t.TempDir()
	cfg.Sources = []config.SourceConfig{{ID: "cs101", Group: "A", Kind: config.KindCourse}}
	cfg.Reference = config.SourceConfig{ID: "ref", Kind: config.KindCanonical}
	cfg.BasicAuth = auth
	cfg.Normalize()

	now := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	pipe, err := pipeline.New(cfg, ics.NewLoader(cfg.FeedDir, cfg.CacheDir))
	if err != nil {
		t.Fatal(err)
	}
	pipe.SetClock(func() time.Time { return now })

	chain := ai.NewChain(stubGen{text: "not json"}, []string{"m1"})
	organizer := ai.NewOrganizer(chain, cache.NewMemory(), time.Hour, 0.2)
	analyzer, err := digest.NewAnalyzer(nil, nil, digest.Options{Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(cfg, pipe, organizer, analyzer).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	h := newTestServer(t, &config.BasicAuthConfig{Username: "u", Password: "p"})

	if rec := do(t, h, http.MethodGet, "/api/events", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated = %d", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/events?group=A&enrich=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Groups   map[string][]model.EnrichedEvent `json:"groups"`
		Enriched bool                             `json:"enriched"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	events := resp.Groups["A"]
	if !resp.Enriched || len(events) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if events[0].Outcome != model.MatchSingle || events[0].Match == nil || events[0].Match.Title != "Lecture 1: Intro" {
		t.Errorf("event = %+v", events[0])
	}

	if rec := do(t, h, http.MethodGet, "/api/events?group=Z", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown group = %d", rec.Code)
	}
}

func TestOrganizeEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	body := `{"id":"n1","title":"News","sections":[{"title":"S","items":[{"title":"Item","content":"<p>x</p>"}]}]}`
	rec := do(t, h, http.MethodPost, "/api/digest/organize", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var out model.OrganizedDigest
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Fallback || out.ItemCount() != 1 {
		t.Errorf("organized = %+v", out)
	}

	if rec := do(t, h, http.MethodPost, "/api/digest/organize", `{"bogus":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/digest/organize", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET organize = %d", rec.Code)
	}
}

func TestWeeklyEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/api/digest/weekly", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res model.WeeklyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.WeekStart == "" || res.Groups == nil {
		t.Errorf("weekly = %+v", res)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	_ = do(t, h, http.MethodGet, "/api/events", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "weekcal_feed_fetch_total") {
		t.Errorf("metrics = %d", rec.Code)
	}
}
