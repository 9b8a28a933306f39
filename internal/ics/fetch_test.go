package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func writeFeed(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoaderResolution(t *testing.T) {
	feedDir := t.TempDir()
	writeFeed(t, feedDir, "cs101.ics", sampleFeed)
	writeFeed(t, feedDir, "empty.ics", "  \n")
	writeFeed(t, feedDir, "old-name.ics", sampleFeed)

	l := NewLoader(feedDir, t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name     string
		src      Source
		wantPath string
		wantErr  bool
	}{
		{"local file", Source{ID: "cs101"}, PathFile, false},
		{"empty file fails", Source{ID: "empty"}, "", true},
		{"missing file fails", Source{ID: "nope"}, "", true},
		{"legacy fallback", Source{ID: "new-name", LegacyID: "old-name"}, PathLegacy, false},
		{"empty primary uses legacy", Source{ID: "empty", LegacyID: "old-name"}, PathLegacy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := l.Load(ctx, tt.src)
			if tt.wantErr {
				if !errors.Is(err, ErrFeedUnavailable) {
					t.Fatalf("err = %v, want ErrFeedUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if res.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", res.Path, tt.wantPath)
			}
			if len(res.Body) == 0 {
				t.Error("empty body")
			}
		})
	}
}

func TestLoaderURLWithConditionalCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	l := NewLoader(t.TempDir(), t.TempDir())
	src := Source{ID: "special", URL: srv.URL + "/feed.ics"}

	first, err := l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if first.Path != PathURL || first.FromCache {
		t.Errorf("first load path=%q from_cache=%v", first.Path, first.FromCache)
	}

	second, err := l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !second.FromCache || string(second.Body) != sampleFeed {
		t.Errorf("second load from_cache=%v body match=%v", second.FromCache, string(second.Body) == sampleFeed)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d", hits.Load())
	}
}

func TestLoaderURLFailureFallsBackToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	feedDir := t.TempDir()
	writeFeed(t, feedDir, "special.ics", sampleFeed)

	l := NewLoader(feedDir, t.TempDir())
	res, err := l.Load(context.Background(), Source{ID: "special", URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Path != PathFile {
		t.Errorf("path = %q, want file", res.Path)
	}
}

func TestLoadAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	feedDir := t.TempDir()
	writeFeed(t, feedDir, "a.ics", sampleFeed)
	writeFeed(t, feedDir, "c.ics", sampleFeed)

	l := NewLoader(feedDir, t.TempDir())
	out := l.LoadAll(context.Background(), []Source{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	if len(out) != 3 {
		t.Fatalf("got %d outcomes", len(out))
	}
	if out[0].Err != nil || out[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", out[0].Err, out[2].Err)
	}
	if !errors.Is(out[1].Err, ErrFeedUnavailable) {
		t.Errorf("b err = %v", out[1].Err)
	}
	if out[2].Source.ID != "c" {
		t.Errorf("order not kept: %q", out[2].Source.ID)
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://example.com/private.ics?token=x"); got != "https://example.com/...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
	if got := redactURL("not a url"); got != "ics://...(redacted)" {
		t.Errorf("redactURL = %q", got)
	}
}
