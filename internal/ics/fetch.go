package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
)

// ErrFeedUnavailable is returned when no resolution path produced a
// non-empty feed body.
var ErrFeedUnavailable = errors.New("feed unavailable")

// Source represents a single calendar feed.
type Source struct {
	// ID is an internal identifier (e.g., config source ID).
	ID    string
	Group string
	Kind  string
	// URL is the explicit override location.
	URL string
	// File is a local override path; empty means <feed_dir>/<ID>.ics.
	File     string
	LegacyID string
}

// SourceFromConfig converts a config entry.
func SourceFromConfig(c config.SourceConfig) Source {
	return Source{
		ID:       c.ID,
		Group:    c.Group,
		Kind:     c.Kind,
		URL:      c.URL,
		File:     c.File,
		LegacyID: c.LegacyID,
	}
}

// Resolution paths reported in FetchResult.Path and logs.
const (
	PathURL    = "url"
	PathFile   = "file"
	PathLegacy = "legacy"
)

// FetchResult contains the outcome of loading a single source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused cached body due to 304 or network failure
	Path      string // which resolution path produced Body
}

// cacheEntry holds HTTP cache metadata for a single ICS URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher is responsible for fetching ICS feeds with HTTP caching
// (ETag / Last-Modified) and disk-backed cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a new ICS Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. Example: "/var/lib/weekcal/http-cache".
func NewFetcher(cacheDir string) *Fetcher {
	if cacheDir == "" {
		// Development runs without root permissions.
		cacheDir = "./var/http-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
	}
}

// FetchOne fetches a single ICS URL, honoring ETag and Last-Modified.
// It uses a disk cache under f.cacheDir keyed by a hash of the URL.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("source URL is empty")
	}

	cachePath, err := f.cachePathForURL(src.URL)
	if err != nil {
		return FetchResult{}, err
	}

	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}

	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: cachedBody, FromCache: true, Path: PathURL}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return FetchResult{}, readErr
		}

		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}

		return FetchResult{Source: src, Body: body, Path: PathURL}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: cachedBody, FromCache: true, Path: PathURL}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
			return FetchResult{Source: src, Body: cachedBody, FromCache: true, Path: PathURL}, nil
		}
		return FetchResult{}, errors.New(resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(url string) (string, error) {
	if url == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(f.cacheDir, dir), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// Loader resolves a source to raw feed text. Resolution order:
//
//  1. the explicit override URL, if configured
//  2. the local override file, if present and non-empty
//  3. the legacy identifier's local file, for sources that carry one
//
// Anything else is ErrFeedUnavailable.
type Loader struct {
	fetcher *Fetcher
	feedDir string
}

// NewLoader creates a Loader reading local overrides from feedDir.
func NewLoader(feedDir, cacheDir string) *Loader {
	return &Loader{
		fetcher: NewFetcher(cacheDir),
		feedDir: feedDir,
	}
}

// Load returns raw feed text for src.
func (l *Loader) Load(ctx context.Context, src Source) (FetchResult, error) {
	if res, ok := l.loadPrimary(ctx, src); ok {
		return res, nil
	}

	if src.LegacyID != "" {
		path := l.filePath(src.LegacyID, "")
		body, err := readNonEmpty(path)
		if err == nil {
			appLog.Info("feed loaded", "id", src.ID, "path", PathLegacy, "legacy_id", src.LegacyID, "bytes", len(body))
			metrics.FeedFetch(src.ID, PathLegacy, "ok")
			return FetchResult{Source: src, Body: body, Path: PathLegacy}, nil
		}
		appLog.Debug("legacy feed not usable", "id", src.ID, "legacy_id", src.LegacyID, "err", err)
	}

	metrics.FeedFetch(src.ID, "none", "unavailable")
	appLog.Warn("feed unavailable", "id", src.ID)
	return FetchResult{}, fmt.Errorf("%w: %s", ErrFeedUnavailable, src.ID)
}

func (l *Loader) loadPrimary(ctx context.Context, src Source) (FetchResult, bool) {
	if src.URL != "" {
		res, err := l.fetcher.FetchOne(ctx, src)
		switch {
		case err != nil:
			appLog.Error("feed url fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
			metrics.FeedFetch(src.ID, PathURL, "error")
		case len(strings.TrimSpace(string(res.Body))) == 0:
			appLog.Warn("feed url returned empty body", "id", src.ID, "url", redactURL(src.URL))
			metrics.FeedFetch(src.ID, PathURL, "empty")
		default:
			appLog.Info("feed loaded", "id", src.ID, "path", PathURL, "from_cache", res.FromCache, "bytes", len(res.Body))
			metrics.FeedFetch(src.ID, PathURL, "ok")
			return res, true
		}
	}

	path := l.filePath(src.ID, src.File)
	body, err := readNonEmpty(path)
	if err != nil {
		appLog.Debug("feed file not usable", "id", src.ID, "file", path, "err", err)
		return FetchResult{}, false
	}
	appLog.Info("feed loaded", "id", src.ID, "path", PathFile, "file", path, "bytes", len(body))
	metrics.FeedFetch(src.ID, PathFile, "ok")
	return FetchResult{Source: src, Body: body, Path: PathFile}, true
}

func (l *Loader) filePath(id, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(l.feedDir, id+".ics")
}

func readNonEmpty(path string) ([]byte, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("empty file")
	}
	return body, nil
}

// LoadOutcome is one entry of LoadAll's result; exactly one of Result/Err
// is meaningful.
type LoadOutcome struct {
	Source Source
	Result FetchResult
	Err    error
}

// LoadAll loads every source concurrently. A failing source never cancels
// its siblings; outcomes are returned in input order.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) []LoadOutcome {
	out := make([]LoadOutcome, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			res, err := l.Load(ctx, src)
			out[i] = LoadOutcome{Source: src, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// redactURL hides sensitive parts of an ICS URL for logging purposes.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "ics://...(redacted)"
	}
	i += 3

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}

	return u[:j] + redactedSuffix
}
