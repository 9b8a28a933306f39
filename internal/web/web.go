package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"weekcal/internal/ai"
	"weekcal/internal/config"
	"weekcal/internal/digest"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
	"weekcal/internal/pipeline"
)

const (
	// Requests reuse a pipeline snapshot this young instead of refetching.
	snapshotMaxAge = 30 * time.Second
	maxBodyBytes   = 2 << 20
)

// Server provides the HTTP API over the pipeline, organizer and analyzer.
type Server struct {
	cfg       *config.Config
	pipe      *pipeline.Pipeline
	organizer *ai.Organizer
	analyzer  *digest.Analyzer
	mux       *http.ServeMux

	// Most recent organized digest, used by /api/digest/weekly when the
	// request does not carry one.
	digestMu   sync.RWMutex
	lastDigest *model.OrganizedDigest
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, pipe *pipeline.Pipeline, organizer *ai.Organizer, analyzer *digest.Analyzer) *Server {
	s := &Server{
		cfg:       cfg,
		pipe:      pipe,
		organizer: organizer,
		analyzer:  analyzer,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/reference", s.handleReference)
	s.mux.HandleFunc("POST /api/digest/organize", s.handleOrganize)
	s.mux.HandleFunc("POST /api/digest/weekly", s.handleWeekly)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Groups          map[model.Group]any `json:"groups"`
	Enriched        bool                `json:"enriched"`
	BuiltAt         time.Time           `json:"built_at"`
	DisplayTimeZone string              `json:"display_timezone"`
	WeekStart       string              `json:"week_start"`
	ReferenceError  string              `json:"reference_error,omitempty"`
}

// handleEvents returns merged, window-filtered events.
//
// GET /api/events?group=A&enrich=1
//   - group:  one configured group; all groups when empty
//   - enrich: attach the best canonical reference match to each event
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	group := model.Group(q.Get("group"))
	enrich := parseBool(q.Get("enrich"))

	groups := s.pipe.Groups()
	if group != "" {
		if !containsGroup(groups, group) {
			writeError(w, http.StatusNotFound, "unknown group")
			return
		}
		groups = []model.Group{group}
	}

	snap, err := s.pipe.Snapshot(r.Context(), snapshotMaxAge)
	if err != nil {
		appLog.Error("api events: pipeline build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build events")
		return
	}

	resp := eventsResponse{
		Groups:          make(map[model.Group]any, len(groups)),
		Enriched:        enrich,
		BuiltAt:         snap.BuiltAt,
		DisplayTimeZone: s.pipe.Location().String(),
		WeekStart:       s.cfg.WeekStart,
		ReferenceError:  snap.ReferenceError,
	}
	for _, g := range groups {
		events := snap.Groups[g]
		if events == nil {
			events = []model.Event{}
		}
		if enrich {
			resp.Groups[g] = s.pipe.Enrich(events, snap.Reference)
		} else {
			resp.Groups[g] = events
		}
	}

	appLog.Debug("api events request", "group", string(group), "enrich", enrich, "groups", len(groups))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	snap, err := s.pipe.Snapshot(r.Context(), snapshotMaxAge)
	if err != nil {
		appLog.Error("api reference: pipeline build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build reference pool")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Events []model.Event `json:"events"`
		Error  string        `json:"error,omitempty"`
	}{snap.Reference, snap.ReferenceError})
}

// handleOrganize restructures a raw digest.
//
// POST /api/digest/organize with a model.DigestSource body.
func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	var src model.DigestSource
	if err := decodeBody(w, r, &src); err != nil {
		writeError(w, http.StatusBadRequest, "invalid digest: "+err.Error())
		return
	}
	if len(src.Sections) == 0 {
		writeError(w, http.StatusBadRequest, "digest has no sections")
		return
	}

	out := s.organizer.Organize(r.Context(), src)
	s.rememberDigest(out)
	writeJSON(w, http.StatusOK, out)
}

// weeklyRequest is the optional body of /api/digest/weekly. Source is
// organized first; Organized is used as-is. With neither, the last
// organized digest is used.
type weeklyRequest struct {
	Source    *model.DigestSource    `json:"source,omitempty"`
	Organized *model.OrganizedDigest `json:"organized,omitempty"`
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	var req weeklyRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	ctx := r.Context()
	var dig *model.OrganizedDigest
	switch {
	case req.Source != nil:
		dig = s.organizer.Organize(ctx, *req.Source)
		s.rememberDigest(dig)
	case req.Organized != nil:
		dig = req.Organized
	default:
		s.digestMu.RLock()
		dig = s.lastDigest
		s.digestMu.RUnlock()
	}

	snap, err := s.pipe.Snapshot(ctx, snapshotMaxAge)
	if err != nil {
		appLog.Error("api weekly: pipeline build failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build events")
		return
	}

	res := s.analyzer.Analyze(ctx, digest.Input{Groups: snap.Groups, Digest: dig})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) rememberDigest(d *model.OrganizedDigest) {
	if d == nil {
		return
	}
	s.digestMu.Lock()
	s.lastDigest = d
	s.digestMu.Unlock()
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func containsGroup(groups []model.Group, g model.Group) bool {
	for _, x := range groups {
		if x == g {
			return true
		}
	}
	return false
}

func parseBool(s string) bool {
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
