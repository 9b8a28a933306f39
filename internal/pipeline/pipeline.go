// Package pipeline wires feed loading, normalization, merging and window
// filtering into per-group event sets and the canonical reference pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"weekcal/internal/calendar"
	"weekcal/internal/config"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/match"
	"weekcal/internal/model"
)

// ErrUnknownGroup is returned for groups not listed in the config.
var ErrUnknownGroup = errors.New("unknown group")

// Snapshot is one full build of every group plus the reference pool.
type Snapshot struct {
	Groups    map[model.Group][]model.Event `json:"groups"`
	Reference []model.Event                 `json:"reference"`
	// ReferenceError is set when the reference feed could not be loaded
	// and Reference is empty as a result.
	ReferenceError string    `json:"reference_error,omitempty"`
	BuiltAt        time.Time `json:"built_at"`
}

// Pipeline builds event sets from configured feeds.
type Pipeline struct {
	cfg     *config.Config
	loader  *ics.Loader
	matcher *match.Matcher
	loc     *time.Location
	now     func() time.Time

	mu     sync.RWMutex
	latest *Snapshot
}

// New returns a Pipeline for cfg reading feeds through loader.
func New(cfg *config.Config, loader *ics.Loader) (*Pipeline, error) {
	loc := cfg.Location()
	synthetic, err := match.NewSyntheticTable(cfg.Match.Synthetic, loc)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:     cfg,
		loader:  loader,
		matcher: match.NewMatcher(cfg.Match.Threshold, cfg.Match.VerbatimSources, synthetic, loc),
		loc:     loc,
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source. Intended for tests.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Location is the zone used for calendar-day keys.
func (p *Pipeline) Location() *time.Location {
	return p.loc
}

// Groups returns the configured groups in order.
func (p *Pipeline) Groups() []model.Group {
	out := make([]model.Group, 0, len(p.cfg.Groups))
	for _, g := range p.cfg.Groups {
		out = append(out, model.Group(g))
	}
	return out
}

func (p *Pipeline) normalizeOptions(now time.Time) ics.NormalizeOptions {
	ahead := p.cfg.Window.DaysAhead
	if p.cfg.Authoritative.HorizonDays > ahead {
		ahead = p.cfg.Authoritative.HorizonDays
	}
	return ics.NormalizeOptions{
		ExcludedKeyword: p.cfg.Authoritative.Keyword,
		Location:        p.loc,
		RangeStart:      now.AddDate(0, 0, -p.cfg.Window.LookbackDays),
		RangeEnd:        now.AddDate(0, 0, ahead),
	}
}

// GroupEvents loads every feed of group concurrently, then merges and
// window-filters the result. Unavailable feeds contribute zero events.
func (p *Pipeline) GroupEvents(ctx context.Context, group model.Group) ([]model.Event, error) {
	if !slices.Contains(p.cfg.Groups, string(group)) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	now := p.now().In(p.loc)

	cfgSources := p.cfg.SourcesForGroup(string(group))
	sources := make([]ics.Source, 0, len(cfgSources))
	for _, c := range cfgSources {
		sources = append(sources, ics.SourceFromConfig(c))
	}

	outcomes := p.loader.LoadAll(ctx, sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := p.normalizeOptions(now)
	lists := make([][]model.Event, 0, len(outcomes))
	unavailable := 0
	for _, o := range outcomes {
		if o.Err != nil {
			unavailable++
			continue
		}
		events, err := ics.Normalize(o.Source, o.Result.Body, opts)
		if err != nil {
			appLog.Error("feed normalize failed", err, "group", string(group), "id", o.Source.ID)
			continue
		}
		lists = append(lists, events)
	}

	merged := calendar.Merge(group, lists, calendar.MergeOptions{
		Authoritative: p.cfg.Authoritative.Source,
		Location:      p.loc,
	})
	windowed := calendar.Window(merged.Events, now, calendar.WindowOptions{
		Lookback:      time.Duration(p.cfg.Window.LookbackDays) * 24 * time.Hour,
		DaysAhead:     p.cfg.Window.DaysAhead,
		MaxEvents:     p.cfg.Window.MaxEvents,
		Authoritative: p.cfg.Authoritative.Source,
		Horizon:       time.Duration(p.cfg.Authoritative.HorizonDays) * 24 * time.Hour,
	})

	appLog.Info("group events built",
		"group", string(group),
		"sources", len(sources),
		"unavailable", unavailable,
		"merged", len(merged.Events),
		"windowed", len(windowed),
	)
	return windowed, nil
}

// Reference loads the canonical reference pool. Unlike group feeds, an
// unavailable reference feed is an error.
func (p *Pipeline) Reference(ctx context.Context) ([]model.Event, error) {
	if p.cfg.Reference.ID == "" {
		return []model.Event{}, nil
	}
	src := ics.SourceFromConfig(p.cfg.Reference)
	res, err := p.loader.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("reference feed: %w", err)
	}
	events, err := ics.Normalize(src, res.Body, p.normalizeOptions(p.now().In(p.loc)))
	if err != nil {
		return nil, fmt.Errorf("reference feed: %w", err)
	}
	calendar.SortByStart(events)
	return events, nil
}

// Build loads all groups and the reference pool concurrently. A reference
// failure leaves the pool empty rather than failing the build.
func (p *Pipeline) Build(ctx context.Context) (*Snapshot, error) {
	groups := p.Groups()
	snap := &Snapshot{
		Groups:  make(map[model.Group][]model.Event, len(groups)),
		BuiltAt: p.now(),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, group := range groups {
		g.Go(func() error {
			events, err := p.GroupEvents(ctx, group)
			if err != nil {
				return err
			}
			mu.Lock()
			snap.Groups[group] = events
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		pool, err := p.Reference(ctx)
		if err != nil {
			appLog.Warn("continuing with empty reference pool", "error", err.Error())
			mu.Lock()
			snap.Reference = []model.Event{}
			snap.ReferenceError = err.Error()
			mu.Unlock()
			return nil
		}
		mu.Lock()
		snap.Reference = pool
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Refresh builds a new snapshot and stores it as the latest.
func (p *Pipeline) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := p.Build(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.latest = snap
	p.mu.Unlock()
	return snap, nil
}

// Snapshot returns the latest snapshot if it is younger than maxAge,
// otherwise it refreshes.
func (p *Pipeline) Snapshot(ctx context.Context, maxAge time.Duration) (*Snapshot, error) {
	p.mu.RLock()
	snap := p.latest
	p.mu.RUnlock()
	if snap != nil && p.now().Sub(snap.BuiltAt) < maxAge {
		return snap, nil
	}
	return p.Refresh(ctx)
}

// Enrich matches events against pool.
func (p *Pipeline) Enrich(events, pool []model.Event) []model.EnrichedEvent {
	return p.matcher.Enrich(events, pool)
}
