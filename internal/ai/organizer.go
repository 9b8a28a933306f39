package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"weekcal/internal/cache"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
)

var (
	// ErrNotJSONObject means the response was not framed as a JSON object.
	ErrNotJSONObject = errors.New("response is not a JSON object")
	// ErrNoSections means the response parsed but carried no sections.
	ErrNoSections = errors.New("response has no sections")
)

const organizerCacheName = "organizer"

// Organizer restructures raw digest content through the model chain.
type Organizer struct {
	chain       *Chain
	store       cache.Store
	ttl         time.Duration
	temperature float32
}

// NewOrganizer returns an Organizer. store may be nil to disable caching.
func NewOrganizer(chain *Chain, store cache.Store, ttl time.Duration, temperature float32) *Organizer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Organizer{chain: chain, store: store, ttl: ttl, temperature: temperature}
}

// Organize always returns a usable digest. Failures produce the fallback
// structure with Fallback set and a reason; those are not cached.
func (o *Organizer) Organize(ctx context.Context, src model.DigestSource) *model.OrganizedDigest {
	key := o.cacheKey(src)
	if cached, ok := o.lookup(ctx, key); ok {
		appLog.Debug("organizer cache hit", "source", src.ID)
		cached.Cached = true
		return cached
	}

	prompt, err := OrganizerPrompt(src)
	if err != nil {
		return Fallback(src, "could not serialize digest: "+err.Error())
	}

	temp := o.temperature
	text, usedModel, err := o.chain.Generate(ctx, Request{
		Prompt:      prompt,
		System:      OrganizerSystemPrompt(),
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		appLog.Error("organizer model chain failed", err, "source", src.ID)
		return Fallback(src, "AI organization unavailable: "+err.Error())
	}

	out, err := ParseOrganized(text)
	if err != nil {
		appLog.Warn("organizer response rejected", "source", src.ID, "model", usedModel, "error", err.Error())
		fb := Fallback(src, "AI response could not be parsed: "+err.Error())
		fb.Model = usedModel
		return fb
	}
	out.SourceID = src.ID
	out.Title = src.Title
	out.Model = usedModel

	appLog.Info("organized digest",
		"source", src.ID,
		"model", usedModel,
		"sections", len(out.Sections),
		"items", out.ItemCount(),
	)
	o.save(ctx, key, out)
	return out
}

// ParseOrganized validates a model response. It strips an optional code
// fence, requires {…} framing and at least one section, and drops
// annotations that carry no dates.
func ParseOrganized(text string) (*model.OrganizedDigest, error) {
	s := stripCodeFence(text)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, ErrNotJSONObject
	}

	var wire struct {
		Sections  []model.DigestSection `json:"sections"`
		DebugInfo json.RawMessage       `json:"debugInfo"`
	}
	if err := json.Unmarshal([]byte(s), &wire); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(wire.Sections) == 0 {
		return nil, ErrNoSections
	}

	for si := range wire.Sections {
		sec := &wire.Sections[si]
		if sec.Items == nil {
			sec.Items = []model.DigestItem{}
		}
		for ii := range sec.Items {
			sec.Items[ii].TimeSensitive = cleanAnnotation(sec.Items[ii].TimeSensitive)
		}
	}

	return &model.OrganizedDigest{
		Sections:  wire.Sections,
		DebugInfo: debugText(wire.DebugInfo),
	}, nil
}

// Fallback returns src's sections unreorganized.
func Fallback(src model.DigestSource, reason string) *model.OrganizedDigest {
	sections := make([]model.DigestSection, 0, len(src.Sections))
	for _, rs := range src.Sections {
		items := make([]model.DigestItem, 0, len(rs.Items))
		for _, it := range rs.Items {
			items = append(items, model.DigestItem{Title: it.Title, HTML: it.Content})
		}
		sections = append(sections, model.DigestSection{Title: rs.Title, Items: items})
	}
	return &model.OrganizedDigest{
		SourceID:       src.ID,
		Title:          src.Title,
		Sections:       sections,
		Fallback:       true,
		FallbackReason: reason,
	}
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func cleanAnnotation(ts *model.TimeSensitive) *model.TimeSensitive {
	if ts == nil {
		return nil
	}
	dates := ts.Dates[:0]
	for _, d := range ts.Dates {
		d = strings.TrimSpace(d)
		if _, err := time.Parse(time.DateOnly, d); err == nil {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil
	}
	ts.Dates = dates
	if _, err := time.Parse(time.DateOnly, ts.Deadline); err != nil {
		ts.Deadline = ""
	}
	if !ts.EventType.Valid() {
		ts.EventType = model.EventTypeEvent
	}
	if !ts.Priority.Valid() {
		ts.Priority = model.PriorityMedium
	}
	return ts
}

// debugText accepts debugInfo as a string or any other JSON value.
func debugText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (o *Organizer) cacheKey(src model.DigestSource) string {
	if src.ID != "" {
		return organizerCacheName + ":" + src.ID
	}
	fp, err := cache.Fingerprint(src)
	if err != nil {
		return ""
	}
	return organizerCacheName + ":anon:" + fp
}

func (o *Organizer) lookup(ctx context.Context, key string) (*model.OrganizedDigest, bool) {
	if o.store == nil || key == "" {
		return nil, false
	}
	raw, ok, err := o.store.Get(ctx, key)
	if err != nil {
		appLog.Warn("organizer cache read failed", "error", err.Error())
		return nil, false
	}
	if !ok {
		metrics.CacheLookup(organizerCacheName, false)
		return nil, false
	}
	var out model.OrganizedDigest
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = o.store.Invalidate(ctx, key)
		metrics.CacheLookup(organizerCacheName, false)
		return nil, false
	}
	metrics.CacheLookup(organizerCacheName, true)
	return &out, true
}

func (o *Organizer) save(ctx context.Context, key string, out *model.OrganizedDigest) {
	if o.store == nil || key == "" {
		return
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := o.store.Set(ctx, key, raw, o.ttl); err != nil {
		appLog.Warn("organizer cache write failed", "error", err.Error())
	}
}
