// Package digest builds the weekly analysis: it joins a group's calendar
// events with dated newsletter items, asks the model chain to categorize
// them, and caches the result for the rest of the day.
package digest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"weekcal/internal/ai"
	"weekcal/internal/cache"
	"weekcal/internal/calendar"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

const (
	// Items mentioning more than this many distinct dates are roundups.
	maxItemDates = 3
	summaryLimit = 230
	// Shorter normalized titles are too generic to cross-reference.
	minRefTitle = 4

	failedSummary = "Weekly analysis failed; items were classified by keyword only."
	emptySummary  = "Nothing scheduled for this week."
)

// Options configures an Analyzer.
type Options struct {
	Boundary      time.Weekday
	Location      *time.Location
	SocialSources []string
	// NoisePatterns are case-insensitive regular expressions matched
	// against digest item titles.
	NoisePatterns []string
	Temperature   float32
}

// Input is one analysis request.
type Input struct {
	Groups map[model.Group][]model.Event
	Digest *model.OrganizedDigest
	// Now anchors the week; zero means the current time.
	Now time.Time
}

// Analyzer produces weekly results. chain may be nil, in which case every
// result is the keyword-only fallback.
type Analyzer struct {
	chain      *ai.Chain
	cache      *cache.DayCache
	opts       Options
	noise      []*regexp.Regexp
	classifier *Classifier
	now        func() time.Time
}

// NewAnalyzer compiles the noise patterns and returns an Analyzer.
func NewAnalyzer(chain *ai.Chain, dc *cache.DayCache, opts Options) (*Analyzer, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	a := &Analyzer{
		chain:      chain,
		cache:      dc,
		opts:       opts,
		classifier: NewClassifier(opts.SocialSources),
		now:        time.Now,
	}
	for _, p := range opts.NoisePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("noise pattern %q: %w", p, err)
		}
		a.noise = append(a.noise, re)
	}
	return a, nil
}

type candidate struct {
	Title     string               `json:"title"`
	Date      string               `json:"date"`
	Start     time.Time            `json:"start,omitzero"`
	Source    string               `json:"source,omitempty"`
	Origin    string               `json:"origin"`
	Text      string               `json:"text,omitempty"`
	Ref       *model.DigestRef     `json:"ref,omitempty"`
	Annotated *model.TimeSensitive `json:"annotated,omitempty"`
}

// Analyze always returns a result. Same-day repeats with identical input
// are served from the cache with ProcessingMs 0 and Cached set.
func (a *Analyzer) Analyze(ctx context.Context, in Input) *model.WeeklyResult {
	began := time.Now()
	now := in.Now
	if now.IsZero() {
		now = a.now()
	}
	loc := a.opts.Location
	start, end := WeekRange(now, a.opts.Boundary, loc)

	groups := make([]model.Group, 0, len(in.Groups))
	for g := range in.Groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	digestItems := a.digestCandidates(in.Digest, now.In(loc), start, end)
	perGroup := make(map[model.Group][]candidate, len(groups))
	for _, g := range groups {
		perGroup[g] = a.joinCandidates(calendarCandidates(in.Groups[g], start, end, loc), digestItems, in.Digest)
	}

	key := cacheKey(start, perGroup)
	if a.cache != nil && key != "" {
		var cached model.WeeklyResult
		ok, err := a.cache.Get(ctx, key, &cached)
		if err != nil {
			appLog.Warn("weekly cache read failed", "error", err.Error())
		}
		if ok {
			cached.ProcessingMs = 0
			cached.Cached = true
			return &cached
		}
	}

	res := &model.WeeklyResult{
		WeekStart:  start.Format(time.DateOnly),
		WeekEnd:    end.Format(time.DateOnly),
		Groups:     make(map[model.Group]model.GroupAnalysis, len(groups)),
		ComputedAt: now,
	}
	for _, g := range groups {
		analysis, usedModel, failed := a.analyzeGroup(ctx, g, start, end, perGroup[g])
		res.Groups[g] = analysis
		if usedModel != "" {
			res.Model = usedModel
		}
		if failed {
			res.Fallback = true
		}
	}
	res.ProcessingMs = time.Since(began).Milliseconds()

	appLog.Info("weekly analysis complete",
		"week_start", res.WeekStart,
		"groups", len(res.Groups),
		"model", res.Model,
		"fallback", res.Fallback,
		"elapsed_ms", res.ProcessingMs,
	)

	// Fallback results are cached as well.
	if a.cache != nil && key != "" {
		if err := a.cache.Set(ctx, key, res); err != nil {
			appLog.Warn("weekly cache write failed", "error", err.Error())
		}
	}
	return res
}

func (a *Analyzer) analyzeGroup(ctx context.Context, g model.Group, start, end time.Time, items []candidate) (model.GroupAnalysis, string, bool) {
	if len(items) == 0 {
		return model.GroupAnalysis{Events: []model.ClassifiedEvent{}, Summary: emptySummary}, "", false
	}
	if a.chain == nil {
		return a.keywordOnly(items), "", true
	}

	temp := a.opts.Temperature
	text, usedModel, err := a.chain.Generate(ctx, ai.Request{
		Prompt:      weeklyPrompt(g, start, end, items),
		System:      weeklySystem,
		Temperature: &temp,
		JSON:        true,
	})
	if err != nil {
		appLog.Error("weekly analysis model chain failed", err, "group", string(g))
		return a.keywordOnly(items), "", true
	}
	resp, err := parseWeekly(text)
	if err != nil {
		appLog.Warn("weekly analysis response rejected", "group", string(g), "model", usedModel, "error", err.Error())
		return a.keywordOnly(items), usedModel, true
	}

	cats := make([]model.Category, len(items))
	pris := make([]model.Priority, len(items))
	assigned := make([]bool, len(items))
	for _, e := range resp.Events {
		idx := -1
		if e.ID != nil && *e.ID >= 0 && *e.ID < len(items) && !assigned[*e.ID] {
			idx = *e.ID
		} else {
			want := calendar.NormalizeTitle(e.Title)
			for i := range items {
				if !assigned[i] && calendar.NormalizeTitle(items[i].Title) == want {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			continue
		}
		assigned[idx] = true
		cats[idx] = model.Category(strings.ToLower(strings.TrimSpace(e.Type)))
		pris[idx] = model.Priority(strings.ToLower(strings.TrimSpace(e.Priority)))
	}

	events := make([]model.ClassifiedEvent, 0, len(items))
	backstopped := 0
	for i, it := range items {
		cat, pri := cats[i], pris[i]
		if !cat.Valid() {
			cat, pri = a.classifyItem(it)
			backstopped++
		} else if !pri.Valid() {
			pri = model.PriorityMedium
		}
		events = append(events, classified(it, cat, pri))
	}
	if backstopped > 0 {
		appLog.Debug("keyword classifier filled gaps", "group", string(g), "items", backstopped)
	}

	summary := strings.Join(strings.Fields(resp.Summary), " ")
	if summary == "" {
		summary = countSummary(events)
	}
	return model.GroupAnalysis{Events: events, Summary: truncateRunes(summary, summaryLimit)}, usedModel, false
}

func (a *Analyzer) keywordOnly(items []candidate) model.GroupAnalysis {
	events := make([]model.ClassifiedEvent, 0, len(items))
	for _, it := range items {
		cat, pri := a.classifyItem(it)
		events = append(events, classified(it, cat, pri))
	}
	return model.GroupAnalysis{Events: events, Summary: failedSummary}
}

// classifyItem runs the keyword classifier over the title and, for digest
// items, the plain-text content, where the deciding keyword often sits.
func (a *Analyzer) classifyItem(it candidate) (model.Category, model.Priority) {
	return a.classifier.Classify(it.Title+" "+it.Text, it.Source)
}

func classified(it candidate, cat model.Category, pri model.Priority) model.ClassifiedEvent {
	origin := model.OriginCalendar
	if it.Ref != nil {
		origin = model.OriginDigest
	}
	return model.ClassifiedEvent{
		Title:     it.Title,
		Date:      it.Date,
		Start:     it.Start,
		Category:  cat,
		Priority:  pri,
		Source:    it.Source,
		Origin:    origin,
		DigestRef: it.Ref,
		Annotated: it.Annotated,
	}
}

func countSummary(events []model.ClassifiedEvent) string {
	high := 0
	for _, e := range events {
		if e.Priority == model.PriorityHigh {
			high++
		}
	}
	return fmt.Sprintf("%d items this week, %d high priority.", len(events), high)
}

func calendarCandidates(events []model.Event, start, end time.Time, loc *time.Location) []candidate {
	out := make([]candidate, 0, len(events))
	for _, ev := range events {
		if !inRange(ev.Start, start, end) {
			continue
		}
		out = append(out, candidate{
			Title:  ev.Title,
			Date:   ev.Start.In(loc).Format(time.DateOnly),
			Start:  ev.Start,
			Source: ev.Source,
			Origin: model.OriginCalendar,
		})
	}
	return out
}

func (a *Analyzer) digestCandidates(d *model.OrganizedDigest, ref, start, end time.Time) []candidate {
	if d == nil {
		return nil
	}
	titleYear := YearFromTitle(d.Title)

	var out []candidate
	for si, sec := range d.Sections {
		for ii, item := range sec.Items {
			if a.isNoise(item.Title) {
				appLog.Debug("skipping noise item", "title", item.Title)
				continue
			}
			text := PlainText(item.HTML)

			ann := item.TimeSensitive
			extracted := false
			var dates []string
			if ann != nil && len(ann.Dates) > 0 {
				dates = distinct(ann.Dates)
			} else {
				dates = ExtractDates(item.Title+" "+text, ref, titleYear)
				extracted = len(dates) > 0
			}
			if len(dates) > maxItemDates {
				appLog.Debug("skipping multi-date item", "title", item.Title, "dates", len(dates))
				continue
			}

			var hits []string
			for _, day := range dates {
				if dayInRange(day, start, end) {
					hits = append(hits, day)
				}
			}
			if len(hits) == 0 {
				continue
			}
			if extracted {
				appLog.Debug("date taken from item text", "title", item.Title, "dates", strings.Join(hits, ","))
				ann = &model.TimeSensitive{
					Dates:     hits,
					EventType: inferEventType(item.Title + " " + text),
					Priority:  model.PriorityMedium,
				}
			}

			out = append(out, candidate{
				Title:  item.Title,
				Date:   hits[0],
				Source: d.SourceID,
				Origin: model.OriginDigest,
				Text:   text,
				Ref: &model.DigestRef{
					SectionIndex: si,
					ItemIndex:    ii,
					SectionTitle: sec.Title,
					ItemTitle:    item.Title,
				},
				Annotated: ann,
			})
		}
	}
	return out
}

// joinCandidates links calendar entries to digest items by title
// containment and drops digest items already represented by a calendar
// entry. The result is sorted by date.
func (a *Analyzer) joinCandidates(cal, dig []candidate, d *model.OrganizedDigest) []candidate {
	claimed := make(map[model.DigestRef]bool)
	for i := range cal {
		if ref := findDigestRef(cal[i].Title, d); ref != nil {
			cal[i].Ref = ref
			claimed[*ref] = true
		}
	}

	out := make([]candidate, 0, len(cal)+len(dig))
	out = append(out, cal...)
	for _, c := range dig {
		if c.Ref != nil && claimed[*c.Ref] {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

func findDigestRef(title string, d *model.OrganizedDigest) *model.DigestRef {
	if d == nil {
		return nil
	}
	want := calendar.NormalizeTitle(title)
	if len(want) < minRefTitle {
		return nil
	}
	for si, sec := range d.Sections {
		for ii, item := range sec.Items {
			got := calendar.NormalizeTitle(item.Title)
			if len(got) < minRefTitle {
				continue
			}
			if strings.Contains(got, want) || strings.Contains(want, got) {
				return &model.DigestRef{SectionIndex: si, ItemIndex: ii, SectionTitle: sec.Title, ItemTitle: item.Title}
			}
		}
	}
	return nil
}

func (a *Analyzer) isNoise(title string) bool {
	for _, re := range a.noise {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

func distinct(days []string) []string {
	seen := make(map[string]struct{}, len(days))
	out := make([]string, 0, len(days))
	for _, d := range days {
		d = strings.TrimSpace(d)
		if _, ok := seen[d]; ok || d == "" {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func cacheKey(start time.Time, perGroup map[model.Group][]candidate) string {
	fp, err := cache.Fingerprint(struct {
		Week   string                      `json:"week"`
		Groups map[model.Group][]candidate `json:"groups"`
	}{start.Format(time.DateOnly), perGroup})
	if err != nil {
		return ""
	}
	return start.Format(time.DateOnly) + ":" + fp
}
