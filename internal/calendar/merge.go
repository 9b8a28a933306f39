// Package calendar reconciles normalized feed events into per-group sets:
// cross-feed deduplication and date-window filtering. Everything here is a
// pure function over its inputs.
package calendar

import (
	"sort"
	"strings"
	"time"
	"unicode"

	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
)

// MergeOptions configures Merge.
type MergeOptions struct {
	// Authoritative is the source id that is ground truth for its events.
	Authoritative string
	// Location defines calendar-day boundaries. Defaults to time.Local.
	Location *time.Location
}

// MergeResult is the deduplicated set and how many entries were dropped.
type MergeResult struct {
	Events  []model.Event
	Removed int
}

// DedupKey identifies duplicates across feeds.
type DedupKey struct {
	Day   string // YYYY-MM-DD in the merge location
	Title string // NormalizeTitle(title)
}

// KeyOf returns the dedup key for ev.
func KeyOf(ev model.Event, loc *time.Location) DedupKey {
	if loc == nil {
		loc = time.Local
	}
	return DedupKey{
		Day:   ev.Start.In(loc).Format(time.DateOnly),
		Title: NormalizeTitle(ev.Title),
	}
}

// NormalizeTitle lower-cases s, strips punctuation and collapses whitespace.
func NormalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
		// Everything else is punctuation and dropped without a separator.
	}
	return b.String()
}

// Merge combines event lists from several sources of one group into a
// single deduplicated list sorted by start.
//
// Per key, an event from the authoritative source replaces a
// non-authoritative one already present, a non-authoritative event never
// replaces an authoritative one, and otherwise the first one seen wins.
func Merge(group model.Group, lists [][]model.Event, opts MergeOptions) MergeResult {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	index := make(map[DedupKey]int)
	out := make([]model.Event, 0)
	removed := 0

	for _, list := range lists {
		for _, ev := range list {
			key := KeyOf(ev, loc)
			pos, exists := index[key]
			if !exists {
				index[key] = len(out)
				out = append(out, ev)
				continue
			}

			removed++
			incomingAuth := opts.Authoritative != "" && ev.Source == opts.Authoritative
			existingAuth := opts.Authoritative != "" && out[pos].Source == opts.Authoritative
			if incomingAuth && !existingAuth {
				appLog.Debug("dedup: authoritative override",
					"group", group,
					"title", ev.Title,
					"replaced_source", out[pos].Source,
				)
				out[pos] = ev
			}
		}
	}

	SortByStart(out)

	if removed > 0 {
		appLog.Info("dedup: removed duplicates", "group", group, "removed", removed, "kept", len(out))
		metrics.DedupRemoved(string(group), removed)
	}

	return MergeResult{Events: out, Removed: removed}
}

// SortByStart sorts events ascending by start; ties fall back to title so
// output is deterministic.
func SortByStart(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].Title < events[j].Title
	})
}
