// Package match links derived group events to entries of the canonical
// reference pool.
package match

import (
	"strings"
	"time"

	"weekcal/internal/calendar"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
)

// DefaultThreshold is the minimum similarity for a fuzzy match.
const DefaultThreshold = 0.3

// Result is the outcome of matching one event.
type Result struct {
	Match   *model.Event
	Outcome model.MatchOutcome
	Score   float64
}

// Matcher finds the best canonical reference for a derived event.
type Matcher struct {
	Threshold float64
	// Verbatim lists sources whose events are always shown as-is.
	Verbatim map[string]bool
	// Synthetic generates fallback content when no candidate clears the
	// threshold. May be nil.
	Synthetic *SyntheticTable
	Location  *time.Location
}

// NewMatcher returns a Matcher with defaults applied.
func NewMatcher(threshold float64, verbatim []string, synthetic *SyntheticTable, loc *time.Location) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if loc == nil {
		loc = time.Local
	}
	v := make(map[string]bool, len(verbatim))
	for _, s := range verbatim {
		v[s] = true
	}
	return &Matcher{Threshold: threshold, Verbatim: v, Synthetic: synthetic, Location: loc}
}

// Match returns the single best reference for ev from pool.
//
// Same-day candidates only. One candidate is returned as-is; several are
// scored by title similarity and the best one at or above Threshold wins,
// first encountered on ties. Without a winner the synthetic table is
// consulted, then the first same-day candidate.
func (m *Matcher) Match(ev model.Event, pool []model.Event) Result {
	res := m.match(ev, pool)
	metrics.MatchOutcome(string(res.Outcome))
	return res
}

func (m *Matcher) match(ev model.Event, pool []model.Event) Result {
	if m.Verbatim[ev.Source] {
		return Result{Outcome: model.MatchVerbatim}
	}

	day := ev.Start.In(m.Location).Format(time.DateOnly)
	candidates := make([]model.Event, 0)
	for _, ref := range pool {
		if ref.Start.In(m.Location).Format(time.DateOnly) == day {
			candidates = append(candidates, ref)
		}
	}

	if len(candidates) == 1 {
		c := candidates[0]
		return Result{Match: &c, Outcome: model.MatchSingle, Score: Similarity(ev.Title, c.Title)}
	}

	if len(candidates) > 1 {
		best, bestScore := -1, 0.0
		for i, c := range candidates {
			s := Similarity(ev.Title, c.Title)
			if s > bestScore {
				best, bestScore = i, s
			}
		}
		if best >= 0 && bestScore >= m.Threshold {
			c := candidates[best]
			return Result{Match: &c, Outcome: model.MatchFuzzy, Score: bestScore}
		}
		appLog.Debug("match: no candidate cleared threshold",
			"title", ev.Title,
			"candidates", len(candidates),
			"best_score", bestScore,
		)
	}

	if m.Synthetic != nil {
		if syn, ok := m.Synthetic.Generate(ev, m.Location); ok {
			return Result{Match: &syn, Outcome: model.MatchSynthetic}
		}
	}

	if len(candidates) > 0 {
		c := candidates[0]
		return Result{Match: &c, Outcome: model.MatchFirst}
	}
	return Result{Outcome: model.MatchNone}
}

// Enrich matches every event against pool.
func (m *Matcher) Enrich(events []model.Event, pool []model.Event) []model.EnrichedEvent {
	out := make([]model.EnrichedEvent, 0, len(events))
	for _, ev := range events {
		r := m.Match(ev, pool)
		out = append(out, model.EnrichedEvent{
			Event:   ev,
			Match:   r.Match,
			Outcome: r.Outcome,
			Score:   r.Score,
		})
	}
	return out
}

// Similarity scores two titles in [0, 1]. Equal normalized titles score 1.
// Otherwise it is the number of tokens longer than two characters in a
// that equal, or contain or are contained by, such a token in b, divided by
// the larger eligible token count.
func Similarity(a, b string) float64 {
	na, nb := calendar.NormalizeTitle(a), calendar.NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := eligibleTokens(na), eligibleTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	matched := 0
	for _, x := range ta {
		for _, y := range tb {
			if x == y || strings.Contains(x, y) || strings.Contains(y, x) {
				matched++
				break
			}
		}
	}

	denom := max(len(ta), len(tb))
	score := float64(matched) / float64(denom)
	return min(score, 1)
}

func eligibleTokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}
