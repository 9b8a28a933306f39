package model

import "time"

// Group is the partition under which events are aggregated separately
// (e.g. one of two parallel program tracks).
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
)

// Status mirrors the iCalendar STATUS property.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusTentative Status = "tentative"
	StatusCancelled Status = "cancelled"
)

// Event is a normalized calendar entry produced by the feed normalizer.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	Start time.Time `json:"start"`
	// End is the zero time when the feed did not carry one.
	End    time.Time `json:"end,omitzero"`
	AllDay bool      `json:"all_day"`

	Location    string `json:"location,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`

	Group  Group  `json:"group"`
	Source string `json:"source"` // feed that produced the event

	Organizer  string   `json:"organizer,omitempty"`
	Status     Status   `json:"status,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// HasEnd reports whether the event carries an explicit end time.
func (e Event) HasEnd() bool {
	return !e.End.IsZero()
}

// MatchOutcome records which matcher stage produced an enrichment.
type MatchOutcome string

const (
	MatchNone      MatchOutcome = "none"
	MatchVerbatim  MatchOutcome = "verbatim"
	MatchSingle    MatchOutcome = "single"
	MatchFuzzy     MatchOutcome = "fuzzy"
	MatchSynthetic MatchOutcome = "synthetic"
	MatchFirst     MatchOutcome = "first"
)

// EnrichedEvent pairs a group event with its best canonical reference.
type EnrichedEvent struct {
	Event
	Match   *Event       `json:"match,omitempty"`
	Outcome MatchOutcome `json:"match_outcome"`
	Score   float64      `json:"match_score,omitempty"`
}
