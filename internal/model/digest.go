package model

import "time"

// EventType classifies a time-sensitive digest item.
type EventType string

const (
	EventTypeDeadline     EventType = "deadline"
	EventTypeEvent        EventType = "event"
	EventTypeAnnouncement EventType = "announcement"
	EventTypeReminder     EventType = "reminder"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeDeadline, EventTypeEvent, EventTypeAnnouncement, EventTypeReminder:
		return true
	}
	return false
}

// Priority is shared by digest annotations and weekly classifications.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TimeSensitive is structured date metadata attached to a digest item.
// A nil *TimeSensitive means the item is not time-sensitive; when present,
// Dates is non-empty.
type TimeSensitive struct {
	Dates     []string  `json:"dates"`              // YYYY-MM-DD
	Deadline  string    `json:"deadline,omitempty"` // YYYY-MM-DD
	EventType EventType `json:"eventType"`
	Priority  Priority  `json:"priority"`
}

// DigestItem is one titled block of digest content.
type DigestItem struct {
	Title         string         `json:"title"`
	HTML          string         `json:"html"`
	TimeSensitive *TimeSensitive `json:"timeSensitive,omitempty"`
}

// DigestSection groups items under a heading.
type DigestSection struct {
	Title string       `json:"sectionTitle"`
	Items []DigestItem `json:"items"`
}

// OrganizedDigest is the output of the AI content organizer.
type OrganizedDigest struct {
	SourceID  string          `json:"sourceId"`
	Title     string          `json:"title,omitempty"`
	Sections  []DigestSection `json:"sections"`
	DebugInfo string          `json:"debugInfo,omitempty"`

	Model          string `json:"model,omitempty"`
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallbackReason,omitempty"`
	Cached         bool   `json:"cached"`
}

// ItemCount returns the flattened number of items across sections.
func (d *OrganizedDigest) ItemCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Items)
	}
	return n
}

// RawDigestItem is an unorganized {title, content} pair as received.
type RawDigestItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// RawDigestSection is an unorganized section as received.
type RawDigestSection struct {
	Title string          `json:"title"`
	Items []RawDigestItem `json:"items"`
}

// DigestSource is the raw digest input. ID identifies the source for caching.
type DigestSource struct {
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	Sections []RawDigestSection `json:"sections"`
}

// Category is the weekly classification of an event or digest item.
type Category string

const (
	CategoryAssignment     Category = "assignment"
	CategoryClass          Category = "class"
	CategoryExam           Category = "exam"
	CategoryAdministrative Category = "administrative"
	CategorySocial         Category = "social"
	CategoryNewsletter     Category = "newsletter"
	CategoryOther          Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAssignment, CategoryClass, CategoryExam, CategoryAdministrative,
		CategorySocial, CategoryNewsletter, CategoryOther:
		return true
	}
	return false
}

// Origin values for ClassifiedEvent.Origin.
const (
	OriginCalendar = "calendar"
	OriginDigest   = "digest"
)

// DigestRef points back at the digest item a classified entry came from.
type DigestRef struct {
	SectionIndex int    `json:"sectionIndex"`
	ItemIndex    int    `json:"itemIndex"`
	SectionTitle string `json:"sectionTitle"`
	ItemTitle    string `json:"itemTitle"`
}

// ClassifiedEvent is one entry of a group's weekly list.
type ClassifiedEvent struct {
	Title    string    `json:"title"`
	Date     string    `json:"date"` // YYYY-MM-DD
	Start    time.Time `json:"start,omitzero"`
	Category Category  `json:"type"`
	Priority Priority  `json:"priority"`

	Source    string         `json:"source,omitempty"`
	Origin    string         `json:"origin"`
	DigestRef *DigestRef     `json:"digestRef,omitempty"`
	Annotated *TimeSensitive `json:"timeSensitive,omitempty"`
}

// GroupAnalysis is the per-group part of a weekly result.
type GroupAnalysis struct {
	Events  []ClassifiedEvent `json:"events"`
	Summary string            `json:"summary"`
}

// WeeklyResult is the output of the weekly digest analyzer.
type WeeklyResult struct {
	WeekStart string                  `json:"weekStart"` // YYYY-MM-DD
	WeekEnd   string                  `json:"weekEnd"`   // YYYY-MM-DD
	Groups    map[Group]GroupAnalysis `json:"groups"`

	ProcessingMs int64     `json:"processingMs"`
	Model        string    `json:"model,omitempty"`
	Fallback     bool      `json:"fallback"`
	Cached       bool      `json:"cached"`
	ComputedAt   time.Time `json:"computedAt"`
}
