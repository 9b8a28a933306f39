package ics

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the timezone to which all events are converted.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences generated for recurring
	// events. Non-recurring events are passed through regardless; the
	// date-window filter decides what is shown.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the list of expanded events and information about
// truncation.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed records into concrete events. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence (DAILY/WEEKLY/MONTHLY/YEARLY, etc.)
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping feed order.
	order := make([]string, 0)
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		key := ev.UID
		if key == "" {
			key = syntheticID(ev)
		}
		if ev.IsOverride && ev.Recurrence != nil && ev.UID != "" {
			overridesByUID[key] = append(overridesByUID[key], ev)
			continue
		}
		if _, seen := baseByUID[key]; !seen {
			order = append(order, key)
		}
		baseByUID[key] = append(baseByUID[key], ev)
	}

	out := make([]model.Event, 0, len(events))

	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			out = append(out, occ...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	baseStart, baseEnd := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, baseStart); ok {
		baseStart, baseEnd = o.Start, o.End
		ev = o
	}
	return []model.Event{makeEvent(ev, baseStart, baseEnd, false, cfg.DisplayLocation)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		// Keep the base occurrence rather than losing the event entirely.
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return []model.Event{makeEvent(ev, ev.Start, ev.End, false, cfg.DisplayLocation)}, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	if cfg.RangeStart.IsZero() && cfg.RangeEnd.IsZero() {
		return []model.Event{makeEvent(ev, ev.Start, ev.End, true, cfg.DisplayLocation)}, false
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	occTimes := set.Between(rangeStart, rangeEnd, true)

	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		var occEnd time.Time
		switch {
		case ev.AllDay:
			// All-day: [date 00:00, next day 00:00) in event's timezone.
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.AddDate(0, 0, 1)
		case ev.HasEnd:
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		baseStart, baseEnd, baseEv := occStart, occEnd, ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			baseStart, baseEnd, baseEv = o.Start, o.End, o
		}

		out = append(out, makeEvent(baseEv, baseStart, baseEnd, true, cfg.DisplayLocation))
	}

	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID matches
// baseStart with exact time equality.
func findOverrideForStart(overrides []ParsedEvent, baseStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(baseStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts a (possibly overridden) ParsedEvent plus a concrete
// start/end into a model.Event normalized into displayLoc.
func makeEvent(ev ParsedEvent, start, end time.Time, instance bool, displayLoc *time.Location) model.Event {
	out := model.Event{
		Title:       ev.Summary,
		Start:       start.In(displayLoc),
		AllDay:      ev.AllDay,
		Location:    ev.Location,
		URL:         ev.URL,
		Description: ev.Description,
		Group:       model.Group(ev.Source.Group),
		Source:      ev.Source.ID,
		Organizer:   ev.Organizer,
		Status:      ev.Status,
		Categories:  ev.Categories,
	}
	if !end.IsZero() {
		out.End = end.In(displayLoc)
	}

	switch {
	case ev.UID == "":
		out.ID = syntheticIDAt(ev, start)
	case instance:
		// One id per occurrence of a recurring series.
		out.ID = ev.UID + "/" + start.UTC().Format(time.RFC3339)
	default:
		out.ID = ev.UID
	}
	return out
}

func syntheticID(ev ParsedEvent) string {
	return syntheticIDAt(ev, ev.Start)
}

// syntheticIDAt derives a stable name-based UUID for records without a UID
// so the same record keeps its id across refreshes.
func syntheticIDAt(ev ParsedEvent, start time.Time) string {
	name := ev.Source.ID + "|" + start.UTC().Format(time.RFC3339) + "|" + ev.Summary
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
