package ics

import (
	"testing"
	"time"
)

const recurringFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"DTSTART:20250901T160000Z\r\n" +
	"DTEND:20250901T170000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"EXDATE:20250908T160000Z\r\n" +
	"SUMMARY:Weekly meetup\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup\r\n" +
	"RECURRENCE-ID:20250915T160000Z\r\n" +
	"DTSTART:20250915T180000Z\r\n" +
	"DTEND:20250915T190000Z\r\n" +
	"SUMMARY:Weekly meetup (moved)\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestExpandRecurringWithExdateAndOverride(t *testing.T) {
	src := Source{ID: "club", Group: "A"}
	events, err := Normalize(src, []byte(recurringFeed), NormalizeOptions{
		Location:   time.UTC,
		RangeStart: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	// Four weekly occurrences minus one EXDATE.
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}

	ids := map[string]bool{}
	for _, ev := range events {
		if ids[ev.ID] {
			t.Errorf("duplicate id %q", ev.ID)
		}
		ids[ev.ID] = true
		if ev.Start.Day() == 8 {
			t.Errorf("excluded occurrence present: %v", ev.Start)
		}
		if ev.End.Sub(ev.Start) != time.Hour {
			t.Errorf("duration = %v", ev.End.Sub(ev.Start))
		}
	}

	moved := events[1]
	if moved.Title != "Weekly meetup (moved)" || moved.Start.Hour() != 18 {
		t.Errorf("override not applied: %q at %v", moved.Title, moved.Start)
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{
		RangeStart: time.Now(),
		RangeEnd:   time.Now().Add(-time.Hour),
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSyntheticIDIsStable(t *testing.T) {
	ev := ParsedEvent{Source: Source{ID: "s"}, Summary: "x", Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	if syntheticID(ev) != syntheticID(ev) {
		t.Fatal("synthetic id not stable")
	}
	other := ev
	other.Summary = "y"
	if syntheticID(ev) == syntheticID(other) {
		t.Fatal("distinct records share an id")
	}
}
