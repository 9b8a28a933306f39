package calendar

import (
	"testing"
	"time"

	"weekcal/internal/model"
)

func TestWindowBounds(t *testing.T) {
	now := at("2025-09-15", 12)
	events := []model.Event{
		ev("too old", "a", now.AddDate(0, 0, -31)),
		ev("lookback edge", "a", now.AddDate(0, 0, -30)),
		ev("yesterday", "a", now.AddDate(0, 0, -1)),
		ev("next week", "a", now.AddDate(0, 0, 7)),
		ev("ahead edge", "a", now.AddDate(0, 0, 14)),
		ev("far club", "club", now.AddDate(0, 3, 0)),
		ev("beyond horizon", "club", now.AddDate(2, 0, 0)),
	}
	opts := WindowOptions{
		Lookback:      30 * 24 * time.Hour,
		DaysAhead:     14,
		MaxEvents:     100,
		Authoritative: "club",
		Horizon:       365 * 24 * time.Hour,
	}

	got := Window(events, now, opts)

	titles := make([]string, len(got))
	for i, e := range got {
		titles[i] = e.Title
	}
	want := []string{"lookback edge", "yesterday", "next week", "far club"}
	if len(titles) != len(want) {
		t.Fatalf("got %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("got %v, want %v", titles, want)
		}
	}

	from, to := now.Add(-opts.Lookback), now.AddDate(0, 0, opts.DaysAhead)
	for _, e := range got {
		inWindow := !e.Start.Before(from) && e.Start.Before(to)
		if !inWindow && e.Source != "club" {
			t.Errorf("%q outside window without authority", e.Title)
		}
	}
}

func TestWindowTruncatesBeforeInjection(t *testing.T) {
	now := at("2025-09-15", 0)
	var events []model.Event
	for i := 0; i < 5; i++ {
		events = append(events, ev("class", "a", now.Add(time.Duration(i)*time.Hour)))
	}
	events = append(events, ev("club night", "club", now.AddDate(0, 1, 0)))

	got := Window(events, now, WindowOptions{
		Lookback:      time.Hour,
		DaysAhead:     7,
		MaxEvents:     2,
		Authoritative: "club",
		Horizon:       365 * 24 * time.Hour,
	})
	if len(got) != 3 {
		t.Fatalf("got %d events, want 2 truncated + 1 injected", len(got))
	}
	if got[2].Title != "club night" {
		t.Errorf("last = %q", got[2].Title)
	}
}

func TestWindowDoesNotDuplicateInjected(t *testing.T) {
	now := at("2025-09-15", 0)
	club := ev("club night", "club", now.AddDate(0, 0, 2))
	got := Window([]model.Event{club}, now, WindowOptions{
		Lookback:      time.Hour,
		DaysAhead:     7,
		Authoritative: "club",
		Horizon:       365 * 24 * time.Hour,
	})
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
}
