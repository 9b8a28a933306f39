package ics

import (
	"strings"
	"testing"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/model"
)

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//weekcal//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-1\r\n" +
	"DTSTART:20250917T170000Z\r\n" +
	"DTEND:20250917T180000Z\r\n" +
	"SUMMARY:Workshop on\r\n" +
	"  distributed systems\r\n" +
	"LOCATION:Room 101\r\n" +
	"DESCRIPTION:Bring a laptop\\, charger\r\n" +
	"ORGANIZER;CN=Dr. Smith:mailto:smith@example.edu\r\n" +
	"STATUS:TENTATIVE\r\n" +
	"CATEGORIES:lecture,core\r\n" +
	"END:VEVENT\r\n" +
	"\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-2\r\n" +
	"DTSTART;VALUE=DATE:20250918\r\n" +
	"SUMMARY:Reading day\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-3\r\n" +
	"SUMMARY:Missing start\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-4\r\n" +
	"DTSTART:20250920T000000\r\n" +
	"SUMMARY:Midnight no end\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	src := Source{ID: "cs101", Group: "A", Kind: config.KindCourse}
	events, err := ParseICS(src, []byte(sampleFeed), ParseOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (missing DTSTART skipped)", len(events))
	}

	first := events[0]
	if first.Summary != "Workshop on distributed systems" {
		t.Errorf("summary = %q", first.Summary)
	}
	if first.Description != "Bring a laptop, charger" {
		t.Errorf("description = %q", first.Description)
	}
	if first.Organizer != "Dr. Smith" {
		t.Errorf("organizer = %q", first.Organizer)
	}
	if first.Status != model.StatusTentative {
		t.Errorf("status = %q", first.Status)
	}
	if strings.Join(first.Categories, "|") != "lecture|core" {
		t.Errorf("categories = %v", first.Categories)
	}
	if first.AllDay || !first.HasEnd {
		t.Errorf("first event all-day=%v has-end=%v", first.AllDay, first.HasEnd)
	}
	if want := time.Date(2025, 9, 17, 17, 0, 0, 0, time.UTC); !first.Start.Equal(want) {
		t.Errorf("start = %v, want %v", first.Start, want)
	}

	if !events[1].AllDay {
		t.Errorf("date-only event not flagged all-day")
	}
	if got := events[1].Start.Format("2006-01-02"); got != "2025-09-18" {
		t.Errorf("date-only start = %s", got)
	}
	if !events[2].AllDay {
		t.Errorf("midnight event without end not flagged all-day")
	}
}

func TestParseICSSanitizesSecondaryFeeds(t *testing.T) {
	feed := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:a\r\nDTSTART:20250917T170000Z\r\nSUMMARY:Chess Club Meetup\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:b\r\nDTSTART:20250918T170000Z\r\nSUMMARY:Office hours\r\n" +
		"DESCRIPTION:Room 4\\nAfterwards join the chess club\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	tests := []struct {
		name     string
		kind     string
		wantN    int
		wantDesc string
	}{
		{"people feed drops and scrubs", config.KindPeople, 1, "Room 4"},
		{"canonical feed drops and scrubs", config.KindCanonical, 1, "Room 4"},
		{"course feed keeps everything", config.KindCourse, 2, "Room 4\nAfterwards join the chess club"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Source{ID: "feed", Kind: tt.kind}
			events, err := ParseICS(src, []byte(feed), ParseOptions{ExcludedKeyword: "club", Location: time.UTC})
			if err != nil {
				t.Fatalf("ParseICS: %v", err)
			}
			if len(events) != tt.wantN {
				t.Fatalf("got %d events, want %d", len(events), tt.wantN)
			}
			last := events[len(events)-1]
			if last.Description != tt.wantDesc {
				t.Errorf("description = %q, want %q", last.Description, tt.wantDesc)
			}
		})
	}
}

func TestParseICSEmptyBody(t *testing.T) {
	if _, err := ParseICS(Source{ID: "x"}, []byte("\r\n\r\n"), ParseOptions{}); err == nil {
		t.Fatal("expected error for blank body")
	}
}

func TestNormalizeTagsGroupAndSource(t *testing.T) {
	src := Source{ID: "cs101", Group: "B"}
	events, err := Normalize(src, []byte(sampleFeed), NormalizeOptions{Location: time.UTC})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events", len(events))
	}
	for _, ev := range events {
		if ev.Group != model.GroupB || ev.Source != "cs101" {
			t.Errorf("event %q tagged %q/%q", ev.Title, ev.Group, ev.Source)
		}
		if ev.ID == "" {
			t.Errorf("event %q has no id", ev.Title)
		}
	}
	if events[0].HasEnd() == false {
		t.Errorf("first event lost its end")
	}
	if events[2].HasEnd() {
		t.Errorf("event without DTEND has end %v", events[2].End)
	}
}

func TestDetectAllDay(t *testing.T) {
	mid := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	noon := mid.Add(12 * time.Hour)

	tests := []struct {
		name     string
		dateOnly bool
		start    time.Time
		end      time.Time
		hasEnd   bool
		want     bool
	}{
		{"date only", true, noon, time.Time{}, false, true},
		{"midnight no end", false, mid, time.Time{}, false, true},
		{"midnight to midnight", false, mid, mid.AddDate(0, 0, 1), true, true},
		{"midnight to noon", false, mid, noon, true, false},
		{"timed", false, noon, noon.Add(time.Hour), true, false},
	}
	for _, tt := range tests {
		if got := detectAllDay(tt.dateOnly, tt.start, tt.end, tt.hasEnd, time.UTC); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseICSMidnightJudgedInDisplayZone(t *testing.T) {
	pdt := time.FixedZone("PDT", -7*60*60)
	body := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//weekcal//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:due-1\r\nDTSTART:20250918T000000Z\r\nSUMMARY:Problem set due\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:day-1\r\nDTSTART:20250918T070000Z\r\nSUMMARY:Local midnight\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := ParseICS(Source{ID: "cs101", Group: "A", Kind: config.KindCourse}, []byte(body), ParseOptions{Location: pdt})
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].AllDay {
		t.Errorf("UTC midnight (17:00 local) flagged all-day: start=%v", events[0].Start.In(pdt))
	}
	if !events[1].AllDay {
		t.Errorf("local midnight with no end not flagged all-day: start=%v", events[1].Start.In(pdt))
	}
}
