package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"weekcal/internal/config"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// ParsedEvent is the normalized representation of a VEVENT as produced
// by the ICS parser. Recurrence expansion operates on this type.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string
	Organizer   string
	Status      model.Status
	Categories  []string

	Start  time.Time
	End    time.Time
	HasEnd bool
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in event's own timezone
	IsOverride bool       // true if this VEVENT is an override for a recurring instance
}

// ParseOptions controls parsing of a single feed.
type ParseOptions struct {
	// ExcludedKeyword marks records owned by the authoritative feed. People
	// and canonical feeds drop records whose title mentions it.
	ExcludedKeyword string
	// Location is used for floating and date-only values. Defaults to time.Local.
	Location *time.Location
}

// ParseICS parses a single ICS payload into a list of ParsedEvent.
//
//   - It relies on the underlying library's VTIMEZONE/TZID handling to
//     construct proper time.Time values (with Location set).
//   - Records without a parseable DTSTART are skipped with a warning.
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand recurrences;
//     expansion is done in expand.go.
func ParseICS(src Source, body []byte, opts ParseOptions) ([]ParsedEvent, error) {
	body = Unfold(body)
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID)
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	skipped, scrubbed := 0, 0

	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, opts.Location)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "id", src.ID, "uid", ev.UID, "reason", perr.Error())
			skipped++
			continue
		}
		if !sanitize(src, &ev, opts.ExcludedKeyword) {
			scrubbed++
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(events), "skipped", skipped, "scrubbed", scrubbed)
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	out.UID, _ = Text(fieldOf(ve.GetProperty(ical.ComponentPropertyUniqueId)))

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	out.Summary, _ = Text(fieldOf(ve.GetProperty(ical.ComponentPropertySummary)))
	out.Description, _ = Text(fieldOf(ve.GetProperty(ical.ComponentPropertyDescription)))
	out.Location, _ = Text(fieldOf(ve.GetProperty(ical.ComponentPropertyLocation)))
	out.URL, _ = Text(fieldOf(ve.GetProperty(ical.ComponentPropertyUrl)))
	out.Organizer = organizerName(fieldOf(ve.GetProperty(ical.ComponentPropertyOrganizer)))
	out.Status = parseStatus(fieldOf(ve.GetProperty(ical.ComponentPropertyStatus)))

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		raw, ok := Text(fieldOf(p))
		if !ok {
			continue
		}
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				out.Categories = append(out.Categories, c)
			}
		}
	}

	dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStartProp == nil || strings.TrimSpace(dtStartProp.Value) == "" {
		return out, errors.New("missing DTSTART")
	}

	dateOnly := isDateOnly(dtStartProp)
	start, err := ve.GetStartAt()
	if err != nil || dateOnly || isFloating(dtStartProp) {
		// Date-only and floating values are pinned to the display zone.
		start, err = parseICSTimeIn(dtStartProp.Value, loc)
		if err != nil {
			return out, errors.New("unparseable DTSTART " + strconv.Quote(dtStartProp.Value))
		}
	}
	out.Start = start

	if dtEndProp := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEndProp != nil && strings.TrimSpace(dtEndProp.Value) != "" {
		end, err := ve.GetEndAt()
		if err != nil || isDateOnly(dtEndProp) || isFloating(dtEndProp) {
			end, err = parseICSTimeIn(dtEndProp.Value, loc)
		}
		if err == nil {
			out.End = end
			out.HasEnd = true
		}
	}

	out.AllDay = detectAllDay(dateOnly, out.Start, out.End, out.HasEnd, loc)

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTimeIn(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	// Raw property name; the constant name differs across library versions.
	if ridProp := ve.GetProperty("RECURRENCE-ID"); ridProp != nil {
		if t, err := parseICSTimeIn(ridProp.Value, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// detectAllDay: an explicit date-only value, or a start at midnight with
// either no end or an end that is also at midnight. Midnight is judged in
// the display zone loc, not the zone the value was written in.
func detectAllDay(dateOnly bool, start, end time.Time, hasEnd bool, loc *time.Location) bool {
	if dateOnly {
		return true
	}
	if loc == nil {
		loc = time.Local
	}
	if !isMidnight(start.In(loc)) {
		return false
	}
	if !hasEnd {
		return true
	}
	return isMidnight(end.In(loc)) && end.After(start)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func isDateOnly(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// isFloating reports a date-time with neither a UTC suffix nor a TZID.
func isFloating(p *ical.IANAProperty) bool {
	if p == nil || strings.HasSuffix(strings.TrimSpace(p.Value), "Z") {
		return false
	}
	tz, ok := p.ICalParameters["TZID"]
	return !ok || len(tz) == 0
}

func organizerName(v FieldValue) string {
	if w, ok := v.(WrappedValue); ok {
		if cn := strings.Trim(w.Param("CN"), `"`); cn != "" {
			return cn
		}
	}
	s, ok := Text(v)
	if !ok {
		return ""
	}
	if len(s) > 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	return s
}

func parseStatus(v FieldValue) model.Status {
	s, _ := Text(v)
	switch strings.ToUpper(s) {
	case "TENTATIVE":
		return model.StatusTentative
	case "CANCELLED", "CANCELED":
		return model.StatusCancelled
	default:
		return model.StatusConfirmed
	}
}

// sanitize applies per-source content rules. It returns false when the
// record must be dropped. The authoritative feed is the only source for
// records mentioning the excluded keyword; people and canonical feeds
// carry stale copies of them.
func sanitize(src Source, ev *ParsedEvent, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return true
	}
	if src.Kind != config.KindPeople && src.Kind != config.KindCanonical {
		return true
	}
	if containsFold(ev.Summary, keyword) {
		return false
	}
	if containsFold(ev.Description, keyword) {
		ev.Description = scrubLines(ev.Description, keyword)
	}
	return true
}

func scrubLines(text, keyword string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		if !containsFold(ln, keyword) {
			kept = append(kept, ln)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// parseICSTimeIn parses a basic ICS date/date-time string. Floating and
// date-only values are interpreted in loc.
func parseICSTimeIn(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.Local
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}

	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
