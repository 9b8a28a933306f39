package match

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/model"
)

// Series is one row of the synthetic table: a weekly series that began on
// Start. Formats may reference {week}, {date} and {title}.
type Series struct {
	Start       time.Time
	TitleFormat string
	URLFormat   string
}

// SyntheticTable maps group -> source id -> series. It is built once from
// configuration.
type SyntheticTable struct {
	series map[model.Group]map[string]Series
}

// NewSyntheticTable parses the config table. Rows with a bad start date are
// rejected so misconfiguration is reported at startup.
func NewSyntheticTable(cfg map[string]map[string]config.SyntheticCategory, loc *time.Location) (*SyntheticTable, error) {
	if loc == nil {
		loc = time.Local
	}
	t := &SyntheticTable{series: make(map[model.Group]map[string]Series)}
	for group, rows := range cfg {
		g := model.Group(group)
		t.series[g] = make(map[string]Series, len(rows))
		for source, row := range rows {
			start, err := time.ParseInLocation(time.DateOnly, row.Start, loc)
			if err != nil {
				return nil, fmt.Errorf("synthetic %s/%s: bad start %q: %w", group, source, row.Start, err)
			}
			format := row.TitleFormat
			if format == "" {
				format = "{title} (Week {week})"
			}
			t.series[g][source] = Series{Start: start, TitleFormat: format, URLFormat: row.URLFormat}
		}
	}
	return t, nil
}

// Generate builds the "week N" reference for ev, keyed by its group and
// source. ok is false when no series is configured or ev precedes it.
func (t *SyntheticTable) Generate(ev model.Event, loc *time.Location) (model.Event, bool) {
	if t == nil {
		return model.Event{}, false
	}
	s, ok := t.series[ev.Group][ev.Source]
	if !ok {
		return model.Event{}, false
	}

	week := WeekNumber(s.Start, ev.Start, loc)
	if week < 1 {
		return model.Event{}, false
	}

	day := ev.Start.In(loc).Format(time.DateOnly)
	r := strings.NewReplacer(
		"{week}", strconv.Itoa(week),
		"{date}", day,
		"{title}", ev.Title,
	)

	out := model.Event{
		ID:     "synthetic:" + ev.Source + ":" + day,
		Title:  r.Replace(s.TitleFormat),
		Start:  ev.Start,
		End:    ev.End,
		AllDay: ev.AllDay,
		Group:  ev.Group,
		Source: "synthetic:" + ev.Source,
	}
	if s.URLFormat != "" {
		out.URL = r.Replace(s.URLFormat)
	}
	return out, true
}

// WeekNumber returns the 1-based week of at relative to start, counted in
// whole calendar days in loc. Days before start yield values below 1.
func WeekNumber(start, at time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	s := start.In(loc)
	a := at.In(loc)
	sd := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	days := int(ad.Sub(sd).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days/7 + 1
}
