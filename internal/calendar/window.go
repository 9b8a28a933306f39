package calendar

import (
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// WindowOptions configures Window.
type WindowOptions struct {
	Lookback  time.Duration
	DaysAhead int
	MaxEvents int

	// Authoritative events up to Horizon past now are always included.
	Authoritative string
	Horizon       time.Duration
}

// Window returns the events whose start is in [now-Lookback, now+DaysAhead),
// sorted and truncated to MaxEvents, then unions in authoritative-source
// events from the unfiltered set that start before now+Horizon.
func Window(events []model.Event, now time.Time, opts WindowOptions) []model.Event {
	from := now.Add(-opts.Lookback)
	to := now.AddDate(0, 0, opts.DaysAhead)

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	SortByStart(out)
	if opts.MaxEvents > 0 && len(out) > opts.MaxEvents {
		out = out[:opts.MaxEvents]
	}

	if opts.Authoritative == "" || opts.Horizon <= 0 {
		return out
	}

	type exactKey struct {
		start int64
		title string
	}
	present := make(map[exactKey]bool, len(out))
	for _, ev := range out {
		present[exactKey{ev.Start.UnixNano(), ev.Title}] = true
	}

	horizon := now.Add(opts.Horizon)
	injected := 0
	for _, ev := range events {
		if ev.Source != opts.Authoritative {
			continue
		}
		if ev.Start.Before(from) || !ev.Start.Before(horizon) {
			continue
		}
		k := exactKey{ev.Start.UnixNano(), ev.Title}
		if present[k] {
			continue
		}
		present[k] = true
		out = append(out, ev)
		injected++
	}

	if injected > 0 {
		SortByStart(out)
		appLog.Debug("window: injected authoritative events", "count", injected)
	}
	return out
}
