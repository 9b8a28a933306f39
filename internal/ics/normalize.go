package ics

import (
	"time"

	"weekcal/internal/model"
)

// NormalizeOptions bundles parsing and expansion settings for one feed.
type NormalizeOptions struct {
	ExcludedKeyword string
	Location        *time.Location
	// RangeStart/RangeEnd bound recurrence expansion.
	RangeStart time.Time
	RangeEnd   time.Time
}

// Normalize parses raw feed text into events tagged with the source's group
// and id. Malformed records are skipped; only an unparseable payload is an
// error.
func Normalize(src Source, body []byte, opts NormalizeOptions) ([]model.Event, error) {
	parsed, err := ParseICS(src, body, ParseOptions{
		ExcludedKeyword: opts.ExcludedKeyword,
		Location:        opts.Location,
	})
	if err != nil {
		return nil, err
	}

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: opts.Location,
		RangeStart:      opts.RangeStart,
		RangeEnd:        opts.RangeEnd,
	})
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}
