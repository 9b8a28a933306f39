package digest

import "time"

// WeekRange returns the analysis window for now: the most recent boundary
// day at 00:00 through the next boundary day at 23:59:59.999, both in loc.
// The span covers eight calendar days, so the boundary day appears at both
// ends.
func WeekRange(now time.Time, boundary time.Weekday, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	back := (int(local.Weekday()) - int(boundary) + 7) % 7
	start := time.Date(local.Year(), local.Month(), local.Day()-back, 0, 0, 0, 0, loc)
	endDay := start.AddDate(0, 0, 7)
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// dayInRange reports whether the YYYY-MM-DD day lies within the range.
func dayInRange(day string, start, end time.Time) bool {
	d, err := time.ParseInLocation(time.DateOnly, day, start.Location())
	if err != nil {
		return false
	}
	return inRange(d, start, end)
}
