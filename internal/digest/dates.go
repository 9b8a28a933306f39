package digest

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

var (
	// "Tuesday, Nov 4", "Tue. November 4th, 2025"
	dayNameDateRe = regexp.MustCompile(`(?i)\b(?:mon|tues?|wed(?:nes)?|thu(?:rs?)?|fri|sat(?:ur)?|sun)(?:day)?\.?,?\s+` +
		monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	// "Nov 4", "November 4th, 2025"
	monthDateRe = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)

	titleYearRe = regexp.MustCompile(`\b(20\d{2})\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ExtractDates finds calendar dates written in prose and returns them as
// sorted, distinct YYYY-MM-DD strings. A missing year resolves to titleYear
// when positive, otherwise to ref's year. An explicit year is honored only
// within one year of ref, so street numbers and counts that follow a date are
// not read as years. ref is never compared against the current time.
func ExtractDates(text string, ref time.Time, titleYear int) []string {
	year := ref.Year()
	if titleYear > 0 {
		year = titleYear
	}

	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{dayNameDateRe, monthDateRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if d, ok := resolveDate(m[1], m[2], m[3], year, ref.Year()); ok {
				seen[d] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func resolveDate(month, day, explicitYear string, year, refYear int) (string, bool) {
	month = strings.ToLower(month)
	if len(month) < 3 {
		return "", false
	}
	mon, ok := months[month[:3]]
	if !ok {
		return "", false
	}
	dom, err := strconv.Atoi(day)
	if err != nil || dom < 1 || dom > 31 {
		return "", false
	}
	if explicitYear != "" {
		if y, err := strconv.Atoi(explicitYear); err == nil && y >= refYear-1 && y <= refYear+1 {
			year = y
		}
	}
	t := time.Date(year, mon, dom, 0, 0, 0, 0, time.UTC)
	if t.Month() != mon {
		// Feb 30 and friends.
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// YearFromTitle returns a four-digit 20xx year found in title, or 0.
func YearFromTitle(title string) int {
	m := titleYearRe.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}
