package digest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"weekcal/internal/model"
)

const weeklySystem = `You help a student plan their week. Categorize each listed item and write a short summary.

Categories: assignment, class, exam, administrative, social, newsletter, other.
Priorities: high, medium, low.

Respond with a single JSON object and nothing else:
{"events":[{"id":<number from the list>,"title":"...","type":"<category>","priority":"<priority>"}],"summary":"200 to 230 characters, plain text, no lists"}`

func weeklyPrompt(group model.Group, start, end time.Time, items []candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Group %s, week of %s to %s.\n\n", group, start.Format("Mon Jan 2"), end.Format("Mon Jan 2"))

	b.WriteString("Calendar events:\n")
	n := 0
	for i, it := range items {
		if it.Origin != model.OriginCalendar {
			continue
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i, it.Date, it.Title)
		if it.Source != "" {
			fmt.Fprintf(&b, " (source: %s)", it.Source)
		}
		b.WriteByte('\n')
		n++
	}
	if n == 0 {
		b.WriteString("(none)\n")
	}

	b.WriteString("\nNewsletter items:\n")
	n = 0
	for i, it := range items {
		if it.Origin != model.OriginDigest {
			continue
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i, it.Date, it.Title)
		if it.Text != "" {
			fmt.Fprintf(&b, ": %s", truncateRunes(it.Text, 280))
		}
		b.WriteByte('\n')
		n++
	}
	if n == 0 {
		b.WriteString("(none)\n")
	}
	return b.String()
}

type weeklyResponse struct {
	Events []struct {
		ID       *int   `json:"id"`
		Title    string `json:"title"`
		Type     string `json:"type"`
		Priority string `json:"priority"`
	} `json:"events"`
	Summary string `json:"summary"`
}

func parseWeekly(text string) (*weeklyResponse, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("response is not a JSON object")
	}
	var out weeklyResponse
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
