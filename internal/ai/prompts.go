package ai

import (
	"encoding/json"
	"strings"

	"weekcal/internal/model"
)

// SectionNames are the semantic headings the organizer prefers when content
// fits one of them.
var SectionNames = []string{
	"Action Items",
	"Upcoming Events",
	"Academics",
	"Announcements",
	"Opportunities",
	"Resources",
}

const organizerSystem = `You reorganize a school newsletter into structured JSON.

Rules:
- Preserve ALL content. Do not summarize, shorten or rephrase item text.
- Preserve every hyperlink exactly as given, including its href and anchor text.
- Group items under these section names when they apply: %SECTIONS%. Keep the original heading otherwise.
- For an item that mentions a specific date, add "timeSensitive" with:
  "dates": ISO dates (YYYY-MM-DD), "deadline": ISO date if it is a due date,
  "eventType": one of deadline, event, announcement, reminder,
  "priority": one of high, medium, low.
  Omit "timeSensitive" entirely when no date is mentioned.
- Respond with a single JSON object and nothing else:
{"sections":[{"sectionTitle":"...","items":[{"title":"...","html":"...","timeSensitive":{...}}]}],"debugInfo":"one sentence about what you changed"}`

// OrganizerSystemPrompt returns the system instruction for the organizer.
func OrganizerSystemPrompt() string {
	return strings.Replace(organizerSystem, "%SECTIONS%", strings.Join(SectionNames, ", "), 1)
}

// OrganizerPrompt serializes src into the user prompt.
func OrganizerPrompt(src model.DigestSource) (string, error) {
	body, err := json.MarshalIndent(struct {
		Title    string                   `json:"title,omitempty"`
		Sections []model.RawDigestSection `json:"sections"`
	}{src.Title, src.Sections}, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Newsletter")
	if src.Title != "" {
		b.WriteString(" \"")
		b.WriteString(src.Title)
		b.WriteString("\"")
	}
	b.WriteString(" as JSON. Each item's content is HTML.\n\n")
	b.Write(body)
	return b.String(), nil
}
