package digest

import (
	"strings"
	"unicode"

	"weekcal/internal/model"
)

type rule struct {
	words    []string
	category model.Category
	priority model.Priority
}

// Evaluated in order; the first rule with a matching word wins.
var rules = []rule{
	{[]string{"due", "deadline", "deadlines", "submit", "submission"}, model.CategoryAssignment, model.PriorityHigh},
	{[]string{"exam", "exams", "quiz", "quizzes", "midterm", "midterms", "final", "finals", "test"}, model.CategoryExam, model.PriorityHigh},
	{[]string{"class", "classes", "lecture", "lectures", "lab", "seminar", "section"}, model.CategoryClass, model.PriorityMedium},
	{[]string{"registration", "register", "form", "forms", "enrollment", "paperwork"}, model.CategoryAdministrative, model.PriorityMedium},
}

// Classifier is the keyword backstop for categorization.
type Classifier struct {
	social []string
}

// NewClassifier returns a Classifier treating any source containing one of
// socialSources as a social/event platform.
func NewClassifier(socialSources []string) *Classifier {
	c := &Classifier{}
	for _, s := range socialSources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			c.social = append(c.social, s)
		}
	}
	return c
}

// Classify assigns a category and priority from title keywords and source.
func (c *Classifier) Classify(title, source string) (model.Category, model.Priority) {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}

	for _, r := range rules {
		for _, w := range r.words {
			if _, ok := words[w]; ok {
				return r.category, r.priority
			}
		}
	}

	if c.isSocial(source) {
		return model.CategorySocial, model.PriorityLow
	}
	return model.CategoryOther, model.PriorityMedium
}

func (c *Classifier) isSocial(source string) bool {
	source = strings.ToLower(source)
	if source == "" {
		return false
	}
	for _, s := range c.social {
		if strings.Contains(source, s) {
			return true
		}
	}
	return false
}

// inferEventType guesses an annotation type for items whose dates came from
// prose rather than from the organizer.
func inferEventType(text string) model.EventType {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "deadline") || strings.Contains(t, " due "):
		return model.EventTypeDeadline
	case strings.Contains(t, "remind"):
		return model.EventTypeReminder
	case strings.Contains(t, "announc"):
		return model.EventTypeAnnouncement
	}
	return model.EventTypeEvent
}
