package ics

import (
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// FieldValue is the raw shape a text property arrives in. Feeds deliver
// plain strings, values wrapped with parameters, or arbitrary values; Text
// resolves all of them to plain text.
type FieldValue interface {
	fieldValue()
}

// TextValue is a bare property value.
type TextValue string

// WrappedValue is a value that carried parameters (CN, LANGUAGE, ALTREP...).
type WrappedValue struct {
	Val    string
	Params map[string][]string
}

// AnyValue holds something that is only stringifiable.
type AnyValue struct {
	V any
}

func (TextValue) fieldValue()    {}
func (WrappedValue) fieldValue() {}
func (AnyValue) fieldValue()     {}

// Param returns the first value of a parameter, case-insensitively.
func (w WrappedValue) Param(name string) string {
	for k, vs := range w.Params {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// Text resolves v to unescaped plain text. ok is false when the field is
// absent or blank.
func Text(v FieldValue) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case TextValue:
		s = string(t)
	case WrappedValue:
		s = t.Val
	case AnyValue:
		switch x := t.V.(type) {
		case nil:
			return "", false
		case string:
			s = x
		case fmt.Stringer:
			s = x.String()
		default:
			s = fmt.Sprint(x)
		}
	default:
		return "", false
	}

	s = strings.TrimSpace(unescapeText(s))
	if s == "" {
		return "", false
	}
	return s, true
}

// fieldOf wraps an ical property in the matching FieldValue.
func fieldOf(p *ical.IANAProperty) FieldValue {
	if p == nil {
		return nil
	}
	if len(p.ICalParameters) > 0 {
		return WrappedValue{Val: p.Value, Params: p.ICalParameters}
	}
	return TextValue(p.Value)
}

var textUnescaper = strings.NewReplacer(
	`\n`, "\n",
	`\N`, "\n",
	`\,`, ",",
	`\;`, ";",
	`\\`, `\`,
)

func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return textUnescaper.Replace(s)
}
