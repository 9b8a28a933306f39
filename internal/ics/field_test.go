package ics

import (
	"bytes"
	"testing"
)

type stringer struct{ s string }

func (s stringer) String() string { return s.s }

func TestText(t *testing.T) {
	tests := []struct {
		name   string
		in     FieldValue
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"plain", TextValue("  Lecture 4 "), "Lecture 4", true},
		{"escaped", TextValue(`a\, b\; c\nd`), "a, b; c\nd", true},
		{"blank", TextValue("   "), "", false},
		{"wrapped", WrappedValue{Val: "Room 5", Params: map[string][]string{"LANGUAGE": {"en"}}}, "Room 5", true},
		{"stringer", AnyValue{V: stringer{"hall"}}, "hall", true},
		{"number", AnyValue{V: 42}, "42", true},
		{"any nil", AnyValue{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Text(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Text() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWrappedValueParam(t *testing.T) {
	w := WrappedValue{Val: "mailto:a@b", Params: map[string][]string{"cn": {"Ada"}}}
	if got := w.Param("CN"); got != "Ada" {
		t.Errorf("Param(CN) = %q", got)
	}
}

func TestUnfold(t *testing.T) {
	in := []byte("BEGIN:VEVENT\nSUMMARY:Long\r\n  title\r\n\tcontinued\n\n\r\nEND:VEVENT")
	want := []byte("BEGIN:VEVENT\r\nSUMMARY:Long titlecontinued\r\nEND:VEVENT\r\n")
	if got := Unfold(in); !bytes.Equal(got, want) {
		t.Errorf("Unfold() = %q, want %q", got, want)
	}
	if got := Unfold([]byte("\n\n")); got != nil {
		t.Errorf("Unfold(blank) = %q, want nil", got)
	}
}
