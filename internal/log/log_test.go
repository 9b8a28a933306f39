package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)

	Info("feed loaded", "source", "course-a", "events", 3)
	Error("feed failed", errors.New("boom"), "source", "course-b")
	Debug("hidden", "k", "v")

	out := buf.String()
	for _, want := range []string{"[INFO]", "feed loaded", "source=course-a", "events=3", "[ERROR]", "boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
