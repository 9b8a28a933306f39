package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
	mu         sync.RWMutex
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = newLogger(os.Stderr, zerolog.InfoLevel)
	})
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339Nano,
		FormatLevel: func(i any) string {
			s, _ := i.(string)
			return "[" + strings.ToUpper(s) + "]"
		},
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// SetLevel changes the minimum level that is written.
func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects log output. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = newLogger(w, logger.GetLevel())
	mu.Unlock()
}

func Debug(msg string, kv ...any) {
	logWithLevel(zerolog.DebugLevel, nil, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(zerolog.InfoLevel, nil, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(zerolog.WarnLevel, nil, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	logWithLevel(zerolog.ErrorLevel, err, msg, kv...)
}

func logWithLevel(level zerolog.Level, err error, msg string, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	// Expect kv as pairs: key, value, key, value, ...
	// If odd number of args, last one is ignored.
	if n := len(kv) &^ 1; n > 0 {
		ev = ev.Fields(kv[:n])
	}
	ev.Msg(msg)
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
