package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	logMu  sync.Mutex
	logOut io.Writer = os.Stdout
	logger *slog.Logger
)

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "ts"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
			}
			return a
		},
	}))
}

// Logger returns the shared structured logger. Лог-строки — JSON, по одной
// на строку, ключи ts/level/msg плюс атрибуты вызова.
func Logger() *slog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if logger == nil {
		logger = newLogger(logOut)
	}
	return logger
}

// SetLogOutput redirects the shared logger, returning a restore function.
// Tests capture log lines with it.
func SetLogOutput(w io.Writer) func() {
	logMu.Lock()
	prev := logOut
	logOut = w
	logger = newLogger(w)
	logMu.Unlock()
	return func() {
		logMu.Lock()
		logOut = prev
		logger = newLogger(prev)
		logMu.Unlock()
	}
}
