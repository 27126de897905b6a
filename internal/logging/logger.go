package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog logger configured at the provided level and tagged with
// the service name. Development environments get the text handler, everything
// else JSON. An invalid level string defaults to info.
func New(service, level string, dev bool) *slog.Logger {
	return newWithWriter(os.Stdout, service, level, dev)
}

func newWithWriter(w io.Writer, service, level string, dev bool) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if dev {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With(slog.String("service", service))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
