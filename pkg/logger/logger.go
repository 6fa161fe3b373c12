// Package logger builds the slog logger shared by the CLI, the port
// registry and the boards.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Seann-Moser/pca9685-pwm/pkg/config"
)

type options struct {
	level string
	attrs []any
}

// Option adjusts a logger built by New.
type Option func(*options)

// WithLevel overrides the configured level, as the --log-level flag does.
// An empty level keeps the configured one.
func WithLevel(level string) Option {
	return func(o *options) {
		if level != "" {
			o.level = level
		}
	}
}

// WithAttrs adds attributes to every record, e.g. the command name.
func WithAttrs(args ...any) Option {
	return func(o *options) { o.attrs = append(o.attrs, args...) }
}

// New creates the logger described by cfg. The returned closer closes a log
// file and is a no-op for stdout and stderr.
func New(cfg config.LogConfig, opts ...Option) (*slog.Logger, func() error, error) {
	o := options{level: cfg.Level}
	for _, opt := range opts {
		opt(&o)
	}
	level, err := parseLevel(o.level)
	if err != nil {
		return nil, nil, err
	}

	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output %s: %w", cfg.Output, err)
	}

	ho := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, ho)
	} else {
		handler = slog.NewTextHandler(writer, ho)
	}
	return slog.New(handler).With(o.attrs...), closer, nil
}

// parseLevel accepts the slog level names plus "warning". Empty is info.
func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: must be debug, info, warn or error", s)
	}
	return l, nil
}

func openOutput(output string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nop, nil
	case "stderr", "":
		return os.Stderr, nop, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
