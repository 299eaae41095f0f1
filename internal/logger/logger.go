// Package logger builds zerolog loggers with the SDK's defaults
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevHatRo/clamd-sdk-go/internal/config"
)

// Options configures a logger
type Options struct {
	Level     string
	Format    string
	Component string
	Writer    io.Writer
}

// FromEnv reads CLAMD_LOG_LEVEL and CLAMD_LOG_FORMAT. Logging stays disabled
// unless a level is set.
func FromEnv() Options {
	rc := config.New().Prefix("LOG_")
	return Options{
		Level:     strings.ToLower(rc.Get("LEVEL", "disabled")),
		Format:    strings.ToLower(rc.Get("FORMAT", "json")),
		Component: rc.Get("COMPONENT", "clamd"),
	}
}

// New builds a logger from opt
func New(opt Options) zerolog.Logger {
	lvl := parseLevel(opt.Level)
	if lvl == zerolog.Disabled {
		return zerolog.Nop()
	}

	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if opt.Component != "" {
		ctx = ctx.Str("component", opt.Component)
	}
	return ctx.Logger()
}

// parseLevel supports string-only levels; unknown values disable logging
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}
