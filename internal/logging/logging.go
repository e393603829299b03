// Package logging provides zerolog-based structured logging for the
// webhook service. JSON output is the default; console output is enabled
// for development.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string
	// Format is json or console.
	Format string
}

// New builds the root logger for a named component. Sub-loggers with
// correlation fields (delivery id, event id) are derived from it.
func New(component string, cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
}
