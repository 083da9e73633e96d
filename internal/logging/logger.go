// Package logging provides structured logging for specsheet using zerolog.
// Console output is used when stderr is a terminal, JSON otherwise.
//
//	log := logging.Default()
//	log.Info().Str("source", "site2").Msg("scraping")
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Format values accepted by Config.Format.
const (
	FormatAuto    = "auto"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config holds logger configuration options
type Config struct {
	Level   string
	Format  string
	NoColor bool
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, DEBUG and NO_COLOR.
func ConfigFromEnv() Config {
	cfg := Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		NoColor: os.Getenv("NO_COLOR") != "",
	}
	if cfg.Level == "" && os.Getenv("DEBUG") != "" {
		cfg.Level = "debug"
	}
	return cfg
}

var defaultLogger = New(os.Stderr, ConfigFromEnv())

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(logger zerolog.Logger) {
	defaultLogger = logger
}

// New creates a logger writing to w.
func New(w io.Writer, cfg Config) zerolog.Logger {
	level := ParseLevel(cfg.Level)

	if useConsole(w, cfg.Format) {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.NoColor,
		}
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func useConsole(w io.Writer, format string) bool {
	switch strings.ToLower(format) {
	case FormatJSON:
		return false
	case FormatConsole, "pretty":
		return true
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
