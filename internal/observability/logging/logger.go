// Package logging configures the process-wide zerolog logger and derives
// context loggers for recordings, turns and components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // json, console
	TimeFormat string    // layout for the time field; empty means RFC3339
	Service    string    // value of the "service" field on every line
	Output     io.Writer // defaults to stdout
}

// DefaultConfig returns JSON logs at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
		Service:    "interview-turn-service",
	}
}

// Init replaces the global zerolog logger. Unknown levels fall back to info.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	log.Logger = ctx.Caller().Logger()
}

// Logger returns the global logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithRecording tags lines with the recording and interview session.
func WithRecording(recordingID, sessionCode string) zerolog.Logger {
	return log.With().
		Str("recordingId", recordingID).
		Str("sessionCode", sessionCode).
		Logger()
}

// WithTurn tags lines with the turn and interview session.
func WithTurn(turnID, sessionCode string) zerolog.Logger {
	return log.With().
		Str("turnId", turnID).
		Str("sessionCode", sessionCode).
		Logger()
}

// WithEngine is WithRecording plus the speech engine name.
func WithEngine(recordingID, sessionCode, engine string) zerolog.Logger {
	return WithRecording(recordingID, sessionCode).With().
		Str("speechEngine", engine).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
