// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, pretty
}

// DefaultLogConfig returns sensible defaults.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info", Format: "json"}
}

// SetupLogger configures the global logger. Logs go to stderr so the line
// transport can own stdout for protocol frames.
func SetupLogger(config *LogConfig) error {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if config.Format == "pretty" {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	log.Info().
		Str("level", config.Level).
		Str("format", config.Format).
		Msg("Logger initialized")
	return nil
}

// GetLogger returns a contextual logger for a component.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// GetProviderLogger returns a logger for provider adapter operations.
func GetProviderLogger(provider string) zerolog.Logger {
	return log.With().
		Str("component", "provider").
		Str("provider", provider).
		Logger()
}

// GetJobLogger returns a logger for ingestion job operations.
func GetJobLogger(jobID, documentID string) zerolog.Logger {
	return log.With().
		Str("job_id", jobID).
		Str("document_id", documentID).
		Logger()
}
