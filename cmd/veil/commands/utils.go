// ABOUTME: Shared helpers for CLI commands
// ABOUTME: Logger construction and store opening from configuration
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/harper/veil/internal/config"
	"github.com/harper/veil/internal/storage/sqlite"
)

// newLogger builds the process logger from configuration and the global
// verbosity flags.
func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("bad log level: %w", err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.ErrorLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// openStore opens the configured database, creating it if needed.
func openStore(cfg *config.Config) (*sqlite.DB, error) {
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", cfg.DBPath, err)
	}
	return db, nil
}
