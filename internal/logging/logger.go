// Package logging provides the structured logger used across the tool.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmanuelng/MEM-BitlockerChangeKeyProtectorType/internal/config"
)

// Logger wraps zerolog with the level/file policy from the configuration.
type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

// New builds a logger from the logging section of the configuration.
// Console output goes to stderr; a file sink is added when configured. A
// failure to open the log file degrades to console-only rather than failing
// the run.
func New(cfg *config.Config, verbose bool) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	l := &Logger{}
	var sink io.Writer = console

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] cannot create log directory for %s: %v, logging to console only\n", cfg.Logging.File, err)
		} else if f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] cannot open log file %s: %v, logging to console only\n", cfg.Logging.File, err)
		} else {
			l.file = f
			sink = zerolog.MultiLevelWriter(console, f)
		}
	}

	l.zl = zerolog.New(sink).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
