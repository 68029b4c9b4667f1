// Package logging provides structured logging using zerolog.
//
// wflow owns the terminal while it prompts, so the CLI normally writes
// logs to a file under the state directory and keeps stderr for prompts
// and results. Session code logs through ForSession so every line carries
// the session id and workflow.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents log levels.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// DefaultMaxFileSize is the size at which a log file is rotated on Init.
const DefaultMaxFileSize = 10 << 20

// Config holds logger configuration.
type Config struct {
	Level Level
	// Output is used when File is empty. Defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output.
	Pretty     bool
	TimeFormat string
	// File appends logs to this path instead of Output.
	File string
	// MaxFileSize rotates File to File+".1" when it is already larger.
	MaxFileSize int64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Level:       InfoLevel,
		Output:      os.Stderr,
		TimeFormat:  time.RFC3339,
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Init replaces the global logger. The returned closer releases the log
// file, if any.
func Init(cfg Config) (io.Closer, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var closer io.Closer = nopCloser{}
	output := cfg.Output
	if cfg.File != "" {
		f, err := openLogFile(cfg.File, cfg.MaxFileSize)
		if err != nil {
			return nil, err
		}
		output = f
		closer = f
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
			NoColor:    cfg.File != "",
		}
	}

	Logger = zerolog.New(output).Level(cfg.Level).With().Timestamp().Logger()
	return closer, nil
}

func openLogFile(path string, maxSize int64) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxSize > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > maxSize {
			// Best effort; a failed rename just keeps appending.
			_ = os.Rename(path, path+".1")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// ParseLevel parses a log level name, case-insensitively. WARNING is
// accepted for WARN. Unknown names yield InfoLevel.
func ParseLevel(level string) Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return InfoLevel
	}
	return l
}

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }

// With creates a child logger context on the global logger.
func With() zerolog.Context {
	return Logger.With()
}

// ForSession returns a child logger tagged with a session id and workflow.
func ForSession(sessionID, workflowID string) zerolog.Logger {
	return Logger.With().
		Str("session", sessionID).
		Str("workflow", workflowID).
		Logger()
}

// Discard silences the global logger. Intended for tests.
func Discard() {
	Logger = zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	_, _ = Init(DefaultConfig())
}
