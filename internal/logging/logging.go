// Package logging installs the daemon's single *log.Logger, configured
// from the logging.* options.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Othernet-Project/fsal/internal/config"
)

// Level is a simple text-threshold gate: debug is the only level that
// differs in practice, everything else just writes through.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
)

// Logger wraps a *log.Logger with a debug gate.
type Logger struct {
	*log.Logger
	level Level
}

// New builds a Logger from logging.* config: writes to stderr unless
// logging.file names a path, and gates Debugf on logging.level == "debug".
func New(cfg config.Logging) (*Logger, error) {
	out := os.Stderr
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", cfg.File, err)
		}
		out = f
	}
	level := LevelInfo
	if strings.EqualFold(cfg.Level, "debug") {
		level = LevelDebug
	}
	return &Logger{
		Logger: log.New(out, "", log.LstdFlags),
		level:  level,
	}, nil
}

// Debugf logs only when the configured level is debug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level != LevelDebug {
		return
	}
	l.Printf(format, args...)
}
