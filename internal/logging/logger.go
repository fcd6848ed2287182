// Package logging provides structured logging for the bot on top of zerolog.
// Components obtain their own logger via WithComponent so every line carries
// a component field that log consumers can filter on.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
	Output     io.Writer
}

// Logger wraps a zerolog.Logger with component scoping.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger from the given configuration.
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Default returns the process-wide logger.
func Default() *Logger {
	once.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(&Config{Level: "info", JSONFormat: true})
		}
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

// WithComponent returns a logger scoped to a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a logger with an additional permanent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Debug logs at debug level with optional key-value pairs.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	applyFields(l.zl.Debug(), kv).Msg(msg)
}

// Info logs at info level with optional key-value pairs.
func (l *Logger) Info(msg string, kv ...interface{}) {
	applyFields(l.zl.Info(), kv).Msg(msg)
}

// Warn logs at warn level with optional key-value pairs.
func (l *Logger) Warn(msg string, kv ...interface{}) {
	applyFields(l.zl.Warn(), kv).Msg(msg)
}

// Error logs at error level with optional key-value pairs.
func (l *Logger) Error(msg string, kv ...interface{}) {
	applyFields(l.zl.Error(), kv).Msg(msg)
}

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal(msg string, kv ...interface{}) {
	applyFields(l.zl.Fatal(), kv).Msg(msg)
}

// applyFields attaches variadic key-value pairs to an event. Keys must be
// strings; a trailing unpaired value is ignored.
func applyFields(ev *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			if v != nil {
				ev = ev.Str(key, v.Error())
			}
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}

// Package-level helpers on the default logger.

func Debug(msg string, kv ...interface{}) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { Default().Error(msg, kv...) }

// WithComponent returns a component logger derived from the default logger.
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}
