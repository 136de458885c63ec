// Package logger provides the zerolog-backed implementation of the
// ports.Logger interface.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger implements the ports.Logger interface using zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// Config holds configuration for the zerolog adapter.
type Config struct {
	Level   string    // debug, info, warn, error; defaults to info
	Console bool      // Human-readable console output instead of JSON
	Output  io.Writer // Defaults to os.Stderr
}

// New creates a zerolog-backed logger. An unrecognized level falls back
// to info.
func New(cfg Config) *ZerologLogger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: zerolog.TimeFieldFormat}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		event = event.Fields(fields[0])
	}
	event.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZerologLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.zl.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *ZerologLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *ZerologLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(l.zl.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *ZerologLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.emit(l.zl.Error().Err(err), msg, fields)
}
