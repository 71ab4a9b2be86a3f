// Package logger provides structured logging for the region/vector store
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with store-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "seqdb").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// RegionLogger returns a logger scoped to region-store operations
// (create/write/remove/flush/compact on the named data+metadata files).
func (l *Logger) RegionLogger(operation string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "region").
			Str("operation", operation).
			Logger(),
	}
}

// VectorLogger returns a logger scoped to a single vector's operations.
func (l *Logger) VectorLogger(vectorName string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "vector").
			Str("vector", vectorName).
			Logger(),
	}
}

// LogFlush logs a completed region-store flush with its reclaimed space.
func (l *Logger) LogFlush(duration time.Duration, punchedBytes uint64, err error) {
	event := l.zlog.Info().
		Str("component", "region").
		Str("event", "flush").
		Dur("duration_ms", duration).
		Uint64("punched_bytes", punchedBytes)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "region").
			Str("event", "flush").
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("region store flush completed")
}

// LogCorruptSlot logs a metadata slot that failed checksum verification
// on load; the store continues serving every other region.
func (l *Logger) LogCorruptSlot(slotIndex int) {
	l.zlog.Warn().
		Str("component", "region").
		Str("event", "corrupt_metadata_slot").
		Int("slot", slotIndex).
		Msg("metadata slot failed checksum verification, tombstoned")
}

// LogRollback logs a vector rollback to a prior stamp.
func (l *Logger) LogRollback(vectorName string, stamp uint64, recordsApplied int, err error) {
	event := l.zlog.Info().
		Str("component", "vector").
		Str("vector", vectorName).
		Str("event", "rollback").
		Uint64("stamp", stamp).
		Int("records_applied", recordsApplied)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "vector").
			Str("vector", vectorName).
			Str("event", "rollback").
			Uint64("stamp", stamp).
			Err(err)
	}

	event.Msg("vector rollback completed")
}

// LogStoreOpen logs store startup.
func (l *Logger) LogStoreOpen(dir string, regionCount int) {
	l.zlog.Info().
		Str("event", "store_open").
		Str("dir", dir).
		Int("region_count", regionCount).
		Msg("region store opened")
}

// LogStoreClose logs store shutdown.
func (l *Logger) LogStoreClose() {
	l.zlog.Info().
		Str("event", "store_close").
		Msg("region store closed")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
