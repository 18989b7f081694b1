// Package logger provides the structured logger used throughout the
// orchestrator: package-level convenience functions backed by a
// configurable default logger, plus a WithFields helper for call sites that
// want to attach the same fields across several log lines.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// LogLevel mirrors zerolog's level ordering so call sites that only know
// "DEBUG"/"INFO"/... don't need to import zerolog directly.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

// Logger wraps a zerolog.Logger, keeping the same surface the rest of the
// codebase expects: Log and LogError. The level convenience calls (Debug,
// Info, Warn, Error, Fatal) are package-level functions on the default
// logger and methods of FieldLogger.
type Logger struct {
	z zerolog.Logger
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewLogger(INFO, os.Stdout, false)
}

// NewLogger builds a Logger writing to w. structured selects JSON output
// (for log aggregation); false gives zerolog's human-readable console
// writer, matching the teacher's text-vs-JSON toggle.
func NewLogger(level LogLevel, w *os.File, structured bool) *Logger {
	var writer zerolog.Logger
	if structured {
		writer = zerolog.New(w).With().Timestamp().Logger()
	} else {
		writer = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	}
	writer = writer.Level(level.zerolog())
	return &Logger{z: writer}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}

func withFields(e *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

// Log emits a message at level with the given fields attached.
func (l *Logger) Log(level LogLevel, message string, fields map[string]interface{}) {
	var e *zerolog.Event
	switch level {
	case DEBUG:
		e = l.z.Debug()
	case INFO:
		e = l.z.Info()
	case WARN:
		e = l.z.Warn()
	case ERROR:
		e = l.z.Error()
	default:
		e = l.z.WithLevel(zerolog.FatalLevel)
	}
	withFields(e, fields).Msg(message)
}

// LogError emits a message at level with an attached error plus fields.
func (l *Logger) LogError(level LogLevel, message string, err error, fields map[string]interface{}) {
	var e *zerolog.Event
	switch level {
	case DEBUG:
		e = l.z.Debug()
	case INFO:
		e = l.z.Info()
	case WARN:
		e = l.z.Warn()
	case ERROR:
		e = l.z.Error()
	default:
		e = l.z.WithLevel(zerolog.FatalLevel)
	}
	if err != nil {
		e = e.Err(err)
	}
	withFields(e, fields).Msg(message)
}

// Convenience methods for the default logger.

func Debug(message string, fields map[string]interface{}) {
	defaultLogger.Log(DEBUG, message, fields)
}

func Info(message string, fields map[string]interface{}) {
	defaultLogger.Log(INFO, message, fields)
}

func Warn(message string, fields map[string]interface{}) {
	defaultLogger.Log(WARN, message, fields)
}

func Error(message string, err error, fields map[string]interface{}) {
	defaultLogger.LogError(ERROR, message, err, fields)
}

func Fatal(message string, err error, fields map[string]interface{}) {
	defaultLogger.LogError(FATAL, message, err, fields)
	os.Exit(1)
}

// FieldLogger is a Logger pre-bound to a fixed set of fields, for call sites
// that log several related lines (e.g. one per instance operation).
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{logger: defaultLogger, fields: fields}
}

func (f *FieldLogger) Debug(message string) { f.logger.Log(DEBUG, message, f.fields) }
func (f *FieldLogger) Info(message string)  { f.logger.Log(INFO, message, f.fields) }
func (f *FieldLogger) Warn(message string)  { f.logger.Log(WARN, message, f.fields) }

func (f *FieldLogger) Error(message string, err error) {
	f.logger.LogError(ERROR, message, err, f.fields)
}

func (f *FieldLogger) Fatal(message string, err error) {
	f.logger.LogError(FATAL, message, err, f.fields)
	os.Exit(1)
}
