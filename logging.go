// logging.go: Pluggable logging for the extension runtime
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type loggerContextKey string

const loggerKey loggerContextKey = "logger"

// Logger is the structured logging interface used across the runtime.
//
// Arguments after the message are key-value pairs. Hosts plug in their own
// implementation or use NewZapLogger; nil selects a silent logger.
//
//	rt, err := goextensions.New(goextensions.RuntimeOptions{Logger: goextensions.NewZapLogger(zapLogger)})
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a logger that adds the given key-value pairs to every entry.
	With(args ...any) Logger
}

// Syncer is implemented by loggers that buffer output. The loader flushes
// such loggers before terminating the process.
type Syncer interface {
	Sync() error
}

// NewLogger normalizes a logger argument.
//
// Supported types:
//   - Logger: used directly
//   - *zap.Logger: wrapped with NewZapLogger
//   - nil: NoOpLogger
//
// Any other type panics.
func NewLogger(logger any) Logger {
	switch l := logger.(type) {
	case Logger:
		return l
	case *zap.Logger:
		return NewZapLogger(l)
	case nil:
		return NewNoOpLogger()
	default:
		panic("unsupported logger type: expected Logger, *zap.Logger or nil")
	}
}

// flushLogger syncs the logger when it buffers output.
func flushLogger(logger Logger) {
	if s, ok := logger.(Syncer); ok {
		_ = s.Sync() // #nosec G104 -- best effort before exit
	}
}

// swappableLogger forwards to a logger that may be replaced after the
// components holding it were built. Loggers derived through With follow
// the replacement too.
type swappableLogger struct {
	current *atomic.Pointer[loggerRef]
	fields  []any
}

type loggerRef struct{ Logger }

func newSwappableLogger(logger Logger) *swappableLogger {
	s := &swappableLogger{current: new(atomic.Pointer[loggerRef])}
	s.set(logger)
	return s
}

func (s *swappableLogger) set(logger Logger) {
	s.current.Store(&loggerRef{Logger: NewLogger(logger)})
}

func (s *swappableLogger) target() Logger { return s.current.Load().Logger }

func (s *swappableLogger) args(args []any) []any {
	if len(s.fields) == 0 {
		return args
	}
	return append(append(make([]any, 0, len(s.fields)+len(args)), s.fields...), args...)
}

func (s *swappableLogger) Debug(msg string, args ...any) { s.target().Debug(msg, s.args(args)...) }
func (s *swappableLogger) Info(msg string, args ...any)  { s.target().Info(msg, s.args(args)...) }
func (s *swappableLogger) Warn(msg string, args ...any)  { s.target().Warn(msg, s.args(args)...) }
func (s *swappableLogger) Error(msg string, args ...any) { s.target().Error(msg, s.args(args)...) }

func (s *swappableLogger) With(args ...any) Logger {
	return &swappableLogger{current: s.current, fields: s.args(args)}
}

// Sync implements Syncer for the current logger.
func (s *swappableLogger) Sync() error {
	if syncer, ok := s.target().(Syncer); ok {
		return syncer.Sync()
	}
	return nil
}

// NoOpLogger discards all log entries.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-operation logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug implements Logger interface (no-op)
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info implements Logger interface (no-op)
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn implements Logger interface (no-op)
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error implements Logger interface (no-op)
func (n *NoOpLogger) Error(msg string, args ...any) {}

// With implements Logger interface (no-op)
func (n *NoOpLogger) With(args ...any) Logger {
	return n
}

// TestLogger captures log entries for assertions in tests.
type TestLogger struct {
	mu       *sync.RWMutex
	messages *[]TestLogMessage
	fields   []any
}

// TestLogMessage is a captured log entry. Args include fields added with With.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// NewTestLogger creates a new test logger.
func NewTestLogger() *TestLogger {
	messages := make([]TestLogMessage, 0)
	return &TestLogger{
		mu:       &sync.RWMutex{},
		messages: &messages,
	}
}

func (t *TestLogger) record(level, msg string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]any, 0, len(t.fields)+len(args))
	all = append(all, t.fields...)
	all = append(all, args...)
	*t.messages = append(*t.messages, TestLogMessage{
		Level:   level,
		Message: msg,
		Args:    all,
	})
}

// Debug implements Logger interface (captures message)
func (t *TestLogger) Debug(msg string, args ...any) { t.record("DEBUG", msg, args) }

// Info implements Logger interface (captures message)
func (t *TestLogger) Info(msg string, args ...any) { t.record("INFO", msg, args) }

// Warn implements Logger interface (captures message)
func (t *TestLogger) Warn(msg string, args ...any) { t.record("WARN", msg, args) }

// Error implements Logger interface (captures message)
func (t *TestLogger) Error(msg string, args ...any) { t.record("ERROR", msg, args) }

// With returns a child logger that shares the captured entries.
func (t *TestLogger) With(args ...any) Logger {
	fields := make([]any, 0, len(t.fields)+len(args))
	fields = append(fields, t.fields...)
	fields = append(fields, args...)
	return &TestLogger{
		mu:       t.mu,
		messages: t.messages,
		fields:   fields,
	}
}

// Messages returns a copy of the captured entries.
func (t *TestLogger) Messages() []TestLogMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TestLogMessage, len(*t.messages))
	copy(out, *t.messages)
	return out
}

// HasMessage checks if the logger captured a message with the given level and text.
func (t *TestLogger) HasMessage(level, message string) bool {
	return t.CountMessages(level, message) > 0
}

// CountMessages counts captured entries with the given level whose text
// contains message.
func (t *TestLogger) CountMessages(level, message string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for _, msg := range *t.messages {
		if msg.Level == level && strings.Contains(msg.Message, message) {
			count++
		}
	}
	return count
}

// Clear removes all captured messages.
func (t *TestLogger) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	*t.messages = (*t.messages)[:0]
}

// DefaultLogger returns the logger used when none is configured.
func DefaultLogger() Logger {
	return NewNoOpLogger()
}

// LoggerFromContext extracts a logger from ctx, falling back to DefaultLogger.
func LoggerFromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey).(Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// ContextWithLogger adds a logger to the context.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}
