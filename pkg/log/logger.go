// Package log provides a structured logging system for Courier services.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a textual level (debug|info|warn|error|fatal) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys for propagating logging context
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

type ctxKey string

// ContextWithRequestID returns a context carrying the request id for WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey(RequestIDKey), id)
}

// ContextWithOperation returns a context carrying the operation name for WithContext.
func ContextWithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, ctxKey(OperationKey), op)
}

// Entry represents a single log entry.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger defines the core logging interface for Courier components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	// With adds multiple fields to the logger.
	With(fields ...Field) Logger

	// WithError attaches err under the "error" key.
	WithError(err error) Logger

	// WithContext adds request context (request id, operation) to the Logger.
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name.
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output defines the interface for log outputs.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements the Logger interface.
type BaseLogger struct {
	state      *loggerState
	slogLogger *slog.Logger
}

// loggerState is shared between a logger and the children produced by With.
type loggerState struct {
	mu        sync.RWMutex
	level     Level
	formatter Formatter
	outputs   []Output
}

func (s *loggerState) getLevel() Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// ContextExtractor extracts logging context from a context.Context.
func ContextExtractor(ctx context.Context) Fields {
	fields := Fields{}
	if ctx == nil {
		return fields
	}
	if v := ctx.Value(ctxKey(RequestIDKey)); v != nil {
		fields[RequestIDKey] = v
	}
	if v := ctx.Value(ctxKey(OperationKey)); v != nil {
		fields[OperationKey] = v
	}
	return fields
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		state: &loggerState{
			level:     InfoLevel,
			formatter: &JSONFormatter{},
		},
	}
	for _, option := range options {
		option(logger)
	}
	if len(logger.state.outputs) == 0 {
		logger.state.outputs = append(logger.state.outputs, NewConsoleOutput())
	}
	logger.slogLogger = slog.New(newBridgeHandler(logger.state))
	return logger
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { l.state.level = level }
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.state.formatter = formatter }
}

// WithOutput adds an output to the logger.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.state.outputs = append(l.state.outputs, output) }
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.state.getLevel() {
		return
	}
	l.slogLogger.LogAttrs(context.Background(), toSlogLevel(level), msg, attrsFromFields(fields)...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs at FatalLevel and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(msg, args...), nil)
}

// With returns a child logger carrying the provided fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &BaseLogger{state: l.state, slogLogger: l.slogLogger.With(fieldArgs(fields)...)}
}

func (l *BaseLogger) WithError(err error) Logger { return l.With(Err(err)) }

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	extracted := ContextExtractor(ctx)
	if len(extracted) == 0 {
		return l
	}
	return &BaseLogger{state: l.state, slogLogger: l.slogLogger.With(attrsFromMap(extracted)...)}
}

func (l *BaseLogger) WithComponent(component string) Logger { return l.With(Component(component)) }

// Slog exposes the logger as a *slog.Logger sharing level, formatter and
// outputs. Request context passed to its *Context methods is logged.
func (l *BaseLogger) Slog() *slog.Logger { return l.slogLogger }

func (l *BaseLogger) SetLevel(level Level) {
	l.state.mu.Lock()
	l.state.level = level
	l.state.mu.Unlock()
}

func (l *BaseLogger) GetLevel() Level { return l.state.getLevel() }
