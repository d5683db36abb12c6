// Package logging provides structured logging for command execution.
// Entries carry typed fields, an optional execution ID taken from the
// context, and the code/category of engine errors attached with WithError.
package logging

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	// DebugLevel is for per-attempt and per-stage detail
	DebugLevel Level = iota - 1
	// InfoLevel is for general informational messages
	InfoLevel
	// WarnLevel is for retries and recoverable faults
	WarnLevel
	// ErrorLevel is for failed executions
	ErrorLevel
	// OffLevel disables output
	OffLevel
)

// String returns the string representation of a log level
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
	case OffLevel:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error field
func ErrorField(err error) Field {
	return Field{Key: errorKey, Value: err}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Hex creates a field holding a hex dump of a payload
func Hex(key string, data []byte) Field {
	return Field{Key: key, Value: hex.EncodeToString(data)}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// WithFields returns a new logger with additional fields
	WithFields(fields ...Field) Logger
	// WithContext returns a new logger carrying the context's execution ID
	WithContext(ctx context.Context) Logger
	// WithError returns a new logger with error context
	WithError(err error) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Entry is one record handed to a Formatter. The execution ID, component,
// operation, mode and error are lifted out of Fields before formatting.
type Entry struct {
	Timestamp   time.Time
	Level       Level
	Message     string
	ExecutionID string
	Component   string
	Operation   string
	Mode        string
	Err         *ErrorDetail
	Fields      map[string]interface{}
}

// ErrorDetail describes the error attached to an entry. Code, Name,
// Category and Severity are only set for engine errors.
type ErrorDetail struct {
	Message  string `json:"message"`
	Code     int    `json:"code,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Severity string `json:"severity,omitempty"`
}

func newErrorDetail(err error) *ErrorDetail {
	d := &ErrorDetail{Message: err.Error()}
	commErr, ok := commerrors.AsCommError(err)
	if !ok {
		return d
	}
	d.Code = commErr.Code()
	d.Category = string(commErr.Category())
	d.Severity = string(commErr.Severity())
	if info, ok := commerrors.GetErrorCodeInfo(d.Code); ok {
		d.Name = info.Name
	}
	return d
}

// Formatter formats log entries
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Keys lifted from fields into Entry
const (
	executionIDKey = "execution_id"
	componentKey   = "component"
	operationKey   = "operation"
	modeKey        = "mode"
	errorKey       = "error"
)

type baseLogger struct {
	mu        sync.RWMutex
	level     Level
	output    io.Writer
	formatter Formatter
	fields    map[string]interface{}
	// writeMu is shared by every logger derived from the same root
	writeMu *sync.Mutex
}

// New creates a new structured logger writing to output
func New(output io.Writer, formatter Formatter) Logger {
	if output == nil {
		output = os.Stderr
	}
	if formatter == nil {
		formatter = NewTextFormatter()
	}

	return &baseLogger{
		level:     InfoLevel,
		output:    output,
		formatter: formatter,
		fields:    make(map[string]interface{}),
		writeMu:   &sync.Mutex{},
	}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	l := New(io.Discard, nil)
	l.SetLevel(OffLevel)
	return l
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// WithFields returns a new logger with additional fields
func (l *baseLogger) WithFields(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for _, field := range fields {
		newFields[field.Key] = field.Value
	}

	return &baseLogger{
		level:     l.level,
		output:    l.output,
		formatter: l.formatter,
		fields:    newFields,
		writeMu:   l.writeMu,
	}
}

// WithContext returns a new logger with context fields
func (l *baseLogger) WithContext(ctx context.Context) Logger {
	if id := ExecutionIDFromContext(ctx); id != "" {
		return l.WithFields(String(executionIDKey, id))
	}
	return l.WithFields()
}

// WithError returns a new logger carrying err. An engine error also
// contributes the execution ID, mode, component and operation it was
// raised under.
func (l *baseLogger) WithError(err error) Logger {
	fields := []Field{ErrorField(err)}

	if commErr, ok := commerrors.AsCommError(err); ok {
		if ctx := commErr.Context(); ctx != nil {
			for _, f := range []Field{
				String(executionIDKey, ctx.ExecutionID),
				String(modeKey, ctx.Mode),
				String(componentKey, ctx.Component),
				String(operationKey, ctx.Operation),
			} {
				if f.Value != "" {
					fields = append(fields, f)
				}
			}
			if ctx.Attempt > 0 {
				fields = append(fields, Int("attempt", ctx.Attempt))
			}
		}
	}

	return l.WithFields(fields...)
}

// SetLevel sets the minimum log level
func (l *baseLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *baseLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *baseLogger) log(level Level, msg string, fields ...Field) {
	l.mu.RLock()
	if level < l.level {
		l.mu.RUnlock()
		return
	}

	entry := &Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	l.mu.RUnlock()

	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}
	entry.lift()

	data, err := l.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to format log entry: %v\n", err)
		return
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if _, err := l.output.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log entry: %v\n", err)
	}
}

// lift moves the well known keys out of Fields
func (e *Entry) lift() {
	take := func(key string) string {
		if v, ok := e.Fields[key].(string); ok {
			delete(e.Fields, key)
			return v
		}
		return ""
	}
	e.ExecutionID = take(executionIDKey)
	e.Component = take(componentKey)
	e.Operation = take(operationKey)
	e.Mode = take(modeKey)

	if err, ok := e.Fields[errorKey].(error); ok && err != nil {
		delete(e.Fields, errorKey)
		e.Err = newErrorDetail(err)
	}
}

type contextKey string

const executionIDContextKey contextKey = "execution_id"

// ContextWithExecutionID returns a context carrying an execution ID
func ContextWithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDContextKey, id)
}

// ExecutionIDFromContext extracts the execution ID from a context
func ExecutionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(executionIDContextKey).(string); ok {
		return id
	}
	return ""
}

var (
	globalMu     sync.RWMutex
	globalLogger = newDefaultLogger()
)

func newDefaultLogger() Logger {
	l := New(os.Stderr, NewTextFormatter())
	l.SetLevel(WarnLevel)
	return l
}

// SetGlobalLogger sets the logger used by components that were not given one
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// LogError logs an error message to the global logger
func LogError(msg string, fields ...Field) { GetGlobalLogger().Error(msg, fields...) }
