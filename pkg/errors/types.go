// Package errors provides structured error handling for command execution.
// Every error raised by the engine carries a numeric code, a category used for
// retry and reporting decisions, a severity, and optional context describing
// where it happened.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category represents the type/category of an error for classification and handling
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryValidation    Category = "validation"
	CategoryTransport     Category = "transport"
	CategoryCommand       Category = "command"
	CategoryTimeout       Category = "timeout"
	CategoryCancelled     Category = "cancelled"
	CategoryInternal      Category = "internal"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context provides additional context about where and when an error occurred
type Context struct {
	ExecutionID string    `json:"execution_id,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Component   string    `json:"component,omitempty"`
	Operation   string    `json:"operation,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// CommError defines the interface for all errors raised by the engine
type CommError interface {
	error

	// Code returns the numeric error code
	Code() int

	// Message returns a human-readable error message
	Message() string

	// Details returns detailed technical description for debugging
	Details() string

	// Data returns structured error data for programmatic handling
	Data() interface{}

	// Category returns the error category for classification
	Category() Category

	// Severity returns the error severity level
	Severity() Severity

	// Context returns the error context information
	Context() *Context

	// WithContext returns a new error with the provided context
	WithContext(ctx *Context) CommError

	// WithDetail returns a new error with additional detail
	WithDetail(detail string) CommError

	// WithData returns a new error with structured data
	WithData(data interface{}) CommError

	// Unwrap returns the underlying error for error chain traversal
	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map
	ToJSON() map[string]interface{}
}

type baseError struct {
	code     int
	message  string
	details  string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

// Error implements the error interface
func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Details() string    { return e.details }
func (e *baseError) Data() interface{}  { return e.data }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }
func (e *baseError) Unwrap() error      { return e.cause }

// WithContext returns a copy of the error carrying ctx
func (e *baseError) WithContext(ctx *Context) CommError {
	newErr := *e
	if ctx != nil && ctx.Timestamp.IsZero() && e.context != nil {
		ctx.Timestamp = e.context.Timestamp
	}
	newErr.context = ctx
	return &newErr
}

// WithDetail returns a copy of the error with detail appended
func (e *baseError) WithDetail(detail string) CommError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

// WithData returns a copy of the error carrying data
func (e *baseError) WithData(data interface{}) CommError {
	newErr := *e
	newErr.data = data
	return &newErr
}

// ToJSON returns the error as a JSON-serializable map
func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}

	if e.details != "" {
		result["details"] = e.details
	}
	if e.data != nil {
		result["data"] = e.data
	}
	if e.context != nil {
		result["context"] = e.context
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}

	return result
}

// MarshalJSON implements json.Marshaler
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// NewError creates a new CommError with the specified parameters
func NewError(code int, message string, category Category, severity Severity) CommError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// NewErrorf creates a new CommError with formatted message
func NewErrorf(code int, category Category, severity Severity, format string, args ...interface{}) CommError {
	return NewError(code, fmt.Sprintf(format, args...), category, severity)
}

// WrapError wraps an existing error as a CommError
func WrapError(err error, code int, message string, category Category, severity Severity) CommError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    err,
		context:  &Context{Timestamp: time.Now()},
	}
}

// WrapErrorf wraps an existing error as a CommError with formatted message
func WrapErrorf(err error, code int, category Category, severity Severity, format string, args ...interface{}) CommError {
	return WrapError(err, code, fmt.Sprintf(format, args...), category, severity)
}

// AsCommError finds the first CommError in err's chain
func AsCommError(err error) (CommError, bool) {
	if err == nil {
		return nil, false
	}
	var commErr CommError
	if As(err, &commErr) {
		return commErr, true
	}
	return nil, false
}

// IsCommError checks if an error is (or wraps) a CommError
func IsCommError(err error) bool {
	_, ok := AsCommError(err)
	return ok
}

// IsCategory checks if an error is of a specific category
func IsCategory(err error, category Category) bool {
	if commErr, ok := AsCommError(err); ok {
		return commErr.Category() == category
	}
	return false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code int) bool {
	if commErr, ok := AsCommError(err); ok {
		return commErr.Code() == code
	}
	return false
}
