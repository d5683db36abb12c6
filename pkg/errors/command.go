package errors

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Default messages for the command fault taxonomy.
const (
	DefaultCommandFailedMessage          = "Command error occurred, contact support."
	DefaultCommandNotSupportedMessage    = "Command not supported error occurred, contact support."
	DefaultCommandTimeoutMessage         = "Command timeout error occurred. Please try again."
	DefaultInvalidCommandResponseMessage = "Invalid Command Response error occurred. Please try again."
)

// ConfigurationErrorData describes which setting was wrong
type ConfigurationErrorData struct {
	Setting string      `json:"setting"`
	Value   interface{} `json:"value,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// ValidationErrorData describes the stage and validator that rejected a payload
type ValidationErrorData struct {
	Stage          string `json:"stage"`
	ValidatorIndex int    `json:"validator_index"`
	Optional       bool   `json:"optional"`
}

// TransportErrorData contains structured data for channel faults
type TransportErrorData struct {
	Operation string `json:"operation"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
}

// Configuration errors

// ConfigurationError creates a configuration error with the given code.
// data, when not nil, names the offending setting.
func ConfigurationError(code int, message string, data *ConfigurationErrorData) CommError {
	err := NewError(code, message, CategoryConfiguration, SeverityError)
	if data != nil {
		return err.WithData(data)
	}
	return err
}

// MissingChannel is returned when a command is executed without a channel
func MissingChannel() CommError {
	return NewError(
		CodeMissingChannel,
		"Communication channel cannot be nil",
		CategoryConfiguration,
		SeverityCritical,
	)
}

// UnsupportedMode is returned for execution modes the orchestrator does not know
func UnsupportedMode(mode interface{}) CommError {
	return ConfigurationError(
		CodeUnsupportedMode,
		fmt.Sprintf("Unsupported execution mode: %v", mode),
		&ConfigurationErrorData{Setting: "mode", Value: fmt.Sprint(mode)},
	)
}

// UnsupportedConversion is returned when no converter is configured and the
// target type cannot be produced from raw bytes
func UnsupportedConversion(target string) CommError {
	return ConfigurationError(
		CodeUnsupportedConversion,
		fmt.Sprintf("No response converter configured and []byte cannot be converted to %s", target),
		&ConfigurationErrorData{Setting: "converter", Value: target, Reason: "implicit conversion supports []byte only"},
	)
}

// HandlerLoop is returned when response handlers keep changing the response
func HandlerLoop(passes int) CommError {
	return ConfigurationError(
		CodeHandlerLoop,
		fmt.Sprintf("Response handlers changed the response %d times without completing", passes),
		&ConfigurationErrorData{Setting: "max_handler_passes", Value: passes, Reason: "pass limit exceeded"},
	)
}

// InvalidHandlerResult is returned when a handler reports a change or completion without a response
func InvalidHandlerResult(index int, state string) CommError {
	return ConfigurationError(
		CodeInvalidHandlerResult,
		fmt.Sprintf("Response handler %d returned %s without a response", index, state),
		nil,
	)
}

// InvalidConfiguration reports a configuration value that failed validation
func InvalidConfiguration(setting string, value interface{}, reason string) CommError {
	return ConfigurationError(
		CodeInvalidConfiguration,
		fmt.Sprintf("Invalid value for '%s': %s", setting, reason),
		&ConfigurationErrorData{Setting: setting, Value: value, Reason: reason},
	)
}

// Validation errors

// ValidationError creates a generic validation error
func ValidationError(message string) CommError {
	return NewError(CodeValidationError, message, CategoryValidation, SeverityError)
}

// EmptyRequest is returned when a sending command has no payload
func EmptyRequest() CommError {
	return NewError(CodeEmptyRequest, "Request cannot be nil or empty", CategoryValidation, SeverityError)
}

// RequestValidationFailed is returned when the request validator bank rejects the payload
func RequestValidationFailed(message string, index int, optional bool) CommError {
	return NewError(CodeRequestInvalid, message, CategoryValidation, SeverityError).
		WithData(&ValidationErrorData{Stage: "request", ValidatorIndex: index, Optional: optional})
}

// AdditionalDataInvalid is returned when an additional data segment fails its validator
func AdditionalDataInvalid(message string, index int) CommError {
	return NewError(CodeAdditionalDataInvalid, message, CategoryValidation, SeverityError).
		WithData(&ValidationErrorData{Stage: "additional_data", ValidatorIndex: index})
}

// AdditionalDataOutOfRange is returned for segments with a negative offset
func AdditionalDataOutOfRange(index, offset int) CommError {
	return NewError(
		CodeAdditionalDataOutOfRange,
		fmt.Sprintf("Additional data segment %d has invalid start index %d", index, offset),
		CategoryValidation,
		SeverityError,
	).WithData(&ValidationErrorData{Stage: "additional_data", ValidatorIndex: index})
}

// ResponseValidationFailed is returned when the response validator bank rejects a response
func ResponseValidationFailed(message string, index int, optional bool) CommError {
	return NewError(CodeResponseInvalid, message, CategoryValidation, SeverityError).
		WithData(&ValidationErrorData{Stage: "response", ValidatorIndex: index, Optional: optional})
}

// Transport errors

// TransportError wraps a channel fault
func TransportError(operation string, cause error) CommError {
	message := "Channel error"
	if operation != "" {
		message = fmt.Sprintf("Channel error during %s", operation)
	}
	reason := ""
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
		reason = cause.Error()
	}

	return WrapError(cause, CodeTransportError, message, CategoryTransport, SeverityError).
		WithData(&TransportErrorData{Operation: operation, Retryable: true, Reason: reason})
}

// ChannelUnavailable is returned when the channel refuses calls. cause may be nil.
func ChannelUnavailable(operation, reason string, cause error) CommError {
	return WrapError(
		cause,
		CodeChannelUnavailable,
		fmt.Sprintf("Channel unavailable for %s: %s", operation, reason),
		CategoryTransport,
		SeverityWarning,
	).WithData(&TransportErrorData{Operation: operation, Retryable: true, Reason: reason})
}

// ChannelThrottled is returned when a throttled channel call gives up waiting for a slot
func ChannelThrottled(operation string, cause error) CommError {
	return WrapError(
		cause,
		CodeChannelThrottled,
		fmt.Sprintf("Channel throttled during %s", operation),
		CategoryTransport,
		SeverityWarning,
	).WithData(&TransportErrorData{Operation: operation, Retryable: true, Reason: "throttled"})
}

// Command fault taxonomy

func commandError(code int, category Category, defaultMessage, message string, cause error) CommError {
	if strings.TrimSpace(message) == "" {
		message = defaultMessage
	}
	if cause == nil {
		return NewError(code, message, category, SeverityError)
	}
	return WrapError(cause, code, message, category, SeverityError)
}

// CommandFailed reports a generic command failure
func CommandFailed(message string, cause error) CommError {
	return commandError(CodeCommandFailed, CategoryCommand, DefaultCommandFailedMessage, message, cause)
}

// CommandNotSupported reports a command the remote side does not support
func CommandNotSupported(message string, cause error) CommError {
	return commandError(CodeCommandNotSupported, CategoryCommand, DefaultCommandNotSupportedMessage, message, cause)
}

// CommandTimeout reports a command that did not complete in time
func CommandTimeout(message string, cause error) CommError {
	return commandError(CodeCommandTimeout, CategoryTimeout, DefaultCommandTimeoutMessage, message, cause)
}

// InvalidCommandResponse reports a response that could not be interpreted
func InvalidCommandResponse(message string, cause error) CommError {
	return commandError(CodeInvalidCommandResponse, CategoryCommand, DefaultInvalidCommandResponseMessage, message, cause)
}

// Cancellation

// Cancelled wraps a context error observed by operation
func Cancelled(operation string, cause error) CommError {
	if cause == nil {
		cause = context.Canceled
	}
	return WrapError(
		cause,
		CodeCancelled,
		fmt.Sprintf("%s cancelled: %s", operation, cause.Error()),
		CategoryCancelled,
		SeverityInfo,
	)
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool { return IsCategory(err, CategoryConfiguration) }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return IsCategory(err, CategoryValidation) }

// IsCancelled reports whether err is a cancellation, either ours or a bare context error
func IsCancelled(err error) bool {
	return IsCategory(err, CategoryCancelled) || Is(err, context.Canceled)
}

// IsTimeout reports whether err is a timeout
func IsTimeout(err error) bool {
	return IsCategory(err, CategoryTimeout) || Is(err, context.DeadlineExceeded) || Is(err, os.ErrDeadlineExceeded)
}
