package errors

import (
	"context"
	"fmt"
	"os"
)

// ConvertStandardError converts common Go errors to CommErrors.
// Errors that already are CommErrors are returned unchanged.
func ConvertStandardError(err error) CommError {
	if err == nil {
		return nil
	}

	if commErr, ok := AsCommError(err); ok {
		return commErr
	}

	switch {
	case Is(err, context.Canceled):
		return Cancelled("operation", err)
	case Is(err, context.DeadlineExceeded), Is(err, os.ErrDeadlineExceeded):
		return CommandTimeout("", err)
	}

	return WrapError(err, CodeInternalError, "Internal error", CategoryInternal, SeverityError)
}

// IsRetryable reports whether err describes a fault worth another attempt.
// The orchestrator itself retries every channel fault; this is for callers
// and middleware that want to be more selective.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if commErr, ok := AsCommError(err); ok {
		if data, ok := commErr.Data().(*TransportErrorData); ok {
			return data.Retryable
		}

		switch commErr.Category() {
		case CategoryTransport, CategoryTimeout:
			return true
		case CategoryCancelled, CategoryConfiguration, CategoryValidation:
			return false
		}

		switch commErr.Code() {
		case CodeInvalidCommandResponse, CodeCommandFailed:
			return true
		case CodeCommandNotSupported:
			return false
		}
		return false
	}

	if Is(err, context.Canceled) {
		return false
	}
	return true
}

// CombineErrors combines multiple errors into a single CommError
func CombineErrors(errs []error) CommError {
	valid := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			valid = append(valid, err)
		}
	}

	switch len(valid) {
	case 0:
		return nil
	case 1:
		return ConvertStandardError(valid[0])
	}

	messages := make([]string, len(valid))
	errorData := make([]interface{}, len(valid))
	for i, err := range valid {
		messages[i] = err.Error()
		if commErr, ok := AsCommError(err); ok {
			errorData[i] = commErr.ToJSON()
		} else {
			errorData[i] = map[string]interface{}{
				"message": err.Error(),
				"type":    fmt.Sprintf("%T", err),
			}
		}
	}

	return NewError(
		CodeInternalError,
		fmt.Sprintf("Multiple errors occurred: %v", messages),
		CategoryInternal,
		SeverityError,
	).WithData(map[string]interface{}{
		"errors": errorData,
		"count":  len(valid),
	})
}
