package errors

// Configuration errors (1000-1099)
const (
	CodeConfigurationError    int = 1000 // Generic configuration error
	CodeMissingChannel        int = 1001 // Command has no channel bound
	CodeUnsupportedMode       int = 1002 // Execution mode is not one of the known modes
	CodeUnsupportedConversion int = 1003 // No converter and no implicit conversion for the target type
	CodeHandlerLoop           int = 1004 // Response handlers kept changing the response past the pass limit
	CodeInvalidHandlerResult  int = 1005 // Response handler returned an unusable result
	CodeInvalidConfiguration  int = 1006 // Configuration value out of range
)

// Validation errors (1100-1199)
const (
	CodeValidationError          int = 1100 // Generic validation error
	CodeEmptyRequest             int = 1101 // Request payload missing or empty
	CodeRequestInvalid           int = 1102 // Request validator bank rejected the payload
	CodeAdditionalDataInvalid    int = 1103 // Additional data segment rejected by its validator
	CodeResponseInvalid          int = 1104 // Response validator bank rejected the response
	CodeAdditionalDataOutOfRange int = 1105 // Additional data segment has an invalid offset
)

// Transport errors (1200-1299)
const (
	CodeTransportError     int = 1200 // Generic channel fault
	CodeChannelUnavailable int = 1201 // Channel rejected the call (breaker open, closed channel)
	CodeChannelThrottled   int = 1202 // Channel call could not acquire a send slot
)

// Command errors raised when classifying channel faults (1300-1399)
const (
	CodeCommandFailed          int = 1300 // Command failed on the remote side
	CodeCommandNotSupported    int = 1301 // Remote side does not support the command
	CodeCommandTimeout         int = 1302 // Command timed out
	CodeInvalidCommandResponse int = 1303 // Response could not be interpreted
)

// Cancellation (1400-1499)
const (
	CodeCancelled int = 1400 // Operation cancelled by the caller
)

// CodeInternalError is used for errors that fit no other category
const CodeInternalError int = 1500

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeConfigurationError:    {CodeConfigurationError, "ConfigurationError", "Configuration error", CategoryConfiguration, SeverityError},
	CodeMissingChannel:        {CodeMissingChannel, "MissingChannel", "Communication channel cannot be nil", CategoryConfiguration, SeverityCritical},
	CodeUnsupportedMode:       {CodeUnsupportedMode, "UnsupportedMode", "Unsupported execution mode", CategoryConfiguration, SeverityError},
	CodeUnsupportedConversion: {CodeUnsupportedConversion, "UnsupportedConversion", "Unsupported response conversion", CategoryConfiguration, SeverityError},
	CodeHandlerLoop:           {CodeHandlerLoop, "HandlerLoop", "Response handler pass limit exceeded", CategoryConfiguration, SeverityError},
	CodeInvalidHandlerResult:  {CodeInvalidHandlerResult, "InvalidHandlerResult", "Invalid response handler result", CategoryConfiguration, SeverityError},
	CodeInvalidConfiguration:  {CodeInvalidConfiguration, "InvalidConfiguration", "Invalid configuration value", CategoryConfiguration, SeverityError},

	CodeValidationError:          {CodeValidationError, "ValidationError", "Validation error", CategoryValidation, SeverityError},
	CodeEmptyRequest:             {CodeEmptyRequest, "EmptyRequest", "Request cannot be nil or empty", CategoryValidation, SeverityError},
	CodeRequestInvalid:           {CodeRequestInvalid, "RequestInvalid", "Request data is invalid", CategoryValidation, SeverityError},
	CodeAdditionalDataInvalid:    {CodeAdditionalDataInvalid, "AdditionalDataInvalid", "Request additional data is invalid", CategoryValidation, SeverityError},
	CodeResponseInvalid:          {CodeResponseInvalid, "ResponseInvalid", "Received invalid data", CategoryValidation, SeverityError},
	CodeAdditionalDataOutOfRange: {CodeAdditionalDataOutOfRange, "AdditionalDataOutOfRange", "Additional data offset out of range", CategoryValidation, SeverityError},

	CodeTransportError:     {CodeTransportError, "TransportError", "Channel error", CategoryTransport, SeverityError},
	CodeChannelUnavailable: {CodeChannelUnavailable, "ChannelUnavailable", "Channel unavailable", CategoryTransport, SeverityWarning},
	CodeChannelThrottled:   {CodeChannelThrottled, "ChannelThrottled", "Channel throttled", CategoryTransport, SeverityWarning},

	CodeCommandFailed:          {CodeCommandFailed, "CommandFailed", "Command error occurred", CategoryCommand, SeverityError},
	CodeCommandNotSupported:    {CodeCommandNotSupported, "CommandNotSupported", "Command not supported", CategoryCommand, SeverityError},
	CodeCommandTimeout:         {CodeCommandTimeout, "CommandTimeout", "Command timeout", CategoryTimeout, SeverityError},
	CodeInvalidCommandResponse: {CodeInvalidCommandResponse, "InvalidCommandResponse", "Invalid command response", CategoryCommand, SeverityError},

	CodeCancelled: {CodeCancelled, "Cancelled", "Operation cancelled", CategoryCancelled, SeverityInfo},

	CodeInternalError: {CodeInternalError, "InternalError", "Internal error", CategoryInternal, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// ListErrorCodes returns all registered error codes
func ListErrorCodes() []ErrorCodeInfo {
	codes := make([]ErrorCodeInfo, 0, len(errorCodeRegistry))
	for _, info := range errorCodeRegistry {
		codes = append(codes, info)
	}
	return codes
}
