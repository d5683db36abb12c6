package command

import (
	"strings"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Fallback validation messages
const (
	MsgInvalidRequestData           = "Invalid request data"
	MsgRequestRejected              = "Data you trying to send is invalid"
	MsgInvalidRequestAdditionalData = "Invalid request additional data"
	MsgInvalidResponse              = "Received invalid data"
)

// ResponseValidator checks a response against the request that produced it
type ResponseValidator interface {
	Validate(response channel.Response, request channel.Request) bool
	IsOptional() bool
	ErrorDescription() string
}

// validateRequest runs the request validator bank. A failing mandatory
// validator aborts at once; otherwise at least one validator must pass.
func validateRequest(validators []channel.Validator, data []byte) error {
	if len(validators) == 0 {
		return nil
	}

	passed := false
	for i, v := range validators {
		if v.Validate(data) {
			passed = true
			continue
		}
		if v.IsOptional() {
			continue
		}

		msg := v.ErrorDescription()
		if strings.TrimSpace(msg) == "" {
			msg = MsgInvalidRequestData
		}
		return commerrors.RequestValidationFailed(msg, i, false)
	}

	if !passed {
		return commerrors.RequestValidationFailed(MsgRequestRejected, -1, true)
	}
	return nil
}

// validateResponse runs the response validator bank. Unlike the request
// bank, a whitespace-only description is used as is; only an empty one
// falls back to MsgInvalidResponse.
func validateResponse(validators []ResponseValidator, response channel.Response, request channel.Request) error {
	if len(validators) == 0 {
		return nil
	}

	passed := false
	for i, v := range validators {
		if v.Validate(response, request) {
			passed = true
			continue
		}
		if v.IsOptional() {
			continue
		}

		msg := v.ErrorDescription()
		if len(msg) == 0 {
			msg = MsgInvalidResponse
		}
		return commerrors.ResponseValidationFailed(msg, i, false)
	}

	if !passed {
		return commerrors.ResponseValidationFailed(MsgInvalidResponse, -1, true)
	}
	return nil
}
