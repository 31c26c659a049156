package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/townsquareapp/townsquare-server/internal/errors"
)

// EnvelopeVersion is the value of the "v" field in every response body.
const EnvelopeVersion = 1

// Envelope wraps successful response bodies.
type Envelope struct {
	V       int  `json:"v"`
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope wraps error response bodies.
type ErrorEnvelope struct {
	V       int       `json:"v"`
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody is the error object inside an ErrorEnvelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps every huma response body in the versioned
// envelope. Error statuses produce an ErrorEnvelope.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		return errorEnvelope(apiErr.Code, apiErr.Message, apiErr.Details), nil
	}

	if err, ok := v.(error); ok {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return errorEnvelope(string(domainErr.Code), domainErr.Message, domainErr.Details), nil
		}
	}

	code, _ := strconv.Atoi(status)
	if code >= 400 {
		switch e := v.(type) {
		case *huma.ErrorModel:
			return errorEnvelope(statusToCode(code), e.Detail, e.Errors), nil
		case error:
			return errorEnvelope(statusToCode(code), e.Error(), nil), nil
		default:
			return errorEnvelope(statusToCode(code), fmt.Sprint(v), nil), nil
		}
	}

	return Envelope{V: EnvelopeVersion, Success: true, Data: v}, nil
}

func errorEnvelope(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{
		V:       EnvelopeVersion,
		Success: false,
		Error:   ErrorBody{Code: code, Message: message, Details: details},
	}
}
