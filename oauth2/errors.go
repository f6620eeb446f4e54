package oauth2

import (
	"encoding/json"
	"fmt"
)

// Error codes per RFC 6749 §5.2, RFC 7009 §2.2.1 and RFC 7662.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeUnsupportedResponse  = "unsupported_response_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeUnsupportedTokenType = "unsupported_token_type"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeServerError          = "server_error"
)

// Error is the RFC 6749 error-response value. It travels as a Go error from
// converters and providers to the endpoint failure handlers, which serialize
// it as either a JSON body or redirect query parameters depending on the
// endpoint.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds an Error with a code and human-readable description.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewErrorWithURI builds an Error that also references the defining spec
// section, surfaced to clients as error_uri.
func NewErrorWithURI(code, description, uri string) *Error {
	return &Error{Code: code, Description: description, URI: uri}
}

// InvalidParameter builds the invalid_request error used by every converter
// when a parameter is missing, duplicated, or malformed. The error_uri points
// at the section of the RFC that defines the offending parameter.
func InvalidParameter(parameter, uri string) *Error {
	return &Error{
		Code:        ErrorCodeInvalidRequest,
		Description: "OAuth 2.0 parameter: " + parameter,
		URI:         uri,
	}
}

// MarshalJSON keeps the wire shape stable even if fields are added later.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Code        string `json:"error"`
		Description string `json:"error_description,omitempty"`
		URI         string `json:"error_uri,omitempty"`
	}
	return json.Marshal(wire{Code: e.Code, Description: e.Description, URI: e.URI})
}
