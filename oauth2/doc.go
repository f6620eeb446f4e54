// Package oauth2 defines the protocol vocabulary shared by every endpoint:
// RFC 6749 error codes and their wire shape, parameter names, grant types,
// token type hints, and the strict form-decoding rules that all endpoints
// apply identically.
//
// The one rule worth calling out is parameter multiplicity: a parameter that
// the protocol defines as single-valued is a protocol error when it appears
// more than once. There is no "first value wins" anywhere in this module;
// converters use Params.Singular and fail with ErrorCodeInvalidRequest.
package oauth2
