// Package endpointhttp implements the HTTP protocol endpoints of the
// authorization server: authorization, token, introspection, revocation, the
// discovery documents, the JWK Set, userinfo, and dynamic client
// registration.
//
// The four grant/token endpoints share one five-stage pipeline: match the
// request, convert its parameters into a typed unauthenticated request,
// dispatch to the first provider claiming that request type, then run exactly
// one of the success or failure handlers to serialize the wire response. The
// pipeline itself knows nothing about individual grant types; new grants are
// added by registering providers, not by modifying endpoints.
//
// Parameter handling is deliberately strict: any parameter the protocol
// defines as single-valued that appears more than once is rejected with
// invalid_request. There is no first-value or last-value tolerance, on any
// endpoint.
package endpointhttp
