// Package client talks to the gophauth HTTP API on behalf of the CLI.
//
// # Overview
//
// Client is the transport-agnostic contract the CLI depends on. HTTPClient
// implements it over net/http: it decodes the {success, message, data}
// envelope, keeps the session token returned by Login and sends it back as a
// bearer token on authenticated calls.
//
// # Error Handling
//
// Transport failures are reported as ErrUnavailable and 401 replies as
// ErrUnauthorized, both matchable with errors.Is. Any other failed reply is an
// *APIError carrying the HTTP status and the server's message.
package client
