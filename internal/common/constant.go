// Package common contains shared constants, sentinel errors and small helpers
// used across the gophauth server and client.
package common

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "token"

// AuthorizationHeaderName is the header checked when no session cookie is sent.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header.
const BearerPrefix = "Bearer "

// RandomTokenSize is the number of random bytes behind verification and
// password reset tokens. Hex encoding doubles the string length.
const RandomTokenSize = 32
