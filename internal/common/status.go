package common

import "errors"

// Status is the coarse outcome class of an operation.
type Status string

const (
	StatusOK          Status = "ok"
	StatusClientError Status = "client-error"
	StatusServerError Status = "server-error"
)

var clientErrors = []error{
	ErrorNotFound,
	ErrorAlreadyExists,
	ErrorUnauthorized,
	ErrorValidation,
	ErrInvalidCredentials,
	ErrNotVerified,
	ErrResetTokenInvalid,
	ErrInvalidToken,
	ErrTokenExpired,
}

// Classify maps err to a Status. Anything outside the known client errors,
// including ErrVersionConflict leaking from a store, is a server error.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return StatusClientError
		}
	}
	return StatusServerError
}
