package httpapi

import (
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Messages shown to clients.
const (
	msgAuthRequired       = "Authentication failed"
	msgInvalidSession     = "login credentials invalid"
	msgInvalidCredentials = "invalid email or password"
	msgNotVerified        = "user does not verified"
	msgUserExists         = "user already exists"
	msgUserNotFound       = "user not found"
	msgInvalidToken       = "Invalid token"
	msgResetTokenInvalid  = "reset token is invalid or has expired"
	msgInvalidBody        = "invalid request body"
	msgInternal           = "Something went wrong"
)

func ok(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Success: true, Message: message, Data: data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(Response{Success: false, Message: message})
}

// errorStatus maps a service error to an HTTP status and a client-safe message.
// Internal detail never reaches the message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorAlreadyExists):
		return fiber.StatusConflict, msgUserExists
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound, msgUserNotFound
	case errors.Is(err, common.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, msgInvalidCredentials
	case errors.Is(err, common.ErrNotVerified):
		return fiber.StatusForbidden, msgNotVerified
	case errors.Is(err, common.ErrResetTokenInvalid):
		return fiber.StatusBadRequest, msgResetTokenInvalid
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return fiber.StatusUnauthorized, msgInvalidSession
	case errors.Is(err, common.ErrorUnauthorized):
		return fiber.StatusUnauthorized, msgAuthRequired
	default:
		return fiber.StatusInternalServerError, msgInternal
	}
}

// errorHandler renders anything a handler returns, including fiber's own
// errors for unknown routes and methods, as a Response.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fail(c, fe.Code, fe.Message)
	}
	status, msg := errorStatus(err)
	return fail(c, status, msg)
}
