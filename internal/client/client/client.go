package client

import (
	"context"
	"time"
)

// User is the account as the server reports it.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Session is the result of a successful login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Client interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, name, email string, password []byte) error
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email string, password []byte) (*Session, error)
	Profile(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token string, password []byte) error
}
