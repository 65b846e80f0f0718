// Package users holds the user store contract and its backends.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists user records. Lookups that match nothing return
// common.ErrorNotFound. Update is conditional on user.Version and returns
// common.ErrVersionConflict when the record changed since it was read.
// Email uniqueness violations surface as common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (*models.User, error)
	// GetUserByResetToken matches only tokens whose expiry is strictly after now.
	GetUserByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}
