// Package services contains server-side business logic. This file implements
// UserService: registration with email verification, login issuing session
// JWTs, profile lookup and the forgot/reset password flow.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/google/uuid"
)

// maxConflictRetries bounds read-modify-write attempts on a version conflict.
const maxConflictRetries = 3

// Notifier delivers a token to the owner of email. Implementations are
// expected to return quickly; delivery itself happens out of band.
type Notifier interface {
	Notify(ctx context.Context, email, token string) error
}

// Notifiers groups the two outbound messages of the account lifecycle.
type Notifiers struct {
	Verification Notifier
	Reset        Notifier
}

// LoginResult is a session token plus the non-sensitive view of its owner.
type LoginResult struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

// UserService implements the account lifecycle:
//   - Register: create an unverified user and send a verification link
//   - VerifyEmail: consume the verification token
//   - Login: check credentials and verification, mint a session JWT
//   - GetProfile: load the authenticated user
//   - ForgotPassword / ResetPassword: issue and consume a time-boxed reset token
type UserService struct {
	users     users.Repository
	hasher    models.PasswordHasher
	notifiers Notifiers
	logger    logging.Logger

	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	resetTokenValidityDuration  time.Duration
	revealUnknownEmail          bool

	now      func() time.Time
	newID    func() string
	newToken func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

// NewUserService constructs a UserService from its ports and server config.
func NewUserService(repo users.Repository, hasher models.PasswordHasher, n Notifiers, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		users:                       repo,
		hasher:                      hasher,
		notifiers:                   n,
		logger:                      logger,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		resetTokenValidityDuration:  cfg.ResetTokenValidityDuration,
		revealUnknownEmail:          cfg.RevealUnknownEmail,
		now:                         time.Now,
		newID:                       uuid.NewString,
		newToken:                    func() (string, error) { return common.MakeRandHexString(common.RandomTokenSize) },
	}
}

// Register creates an unverified user and dispatches a verification email.
// A notifier failure does not fail the registration.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || blank(password) {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrorValidation)
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, s.internal(ctx, "lookup user by email", err)
	}

	token, err := s.newToken()
	if err != nil {
		return nil, s.internal(ctx, "generate verification token", err)
	}

	user := &models.User{
		ID:                s.newID(),
		Name:              name,
		Email:             email,
		Role:              models.RoleUser,
		VerificationToken: token,
	}
	if err := user.SetPassword(s.hasher, password); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		return nil, s.internal(ctx, "hash password", err)
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, s.internal(ctx, "create user", err)
	}

	s.notify(ctx, s.notifiers.Verification, created.Email, token)
	s.logger.Info(ctx, "user registered", "user_id", created.ID)
	return created, nil
}

// VerifyEmail marks the owner of token as verified and consumes the token.
// Unknown, empty and already consumed tokens yield common.ErrorNotFound.
func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrorNotFound
	}

	user, err := s.users.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return s.internal(ctx, "lookup verification token", err)
	}

	user.IsVerified = true
	user.VerificationToken = ""

	if _, err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			// a concurrent request consumed the token first
			return common.ErrorNotFound
		}
		return s.internal(ctx, "update user", err)
	}

	s.logger.Info(ctx, "email verified", "user_id", user.ID)
	return nil
}

// Login checks credentials and returns a signed session token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: all fields are required", common.ErrorValidation)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Compare(s.dummy(), password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, "lookup user by email", err)
	}

	if !user.CheckPassword(s.hasher, password) {
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, common.ErrNotVerified
	}

	token, err := auth.GenerateToken(auth.UserClaims{UserID: user.ID, Email: user.Email, Role: user.Role},
		s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, s.internal(ctx, "sign session token", err)
	}

	return &LoginResult{Token: token, User: user.Public()}, nil
}

// GetProfile returns the user with the given id.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, s.internal(ctx, "lookup user by id", err)
	}
	return user, nil
}

// ForgotPassword issues a reset token valid for the configured window and
// emails it. Unless revealUnknownEmail is set, an unknown email succeeds
// silently so the response does not disclose which addresses are registered.
// A concurrent update of the same user is retried against the fresh record.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	}

	for attempt := 1; ; attempt++ {
		err := s.issueResetToken(ctx, email)
		if !errors.Is(err, common.ErrVersionConflict) {
			return err
		}
		if attempt == maxConflictRetries {
			return s.internal(ctx, "update user", err)
		}
		s.logger.Debug(ctx, "reset token issue raced, retrying", "attempt", attempt)
	}
}

// issueResetToken returns common.ErrVersionConflict unwrapped so the caller
// can retry.
func (s *UserService) issueResetToken(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if s.revealUnknownEmail {
				return common.ErrorNotFound
			}
			s.logger.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return s.internal(ctx, "lookup user by email", err)
	}

	token, err := s.newToken()
	if err != nil {
		return s.internal(ctx, "generate reset token", err)
	}
	expire := s.now().Add(s.resetTokenValidityDuration)
	user.ResetPasswordToken = token
	user.ResetPasswordExpire = &expire

	if _, err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return common.ErrVersionConflict
		}
		return s.internal(ctx, "update user", err)
	}

	s.notify(ctx, s.notifiers.Reset, user.Email, token)
	s.logger.Info(ctx, "password reset requested", "user_id", user.ID)
	return nil
}

// ResetPassword replaces the password of the owner of an unexpired reset token
// and consumes the token. Unknown, expired or concurrently consumed tokens
// yield common.ErrResetTokenInvalid.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if blank(newPassword) {
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}
	if token == "" {
		return common.ErrResetTokenInvalid
	}

	user, err := s.users.GetUserByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrResetTokenInvalid
		}
		return s.internal(ctx, "lookup reset token", err)
	}

	if err := user.SetPassword(s.hasher, newPassword); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return err
		}
		return s.internal(ctx, "hash password", err)
	}
	user.ClearResetToken()

	if _, err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return common.ErrResetTokenInvalid
		}
		return s.internal(ctx, "update user", err)
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}

// blank reports a password made only of whitespace. Passwords are stored
// untrimmed.
func blank(password string) bool {
	return strings.TrimSpace(password) == ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) notify(ctx context.Context, n Notifier, email, token string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, email, token); err != nil {
		s.logger.Warn(ctx, "notification not dispatched", "error", err)
	}
}

// internal logs the cause and returns the opaque error shown to clients.
func (s *UserService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, op+" failed", "error", err)
	return common.ErrorInternal
}

// dummy returns a hash compared against on unknown emails, so both login
// failure paths cost one hash comparison.
func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("gophauth-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}
