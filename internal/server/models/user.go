// Package models defines server-side data models persisted by the user stores.
package models

import (
	"errors"
	"time"
)

// Role is the authorization role carried in session tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PasswordHasher turns plaintext passwords into one-way hashes and checks
// candidates against them.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) bool
}

// User is the account record shared by every store backend.
//
// Empty VerificationToken / ResetPasswordToken and a nil ResetPasswordExpire
// mean "absent". Version is bumped by the store on every successful update.
type User struct {
	ID                  string     `db:"id" bson:"_id" json:"id"`
	Name                string     `db:"name" bson:"name" json:"name"`
	Email               string     `db:"email" bson:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" bson:"password" json:"-"`
	Role                Role       `db:"role" bson:"role" json:"role"`
	IsVerified          bool       `db:"is_verified" bson:"isVerified" json:"isVerified"`
	VerificationToken   string     `db:"verification_token" bson:"verificationToken,omitempty" json:"-"`
	ResetPasswordToken  string     `db:"reset_password_token" bson:"resetPasswordToken,omitempty" json:"-"`
	ResetPasswordExpire *time.Time `db:"reset_password_expire" bson:"resetPasswordExpire,omitempty" json:"-"`
	CreatedAt           time.Time  `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
	Version             int64      `db:"version" bson:"version" json:"-"`
}

var errEmptyPassword = errors.New("password is empty")

// SetPassword hashes plain with hasher and stores the result. It is the only
// place PasswordHash is written.
func (u *User) SetPassword(hasher PasswordHasher, plain string) error {
	if plain == "" {
		return errEmptyPassword
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (u *User) CheckPassword(hasher PasswordHasher, plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return hasher.Compare(u.PasswordHash, plain)
}

// ClearResetToken drops any pending password reset.
func (u *User) ClearResetToken() {
	u.ResetPasswordToken = ""
	u.ResetPasswordExpire = nil
}

// Clone returns a deep copy, so stores can hand out records without sharing
// the expiry pointer.
func (u *User) Clone() *User {
	c := *u
	if u.ResetPasswordExpire != nil {
		t := *u.ResetPasswordExpire
		c.ResetPasswordExpire = &t
	}
	return &c
}

// PublicUser is the non-sensitive view returned by login.
type PublicUser struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Public returns the login view of u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Role: u.Role, Email: u.Email, Name: u.Name}
}
