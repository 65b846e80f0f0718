package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reverseHasher struct{ err error }

func (h reverseHasher) Hash(p string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	r := []rune(p)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return "rev:" + string(r), nil
}

func (h reverseHasher) Compare(hash, p string) bool {
	want, _ := h.Hash(p)
	return hash == want
}

func TestSetPassword(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword(reverseHasher{}, "abc"))
	assert.Equal(t, "rev:cba", u.PasswordHash)
	assert.True(t, u.CheckPassword(reverseHasher{}, "abc"))
	assert.False(t, u.CheckPassword(reverseHasher{}, "abd"))

	require.Error(t, u.SetPassword(reverseHasher{}, ""))
	assert.Equal(t, "rev:cba", u.PasswordHash, "failed set must keep the old hash")

	boom := errors.New("boom")
	require.ErrorIs(t, u.SetPassword(reverseHasher{err: boom}, "x"), boom)
}

func TestCheckPassword_NoHash(t *testing.T) {
	assert.False(t, (&User{}).CheckPassword(reverseHasher{}, ""))
}

func TestClone_DeepCopiesExpiry(t *testing.T) {
	exp := time.Now()
	u := &User{ID: "1", ResetPasswordToken: "t", ResetPasswordExpire: &exp}

	c := u.Clone()
	c.ResetPasswordExpire = nil
	u.ClearResetToken()

	assert.Nil(t, u.ResetPasswordExpire)
	assert.Empty(t, u.ResetPasswordToken)
	assert.Equal(t, "t", c.ResetPasswordToken)

	src := &User{ResetPasswordExpire: &exp}
	c2 := src.Clone()
	*c2.ResetPasswordExpire = exp.Add(time.Hour)
	assert.Equal(t, exp, *src.ResetPasswordExpire, "source timestamp must be untouched")
}

func TestUserJSON_HidesSecrets(t *testing.T) {
	exp := time.Now()
	u := User{
		ID: "1", Name: "Alice", Email: "alice@x.com", PasswordHash: "HASH",
		VerificationToken: "VTOKEN", ResetPasswordToken: "RTOKEN", ResetPasswordExpire: &exp,
		Role: RoleUser, Version: 7,
	}
	b, err := json.Marshal(u)
	require.NoError(t, err)

	s := string(b)
	for _, secret := range []string{"HASH", "VTOKEN", "RTOKEN", "version", "resetPasswordExpire"} {
		assert.False(t, strings.Contains(s, secret), "json leaked %q: %s", secret, s)
	}
	assert.Contains(t, s, `"email":"alice@x.com"`)

	assert.Equal(t, PublicUser{ID: "1", Role: RoleUser, Email: "alice@x.com", Name: "Alice"}, u.Public())
}
