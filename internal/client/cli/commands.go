package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

var errPasswordMismatch = errors.New("passwords do not match")

func (a *App) prompt(text string) (string, error) {
	return GetSimpleText(a.reader, text, a.out)
}

// newPassword reads a password twice. The caller wipes the result.
func (a *App) newPassword() ([]byte, error) {
	pw, err := GetPassword(a.out)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(a.out, "Repeat ")
	again, err := GetPassword(a.out)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

func (a *App) Register(ctx context.Context) error {
	name, err := a.prompt("-Enter name")
	if err != nil {
		a.report(err)
		return err
	}
	email, err := a.prompt("-Enter email")
	if err != nil {
		a.report(err)
		return err
	}
	password, err := a.newPassword()
	if err != nil {
		a.report(err)
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.client.Register(ctx, name, email, password); err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "User created successfully. Check your inbox for the verification link.")
	return nil
}

func (a *App) Verify(ctx context.Context) error {
	token, err := a.prompt("-Enter verification token")
	if err != nil {
		a.report(err)
		return err
	}

	if err := a.client.VerifyEmail(ctx, token); err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "Verification successful")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("-Enter email")
	if err != nil {
		a.report(err)
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		a.report(err)
		return err
	}
	defer common.WipeByteArray(password)

	session, err := a.client.Login(ctx, email, password)
	if err != nil {
		a.report(err)
		return err
	}

	a.setUser(session.User.Email)
	fmt.Fprintf(a.out, "Logged in as %s\n", session.User.Name)
	return nil
}

func (a *App) Profile(ctx context.Context) error {
	u, err := a.client.Profile(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			a.setUser("")
		}
		a.report(err)
		return err
	}

	fmt.Fprintf(a.out, "ID:       %s\nName:     %s\nEmail:    %s\nRole:     %s\nVerified: %t\n",
		u.ID, u.Name, u.Email, u.Role, u.IsVerified)
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "Created:  %s\n", u.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.client.Logout(ctx)
	a.setUser("")
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "Loggedout successfully")
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := a.prompt("-Enter email")
	if err != nil {
		a.report(err)
		return err
	}

	msg, err := a.client.ForgotPassword(ctx, email)
	if err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	token, err := a.prompt("-Enter reset token")
	if err != nil {
		a.report(err)
		return err
	}
	password, err := a.newPassword()
	if err != nil {
		a.report(err)
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.client.ResetPassword(ctx, token, password); err != nil {
		a.report(err)
		return err
	}

	fmt.Fprintln(a.out, "Password reset successful, you can log in now")
	return nil
}
