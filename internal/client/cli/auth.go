package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var confirm = Confirm

func (a *App) getStatus() string {
	s := ""
	if sess := a.client.Session(); sess != nil {
		s = sess.User.GetEmail() + " "
	}
	s = s + string(a.mode())
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Register prompts for name, email and password, creates the account and
// starts a session for it.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	firstName, err := getSimpleText(a.reader, "Enter first name", os.Stdout)
	if err != nil {
		return err
	}
	lastName, err := getSimpleText(a.reader, "Enter last name", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.client.Register(ctx, firstName, lastName, email, string(password))
	if err != nil {
		return err
	}

	printlnFn("Registered and logged in as", u.Email)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.client.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	printlnFn("Logged in as", u.Email)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	if err := a.client.Refresh(ctx); err != nil {
		return err
	}
	printlnFn("Tokens refreshed")
	return nil
}

// Logout revokes the session on the server. The local session is dropped
// even when the server call fails.
func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}
