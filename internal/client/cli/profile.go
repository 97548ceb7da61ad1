package cli

import (
	"context"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

func printUser(u *pb.User) {
	printlnFn("ID:        ", u.GetId())
	printlnFn("Email:     ", u.GetEmail())
	printlnFn("First name:", u.GetFirstName())
	printlnFn("Last name: ", u.GetLastName())
}

func (a *App) Me(ctx context.Context) error {
	u, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	printUser(u)
	return nil
}

func (a *App) Profile(ctx context.Context) error {
	firstName, err := getSimpleText(a.reader, "Enter first name", os.Stdout)
	if err != nil {
		return err
	}
	lastName, err := getSimpleText(a.reader, "Enter last name", os.Stdout)
	if err != nil {
		return err
	}

	u, err := a.client.UpdateProfile(ctx, firstName, lastName)
	if err != nil {
		return err
	}
	printUser(u)
	return nil
}

// ChangePassword ends every session of the user, including this one.
func (a *App) ChangePassword(ctx context.Context) error {
	current, err := getPassword(os.Stdout, "Enter current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := getPassword(os.Stdout, "Enter new password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	if err := a.client.ChangePassword(ctx, string(current), string(next)); err != nil {
		return err
	}
	printlnFn("Password changed, please login again")
	return nil
}

func (a *App) DeleteAccount(ctx context.Context) error {
	ok, err := confirm(a.reader, "Delete the account permanently?", os.Stdout)
	if err != nil {
		return err
	}
	if !ok {
		printlnFn("Cancelled")
		return nil
	}

	if err := a.client.DeleteAccount(ctx); err != nil {
		return err
	}
	printlnFn("Account deleted")
	return nil
}
