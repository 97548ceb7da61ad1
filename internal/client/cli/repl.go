package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Refresh(ctx context.Context) error
	Me(ctx context.Context) error
	Profile(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Logout(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a
// until EOF, "exit" or "quit".
//
//	Not logged in:
//	  - help           show available commands
//	  - register       create an account
//	  - login          authenticate
//	  - exit | quit    leave the program
//
//	Logged in:
//	  - help           show available commands
//	  - me             show the current profile
//	  - profile        change first and last name
//	  - passwd         change the password (ends the session)
//	  - refresh        rotate the token pair
//	  - logout         log out
//	  - delete         delete the account
//	  - exit | quit    leave the program
//
// Command errors are reported and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("ga %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, profile, passwd, refresh, logout, delete, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "me":
			cmdErr = a.Me(ctx)

		case "profile":
			cmdErr = a.Profile(ctx)

		case "passwd":
			cmdErr = a.ChangePassword(ctx)

		case "refresh":
			cmdErr = a.Refresh(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "delete":
			cmdErr = a.DeleteAccount(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			reportError(cmdErr, a.isLoggedIn())
		}
	}
}

func reportError(err error, loggedIn bool) {
	switch {
	case errors.Is(err, client.ErrNotLoggedIn):
		printlnFn("You are not logged in, use 'login' or 'register'")
	case errors.Is(err, client.ErrUnauthorized) && !loggedIn:
		printlnFn("Session expired or credentials rejected, please login again")
	case errors.Is(err, client.ErrPermissionDenied):
		printlnFn("Request refused:", err)
	case errors.Is(err, client.ErrUnavailable):
		printlnFn("Server unavailable, try again later")
	default:
		printlnFn("Error:", err)
	}
}
