package cli

import (
	"bufio"
	"context"
	"io"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/client/client"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
)

type fakeClient struct {
	session *client.Session
	user    *pb.User

	pingErr    error
	regErr     error
	loginErr   error
	refreshErr error
	meErr      error
	updateErr  error
	passwdErr  error
	logoutErr  error
	deleteErr  error

	calls []string
	args  []string
}

func (f *fakeClient) record(name string, args ...string) {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args...)
}

func (f *fakeClient) Ping(context.Context) error {
	f.record("ping")
	return f.pingErr
}

func (f *fakeClient) Register(_ context.Context, firstName, lastName, email, password string) (*pb.User, error) {
	f.record("register", firstName, lastName, email, password)
	if f.regErr != nil {
		return nil, f.regErr
	}
	f.user = &pb.User{Id: "u1", Email: email, FirstName: firstName, LastName: lastName}
	f.session = &client.Session{AccessToken: "a", RefreshToken: "r", User: f.user}
	return f.user, nil
}

func (f *fakeClient) Login(_ context.Context, email, password string) (*pb.User, error) {
	f.record("login", email, password)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.user = &pb.User{Id: "u1", Email: email}
	f.session = &client.Session{AccessToken: "a", RefreshToken: "r", User: f.user}
	return f.user, nil
}

func (f *fakeClient) Refresh(context.Context) error {
	f.record("refresh")
	if f.refreshErr != nil {
		f.session = nil
	}
	return f.refreshErr
}

func (f *fakeClient) Me(context.Context) (*pb.User, error) {
	f.record("me")
	if f.meErr != nil {
		return nil, f.meErr
	}
	return f.user, nil
}

func (f *fakeClient) UpdateProfile(_ context.Context, firstName, lastName string) (*pb.User, error) {
	f.record("profile", firstName, lastName)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.user == nil {
		f.user = &pb.User{Id: "u1"}
	}
	f.user.FirstName, f.user.LastName = firstName, lastName
	return f.user, nil
}

func (f *fakeClient) ChangePassword(_ context.Context, current, next string) error {
	f.record("passwd", current, next)
	if f.passwdErr != nil {
		return f.passwdErr
	}
	f.session = nil
	return nil
}

func (f *fakeClient) Logout(context.Context) error {
	f.record("logout")
	f.session = nil
	return f.logoutErr
}

func (f *fakeClient) DeleteAccount(context.Context) error {
	f.record("delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.session = nil
	return nil
}

func (f *fakeClient) Session() *client.Session { return f.session }
func (f *fakeClient) LoggedIn() bool           { return f.session != nil }
func (f *fakeClient) Close() error             { return nil }

// stubInputs feeds texts to successive getSimpleText calls and passwords to
// successive getPassword calls.
func stubInputs(t *testing.T, texts []string, passwords ...string) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) {
		if len(texts) == 0 {
			return "", io.EOF
		}
		s := texts[0]
		texts = texts[1:]
		return s, nil
	}
	getPassword = func(_ io.Writer, _ string) ([]byte, error) {
		if len(passwords) == 0 {
			return nil, io.EOF
		}
		p := passwords[0]
		passwords = passwords[1:]
		return []byte(p), nil
	}
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

// captureOutput collects printlnFn output for the duration of the test.
func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		for _, v := range a {
			if s, ok := v.(string); ok {
				lines = append(lines, s)
			}
		}
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}
