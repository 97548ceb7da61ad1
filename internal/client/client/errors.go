package client

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrAlreadyExists = errors.New("account already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrNotLoggedIn   = errors.New("not logged in")

	// ErrPermissionDenied means the session is fine but the server refused
	// the request, e.g. a wrong current password.
	ErrPermissionDenied = errors.New("permission denied")
)
