package models

import (
	"strings"
	"time"
)

// User is the identity record owned by the credential store. Every field is
// excluded from JSON; use Public() for anything sent outward.
type User struct {
	ID           string    `json:"-"`
	Email        string    `json:"-"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"-"`
	LastName     string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// PublicUser is the outward projection of a User.
type PublicUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
