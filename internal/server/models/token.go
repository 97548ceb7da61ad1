package models

import "time"

// TokenKind tells access and refresh tokens apart, both in the ledger and
// inside the signed claims.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "ACCESS"
	TokenKindRefresh TokenKind = "REFRESH"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// IssuedToken is a ledger row. Expired and Revoked are explicit flags,
// independent of the exp claim inside Value.
type IssuedToken struct {
	ID        string
	Value     string
	Kind      TokenKind
	Expired   bool
	Revoked   bool
	UserID    string // empty once the owner is deleted
	CreatedAt time.Time
}

// Live reports whether the row has been neither expired nor revoked.
func (t IssuedToken) Live() bool {
	return !t.Expired && !t.Revoked
}

// Revise returns the revoked successor of t. The receiver is left as is.
func (t IssuedToken) Revise() IssuedToken {
	t.Expired = true
	t.Revoked = true
	return t
}
