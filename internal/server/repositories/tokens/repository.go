// Package tokens declares the revocation ledger: the record of every issued
// token and whether it is still live.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository records issued tokens and revokes them per user. Rows are
// never deleted here; they only move from live to revoked.
type Repository interface {
	// Create records a freshly minted token as live and assigns ID and CreatedAt.
	Create(ctx context.Context, token *models.IssuedToken) (*models.IssuedToken, error)

	// RevokeAllLiveFor marks every live token of userID expired and revoked
	// and returns how many rows changed. Zero is not an error.
	RevokeAllLiveFor(ctx context.Context, userID string) (int64, error)

	// FindByValue returns common.ErrorNotFound for unknown tokens.
	FindByValue(ctx context.Context, token string) (*models.IssuedToken, error)

	// IsLive reports false for unknown tokens.
	IsLive(ctx context.Context, token string) (bool, error)
}
