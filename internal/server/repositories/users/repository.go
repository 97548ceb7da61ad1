// Package users declares the credential store contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository stores user identities keyed by a unique, normalized email.
// Absent rows are reported as common.ErrorNotFound; a taken email on
// Create as common.ErrDuplicateIdentity.
type Repository interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// Create assigns ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// Update persists names and password hash and refreshes UpdatedAt.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error

	// LockByID blocks concurrent writers for this user until the current
	// transaction ends.
	LockByID(ctx context.Context, id string) error
}
