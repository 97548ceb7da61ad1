package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
)

// RepositoryManager vends the credential store and revocation ledger and
// scopes them to a transaction when needed.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Tokens() tokens.Repository

	// WithTx runs fn with a manager whose repositories share one
	// transaction. An error from fn rolls everything back. Calling WithTx
	// on a manager that is already transactional joins the outer one.
	WithTx(ctx context.Context, fn func(ctx context.Context, m RepositoryManager) error) error

	Close() error
}
