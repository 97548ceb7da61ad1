package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.IssuedToken) (*models.IssuedToken, error) {
	query := `
		INSERT INTO tokens (id, token, token_type, expired, revoked, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	t := *token
	t.ID = uuid.NewString()
	t.Expired, t.Revoked = false, false
	t.CreatedAt = time.Now().UTC()

	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.Value, string(t.Kind), t.Expired, t.Revoked, t.UserID, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) RevokeAllLiveFor(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE tokens SET expired = TRUE, revoked = TRUE
		WHERE user_id = $1 AND (NOT expired OR NOT revoked)
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) FindByValue(ctx context.Context, token string) (*models.IssuedToken, error) {
	query := `
		SELECT id, token, token_type, expired, revoked, user_id, created_at
		FROM tokens
		WHERE token = $1
	`
	t := &models.IssuedToken{}
	var kind string
	var userID sql.NullString
	if err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.ID, &t.Value, &kind, &t.Expired, &t.Revoked, &userID, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Kind = models.TokenKind(kind)
	// empty once the owner has been deleted
	t.UserID = userID.String
	return t, nil
}

func (r *PostgresRepository) IsLive(ctx context.Context, token string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tokens
			WHERE token = $1 AND NOT expired AND NOT revoked
		)
	`
	var live bool
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&live); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return live, nil
}
