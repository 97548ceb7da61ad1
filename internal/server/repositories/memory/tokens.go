package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

type tokenRow = models.IssuedToken

type tokenRepo struct {
	m *Manager
}

func (r *tokenRepo) Create(ctx context.Context, token *models.IssuedToken) (*models.IssuedToken, error) {
	defer r.m.lock()()

	if _, dup := r.m.s.tokens[token.Value]; dup {
		return nil, fmt.Errorf("token already recorded")
	}
	if _, ok := r.m.s.users[token.UserID]; !ok {
		return nil, fmt.Errorf("unknown user %q", token.UserID)
	}

	t := *token
	t.ID = uuid.NewString()
	t.Expired, t.Revoked = false, false
	t.CreatedAt = time.Now().UTC()

	r.m.s.tokens[t.Value] = t
	return &t, nil
}

func (r *tokenRepo) RevokeAllLiveFor(ctx context.Context, userID string) (int64, error) {
	defer r.m.lock()()

	var n int64
	for k, t := range r.m.s.tokens {
		if t.UserID == userID && t.Live() {
			r.m.s.tokens[k] = t.Revise()
			n++
		}
	}
	return n, nil
}

func (r *tokenRepo) FindByValue(ctx context.Context, token string) (*models.IssuedToken, error) {
	defer r.m.lock()()
	t, ok := r.m.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *tokenRepo) IsLive(ctx context.Context, token string) (bool, error) {
	defer r.m.lock()()
	t, ok := r.m.s.tokens[token]
	return ok && t.Live(), nil
}
