package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/google/uuid"
)

// userRow is stored by value so callers never alias store memory.
type userRow = models.User

type userRepo struct {
	m *Manager
}

func (r *userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	defer r.m.lock()()
	_, ok := r.m.s.byEmail[models.NormalizeEmail(email)]
	return ok, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.m.lock()()
	id, ok := r.m.s.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u := r.m.s.users[id]
	return &u, nil
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer r.m.lock()()
	u, ok := r.m.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.m.lock()()

	u := *user
	u.Email = models.NormalizeEmail(u.Email)
	if _, taken := r.m.s.byEmail[u.Email]; taken {
		return nil, common.ErrDuplicateIdentity
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	r.m.s.users[u.ID] = u
	r.m.s.byEmail[u.Email] = u.ID
	return &u, nil
}

func (r *userRepo) Update(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.m.lock()()

	cur, ok := r.m.s.users[user.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cur.FirstName = user.FirstName
	cur.LastName = user.LastName
	cur.PasswordHash = user.PasswordHash
	cur.UpdatedAt = time.Now().UTC()

	r.m.s.users[cur.ID] = cur
	return &cur, nil
}

// Delete drops the user. Its ledger rows are kept with the owner cleared,
// like ON DELETE SET NULL in Postgres.
func (r *userRepo) Delete(ctx context.Context, id string) error {
	defer r.m.lock()()

	u, ok := r.m.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.m.s.users, id)
	delete(r.m.s.byEmail, u.Email)
	for k, t := range r.m.s.tokens {
		if t.UserID == id {
			t.UserID = ""
			r.m.s.tokens[k] = t
		}
	}
	return nil
}

// LockByID only checks existence; the transaction already owns the store.
func (r *userRepo) LockByID(ctx context.Context, id string) error {
	defer r.m.lock()()
	if _, ok := r.m.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	return nil
}
