// Package memory is a single-process RepositoryManager. It keeps users and
// the token ledger in maps guarded by one mutex; a transaction holds that
// mutex for its whole duration and restores a snapshot on failure.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
)

type state struct {
	users   map[string]userRow // by id
	byEmail map[string]string  // email -> id
	tokens  map[string]tokenRow
}

func (s *state) clone() state {
	return state{
		users:   maps.Clone(s.users),
		byEmail: maps.Clone(s.byEmail),
		tokens:  maps.Clone(s.tokens),
	}
}

type store struct {
	mu sync.Mutex
	state
}

// Manager implements repomanager.RepositoryManager in memory.
type Manager struct {
	s    *store
	inTx bool
}

var _ repomanager.RepositoryManager = (*Manager)(nil)

func NewManager() *Manager {
	return &Manager{s: &store{state: state{
		users:   map[string]userRow{},
		byEmail: map[string]string{},
		tokens:  map[string]tokenRow{},
	}}}
}

// lock acquires the store mutex unless the caller already runs inside a
// transaction, which holds it.
func (m *Manager) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.s.mu.Lock()
	return m.s.mu.Unlock
}

func (m *Manager) Users() users.Repository {
	return &userRepo{m: m}
}

func (m *Manager) Tokens() tokens.Repository {
	return &tokenRepo{m: m}
}

func (m *Manager) WithTx(ctx context.Context, fn func(ctx context.Context, m repomanager.RepositoryManager) error) (err error) {
	if m.inTx {
		return fn(ctx, m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snapshot := m.s.clone()
	defer func() {
		if p := recover(); p != nil {
			m.s.state = snapshot
			panic(p)
		}
		if err != nil {
			m.s.state = snapshot
		}
	}()

	return fn(ctx, &Manager{s: m.s, inTx: true})
}

func (m *Manager) RunMigrations(context.Context) error { return nil }

func (m *Manager) Close() error { return nil }
