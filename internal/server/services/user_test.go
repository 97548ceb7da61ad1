package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newUserService(t *testing.T, rm repomanager.RepositoryManager) *UserService {
	t.Helper()
	cfg := &config.Config{
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 24 * time.Hour,
	}
	codec := auth.NewTokenCodec([]byte(testSecret), "gophauth")
	return NewUserService(rm, auth.NewBcryptHasher(bcrypt.MinCost), codec, cfg, logging.Discard())
}

func aliceInput() RegisterInput {
	return RegisterInput{FirstName: "Alice", LastName: "Liddell", Email: "alice@example.com", Password: "wonderland"}
}

func register(t *testing.T, s *UserService) *AuthResult {
	t.Helper()
	res, err := s.Register(context.Background(), aliceInput())
	require.NoError(t, err)
	return res
}

func TestRegister_Success(t *testing.T) {
	ctx := context.Background()
	m := memory.NewManager()
	s := newUserService(t, m)

	in := aliceInput()
	in.Email = "  Alice@Example.COM "
	res, err := s.Register(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "Bearer", res.TokenType)
	assert.EqualValues(t, 900, res.ExpiresIn)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEmpty(t, res.User.ID)
	assert.NotEqual(t, res.AccessToken, res.RefreshToken)

	for _, tok := range []string{res.AccessToken, res.RefreshToken} {
		live, err := m.Tokens().IsLive(ctx, tok)
		require.NoError(t, err)
		assert.True(t, live)
	}

	u, err := m.Users().FindByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "wonderland", u.PasswordHash)

	id, err := s.Authenticate(ctx, res.AccessToken, true)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id.UserID)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestRegister_Conflict(t *testing.T) {
	s := newUserService(t, memory.NewManager())
	register(t, s)

	in := aliceInput()
	in.Email = "ALICE@example.com"
	_, err := s.Register(context.Background(), in)
	assert.ErrorIs(t, err, common.ErrIdentityConflict)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	s := newUserService(t, memory.NewManager())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Register(context.Background(), aliceInput())
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrIdentityConflict)
	}
	assert.Equal(t, 1, ok)
}

func TestRegister_Validation(t *testing.T) {
	s := newUserService(t, memory.NewManager())

	cases := map[string]func(in *RegisterInput){
		"bad email":      func(in *RegisterInput) { in.Email = "not-an-email" },
		"short password": func(in *RegisterInput) { in.Password = "12345" },
		"long password":  func(in *RegisterInput) { in.Password = string(make([]byte, 73)) },
		"no first name":  func(in *RegisterInput) { in.FirstName = "  " },
		"no last name":   func(in *RegisterInput) { in.LastName = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := aliceInput()
			mutate(&in)
			_, err := s.Register(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrorValidation)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	s := newUserService(t, memory.NewManager())
	reg := register(t, s)

	res, err := s.Login(context.Background(), " ALICE@example.com", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, reg.User, res.User)
	assert.NotEqual(t, reg.AccessToken, res.AccessToken)
}

func TestLogin_FailureParity(t *testing.T) {
	s := newUserService(t, memory.NewManager())
	register(t, s)

	_, errUnknown := s.Login(context.Background(), "nobody@example.com", "wonderland")
	_, errWrong := s.Login(context.Background(), "alice@example.com", "wrong-password")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
}

func TestLogin_SingleLiveSession(t *testing.T) {
	ctx := context.Background()
	m := memory.NewManager()
	s := newUserService(t, m)
	reg := register(t, s)

	first, err := s.Login(ctx, "alice@example.com", "wonderland")
	require.NoError(t, err)
	second, err := s.Login(ctx, "alice@example.com", "wonderland")
	require.NoError(t, err)

	for _, tok := range []string{reg.AccessToken, reg.RefreshToken, first.AccessToken, first.RefreshToken} {
		live, err := m.Tokens().IsLive(ctx, tok)
		require.NoError(t, err)
		assert.False(t, live)
	}
	for _, tok := range []string{second.AccessToken, second.RefreshToken} {
		live, _ := m.Tokens().IsLive(ctx, tok)
		assert.True(t, live)
	}

	_, err = s.Authenticate(ctx, first.AccessToken, true)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	// the fast path only checks the signature
	_, err = s.Authenticate(ctx, first.AccessToken, false)
	assert.NoError(t, err)
}

func TestLogin_ConcurrentLeavesOneSession(t *testing.T) {
	ctx := context.Background()
	m := memory.NewManager()
	s := newUserService(t, m)
	register(t, s)

	const n = 6
	results := make([]*AuthResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Login(ctx, "alice@example.com", "wonderland")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	live := 0
	for _, r := range results {
		require.NotNil(t, r)
		if ok, _ := m.Tokens().IsLive(ctx, r.RefreshToken); ok {
			live++
		}
	}
	assert.Equal(t, 1, live)
}

func TestRefresh_Chain(t *testing.T) {
	ctx := context.Background()
	m := memory.NewManager()
	s := newUserService(t, m)
	reg := register(t, s)

	cur := reg
	for i := 0; i < 3; i++ {
		next, err := s.Refresh(ctx, cur.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, next.User.ID)

		live, _ := m.Tokens().IsLive(ctx, cur.AccessToken)
		assert.False(t, live)
		live, _ = m.Tokens().IsLive(ctx, next.AccessToken)
		assert.True(t, live)
		cur = next
	}
}

func TestRefresh_ReplayRejected(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t, memory.NewManager())
	reg := register(t, s)

	_, err := s.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)

	_, err = s.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestRefresh_WrongKindAndGarbage(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t, memory.NewManager())
	reg := register(t, s)

	_, err := s.Refresh(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.ErrorIs(t, err, common.ErrTokenKindMismatch)

	_, err = s.Authenticate(ctx, reg.RefreshToken, false)
	assert.ErrorIs(t, err, common.ErrTokenKindMismatch)

	_, err = s.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t, memory.NewManager())
	reg := register(t, s)

	require.NoError(t, s.DeleteAccount(ctx, reg.User.ID))

	_, err := s.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
	assert.ErrorIs(t, err, common.ErrIdentityNotFound)
}

func TestRefresh_Expired(t *testing.T) {
	m := memory.NewManager()
	cfg := &config.Config{AccessTokenValidityDuration: time.Minute, RefreshTokenValidityDuration: 0}
	s := NewUserService(m, auth.NewBcryptHasher(bcrypt.MinCost), auth.NewTokenCodec([]byte(testSecret), "gophauth"), cfg, logging.Discard())

	reg := register(t, s)
	_, err := s.Refresh(context.Background(), reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	m := memory.NewManager()
	s := newUserService(t, m)
	reg := register(t, s)

	require.NoError(t, s.Logout(ctx, reg.User.ID))
	require.NoError(t, s.Logout(ctx, reg.User.ID), "second logout is a no-op")

	_, err := s.Authenticate(ctx, reg.AccessToken, true)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	_, err = s.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = s.Login(ctx, "alice@example.com", "wonderland")
	assert.NoError(t, err)
}

func TestAuthenticate_StrictRejectionLogsLedgerRow(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	m := memory.NewManager()
	cfg := &config.Config{AccessTokenValidityDuration: time.Minute, RefreshTokenValidityDuration: time.Hour}
	s := NewUserService(m, auth.NewBcryptHasher(bcrypt.MinCost), auth.NewTokenCodec([]byte(testSecret), "gophauth"),
		cfg, logging.NewJSONLogger(&buf, "debug"))

	reg := register(t, s)
	require.NoError(t, s.Logout(ctx, reg.User.ID))

	_, err := s.Authenticate(ctx, reg.AccessToken, true)
	require.ErrorIs(t, err, common.ErrTokenRevoked)
	assert.Contains(t, buf.String(), `"msg":"revoked token rejected"`)
	assert.Contains(t, buf.String(), `"kind":"ACCESS"`)

	// signed with the right key but never recorded in the ledger
	stray, _, err := s.codec.Mint(reg.User.ID, models.TokenKindAccess, time.Minute, nil)
	require.NoError(t, err)
	buf.Reset()
	_, err = s.Authenticate(ctx, stray, true)
	require.ErrorIs(t, err, common.ErrTokenRevoked)
	assert.Contains(t, buf.String(), `"msg":"unrecorded token rejected"`)
}

// failingManager serves a store whose every call fails.
type failingManager struct {
	repomanager.RepositoryManager
	err error
}

type failingUsers struct {
	users.Repository
	err error
}

type failingTokens struct {
	tokens.Repository
	err error
}

func (f failingManager) Users() users.Repository   { return failingUsers{err: f.err} }
func (f failingManager) Tokens() tokens.Repository { return failingTokens{err: f.err} }
func (f failingManager) WithTx(ctx context.Context, fn func(context.Context, repomanager.RepositoryManager) error) error {
	return fn(ctx, f)
}

func (f failingUsers) ExistsByEmail(context.Context, string) (bool, error) { return false, f.err }
func (f failingUsers) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, f.err
}
func (f failingUsers) FindByID(context.Context, string) (*models.User, error) { return nil, f.err }
func (f failingUsers) Delete(context.Context, string) error                   { return f.err }
func (f failingUsers) LockByID(context.Context, string) error                 { return f.err }
func (f failingTokens) IsLive(context.Context, string) (bool, error)          { return false, f.err }
func (f failingTokens) RevokeAllLiveFor(context.Context, string) (int64, error) {
	return 0, f.err
}

func TestStorageFailuresAreInternal(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection refused")
	s := newUserService(t, failingManager{err: dbErr})

	tok, _, err := s.codec.Mint("u1", models.TokenKindAccess, time.Hour, nil)
	require.NoError(t, err)

	_, err = s.Register(ctx, aliceInput())
	assert.ErrorIs(t, err, common.ErrorInternal)
	_, err = s.Login(ctx, "alice@example.com", "wonderland")
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)
	assert.ErrorIs(t, s.Logout(ctx, "u1"), common.ErrorInternal)
	_, err = s.Authenticate(ctx, tok, true)
	assert.ErrorIs(t, err, common.ErrorInternal)
	_, err = s.Me(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.ErrorIs(t, s.DeleteAccount(ctx, "u1"), common.ErrorInternal)
}
