// Package services contains server-side business logic. This file implements
// UserService, the authentication flow: registration, login, refresh-token
// rotation, logout and bearer authentication.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// AuthResult is what a successful register, login or refresh hands back.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	User      models.PublicUser
}

// Identity is the caller resolved from a bearer access token.
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&in.Password, passwordRules...),
	)
}

// bcrypt ignores input past 72 bytes.
var passwordRules = []validation.Rule{validation.Required, validation.Length(6, 72)}

// UserService runs the authentication flow over a RepositoryManager. It is
// stateless; every shared fact lives in the store.
type UserService struct {
	repos      repomanager.RepositoryManager
	hasher     auth.PasswordHasher
	codec      *auth.TokenCodec
	logger     logging.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(m repomanager.RepositoryManager, hasher auth.PasswordHasher, codec *auth.TokenCodec,
	cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		repos:      m,
		hasher:     hasher,
		codec:      codec,
		logger:     logger.With("module", "user_service"),
		accessTTL:  cfg.AccessTokenValidityDuration,
		refreshTTL: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates the identity and opens its first session.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = models.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	exists, err := s.repos.Users().ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}
	if exists {
		return nil, common.ErrIdentityConflict
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}

	var res *AuthResult
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		u, err := tx.Users().Create(ctx, &models.User{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        in.Email,
			PasswordHash: hash,
		})
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return common.ErrIdentityConflict
		}
		if err != nil {
			return err
		}
		res, err = s.issue(ctx, tx, u)
		return err
	})
	if errors.Is(err, common.ErrIdentityConflict) {
		return nil, err
	}
	if err != nil {
		return nil, s.internal(ctx, "register", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", res.User.ID)
	return res, nil
}

// Login checks credentials and replaces every live session of the user with
// a new one. Unknown email and wrong password fail identically.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)

	u, err := s.repos.Users().FindByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.hasher.VerifyDummy(password)
		s.logger.Warn(ctx, "login failed", "email", email)
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.logger.Warn(ctx, "login failed", "email", email)
		return nil, common.ErrInvalidCredentials
	}

	var res *AuthResult
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		cur, err := s.lockUser(ctx, tx, u.ID)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		// password changed between the check and the lock
		if cur.PasswordHash != u.PasswordHash {
			return common.ErrInvalidCredentials
		}
		if _, err := tx.Tokens().RevokeAllLiveFor(ctx, cur.ID); err != nil {
			return err
		}
		res, err = s.issue(ctx, tx, cur)
		return err
	})
	if errors.Is(err, common.ErrInvalidCredentials) {
		return nil, err
	}
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", res.User.ID)
	return res, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented
// token is revoked with the rest, so each refresh token works once.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.codec.VerifyKind(refreshToken, models.TokenKindRefresh)
	if err != nil {
		s.logger.Debug(ctx, "refresh rejected", "error", err)
		return nil, err
	}

	var res *AuthResult
	err = s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		u, err := s.lockUser(ctx, tx, claims.Subject)
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrIdentityNotFound)
		}
		if err != nil {
			return err
		}

		live, err := tx.Tokens().IsLive(ctx, refreshToken)
		if err != nil {
			return err
		}
		if !live {
			return fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenRevoked)
		}

		if _, err := tx.Tokens().RevokeAllLiveFor(ctx, u.ID); err != nil {
			return err
		}
		res, err = s.issue(ctx, tx, u)
		return err
	})
	if errors.Is(err, common.ErrInvalidToken) {
		s.logger.Warn(ctx, "refresh rejected", "user_id", claims.Subject, "error", err)
		return nil, err
	}
	if err != nil {
		return nil, s.internal(ctx, "refresh", err)
	}

	return res, nil
}

// Logout revokes every live token of the user. Logging out twice is fine.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	n, err := s.repos.Tokens().RevokeAllLiveFor(ctx, userID)
	if err != nil {
		return s.internal(ctx, "logout", err)
	}
	s.logger.Info(ctx, "user logged out", "user_id", userID, "revoked", n)
	return nil
}

// Authenticate resolves an access token to an Identity. The fast path only
// checks the signature, expiry and kind. With strict set the token must
// also still be live in the ledger, so logout takes effect immediately.
func (s *UserService) Authenticate(ctx context.Context, accessToken string, strict bool) (*Identity, error) {
	claims, err := s.codec.VerifyKind(accessToken, models.TokenKindAccess)
	if err != nil {
		return nil, err
	}

	if strict {
		live, err := s.repos.Tokens().IsLive(ctx, accessToken)
		if err != nil {
			return nil, s.internal(ctx, "authenticate", err)
		}
		if !live {
			s.logRejected(ctx, accessToken, claims.Subject)
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrTokenRevoked)
		}
	}

	return &Identity{
		UserID:    claims.Subject,
		Email:     claims.Extra["email"],
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// --- helpers below ---

// logRejected records what the ledger knows about a token that failed the
// strict check. A signed token with no ledger row was never issued here.
func (s *UserService) logRejected(ctx context.Context, token, subject string) {
	t, err := s.repos.Tokens().FindByValue(ctx, token)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s.logger.Warn(ctx, "unrecorded token rejected", "user_id", subject)
	case err != nil:
		s.logger.Error(ctx, "ledger lookup failed", "user_id", subject, "error", err)
	default:
		s.logger.Info(ctx, "revoked token rejected", "user_id", subject,
			"token_id", t.ID, "kind", string(t.Kind), "issued_at", t.CreatedAt)
	}
}

func (s *UserService) lockUser(ctx context.Context, tx repomanager.RepositoryManager, id string) (*models.User, error) {
	if err := tx.Users().LockByID(ctx, id); err != nil {
		return nil, err
	}
	return tx.Users().FindByID(ctx, id)
}

// issue mints an access/refresh pair for u and records both in the ledger.
func (s *UserService) issue(ctx context.Context, tx repomanager.RepositoryManager, u *models.User) (*AuthResult, error) {
	extra := map[string]string{"email": u.Email}

	access, _, err := s.codec.Mint(u.ID, models.TokenKindAccess, s.accessTTL, extra)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.codec.Mint(u.ID, models.TokenKindRefresh, s.refreshTTL, extra)
	if err != nil {
		return nil, err
	}

	for _, t := range []models.IssuedToken{
		{Value: access, Kind: models.TokenKindAccess, UserID: u.ID},
		{Value: refresh, Kind: models.TokenKindRefresh, UserID: u.ID},
	} {
		if _, err := tx.Tokens().Create(ctx, &t); err != nil {
			return nil, err
		}
	}

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    common.BearerScheme,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		User:         u.Public(),
	}, nil
}

// internal logs the underlying failure and hides it behind ErrorInternal.
func (s *UserService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}
