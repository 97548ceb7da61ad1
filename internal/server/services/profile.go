package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	validation "github.com/go-ozzo/ozzo-validation"
)

type profileInput struct {
	FirstName string
	LastName  string
}

func (in profileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
	)
}

// errCallerGone reports the caller's own record missing: the token outlived
// the account, so it is an invalid token rather than NotFound.
var errCallerGone = fmt.Errorf("%w: %w", common.ErrInvalidToken, common.ErrIdentityNotFound)

// Me returns the public view of the caller.
func (s *UserService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	u, err := s.repos.Users().FindByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errCallerGone
	}
	if err != nil {
		return nil, s.internal(ctx, "me", err)
	}
	p := u.Public()
	return &p, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID, firstName, lastName string) (*models.PublicUser, error) {
	in := profileInput{FirstName: strings.TrimSpace(firstName), LastName: strings.TrimSpace(lastName)}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	var out *models.User
	err := s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		u, err := s.lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		u.FirstName, u.LastName = in.FirstName, in.LastName
		out, err = tx.Users().Update(ctx, u)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errCallerGone
	}
	if err != nil {
		return nil, s.internal(ctx, "update profile", err)
	}

	p := out.Public()
	return &p, nil
}

// ChangePassword replaces the password hash and revokes every live token,
// so all sessions, the current one included, must log in again.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validation.Validate(next, passwordRules...); err != nil {
		return fmt.Errorf("%w: new password: %w", common.ErrorValidation, err)
	}

	u, err := s.repos.Users().FindByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return errCallerGone
	}
	if err != nil {
		return s.internal(ctx, "change password", err)
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		s.logger.Warn(ctx, "password change rejected", "user_id", userID)
		return common.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return s.internal(ctx, "change password", err)
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		cur, err := s.lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cur.PasswordHash != u.PasswordHash {
			return common.ErrInvalidCredentials
		}
		cur.PasswordHash = hash
		if _, err := tx.Users().Update(ctx, cur); err != nil {
			return err
		}
		_, err = tx.Tokens().RevokeAllLiveFor(ctx, userID)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return errCallerGone
	}
	if errors.Is(err, common.ErrInvalidCredentials) {
		return err
	}
	if err != nil {
		return s.internal(ctx, "change password", err)
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// DeleteAccount revokes every live token and removes the user. The ledger
// rows stay behind as an audit trail, detached from the deleted identity.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	err := s.repos.WithTx(ctx, func(ctx context.Context, tx repomanager.RepositoryManager) error {
		if err := tx.Users().LockByID(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.Tokens().RevokeAllLiveFor(ctx, userID); err != nil {
			return err
		}
		return tx.Users().Delete(ctx, userID)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return errCallerGone
	}
	if err != nil {
		return s.internal(ctx, "delete account", err)
	}
	s.logger.Info(ctx, "account deleted", "user_id", userID)
	return nil
}
