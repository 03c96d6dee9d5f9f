package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/repository"
)

// accountVerifier loads a user and rejects accounts that may not log in.
type accountVerifier struct {
	users port.UserRepository
}

func (a accountVerifier) byEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if err := checkAccountState(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a accountVerifier) byID(ctx context.Context, id string) (*domain.User, error) {
	user, err := a.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by id: %w", err)
	}
	if err := checkAccountState(user); err != nil {
		return nil, err
	}
	return user, nil
}

func checkAccountState(user *domain.User) error {
	if !user.IsActive {
		return ErrAccountInactive
	}
	if user.Security.IsBanned {
		return ErrAccountBanned
	}
	return nil
}

// isAccountRejection reports whether err came from the lookup or the state
// check rather than from infrastructure.
func isAccountRejection(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAccountInactive) || errors.Is(err, ErrAccountBanned)
}
