package port

import (
	"context"

	"github.com/arklim/authflow/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Create returns repository.ErrUniqueViolation when email or username is taken.
	Create(ctx context.Context, user domain.NewUser) (*domain.User, error)
	UpdatePassword(ctx context.Context, email string, passwordHash string) error
}
