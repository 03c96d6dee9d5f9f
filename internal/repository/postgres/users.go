package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	uuid "github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/authflow/internal/core/domain"
	"github.com/arklim/authflow/internal/core/port"
	"github.com/arklim/authflow/internal/repository"
)

var userColumns = []string{
	"u.id",
	"u.email",
	"u.username",
	"u.name",
	"u.password_hash",
	"u.role",
	"u.is_active",
	"u.created_at",
	"u.updated_at",
	"COALESCE(p.bio, '')",
	"COALESCE(p.avatar_url, '')",
	"COALESCE(s.is_banned, false)",
	"s.banned_at",
	"COALESCE(s.ban_reason, '')",
}

// UserRepository implements port.UserRepository using PostgreSQL. A user row
// is always created together with its profile and security rows.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
	newID   func() string
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

var _ port.UserRepository = (*UserRepository)(nil)

// WithClock overrides the timestamp source, used in tests.
func (r *UserRepository) WithClock(now func() time.Time) *UserRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// WithIDGenerator overrides user id generation, used in tests.
func (r *UserRepository) WithIDGenerator(gen func() string) *UserRepository {
	if gen != nil {
		r.newID = gen
	}
	return r
}

// FindByEmail returns repository.ErrNotFound when no user has email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, squirrel.Eq{"u.email": email})
}

// FindByID returns repository.ErrNotFound when no user has id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return r.findOne(ctx, squirrel.Eq{"u.id": id})
}

func (r *UserRepository) findOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users u").
		LeftJoin("user_profiles p ON p.user_id = u.id").
		LeftJoin("user_security s ON s.user_id = u.id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		user     domain.User
		role     string
		bannedAt *time.Time
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.Name,
		&user.PasswordHash,
		&role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Profile.Bio,
		&user.Profile.AvatarURL,
		&user.Security.IsBanned,
		&bannedAt,
		&user.Security.BanReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.ParseRole(role)
	user.Security.BannedAt = bannedAt
	return &user, nil
}

// ExistsByUsername reports whether username is already taken.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("users").
		Where(squirrel.Eq{"username": username}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build username exists sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query username exists: %w", err)
	}
	return exists, nil
}

// Create inserts the user with empty profile and security records in one
// transaction. Duplicate email or username yields repository.ErrUniqueViolation.
func (r *UserRepository) Create(ctx context.Context, in domain.NewUser) (_ *domain.User, err error) {
	now := r.now().UTC()
	role := in.Role
	if !role.Valid() {
		role = domain.RoleUser
	}

	user := &domain.User{
		ID:           r.newID(),
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: in.PasswordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	inserts := []squirrel.InsertBuilder{
		r.builder.Insert("users").
			Columns("id", "email", "username", "name", "password_hash", "role", "is_active", "created_at", "updated_at").
			Values(user.ID, user.Email, user.Username, user.Name, user.PasswordHash, string(user.Role), user.IsActive, now, now),
		r.builder.Insert("user_profiles").
			Columns("user_id", "bio", "avatar_url").
			Values(user.ID, "", ""),
		r.builder.Insert("user_security").
			Columns("user_id", "is_banned", "ban_reason").
			Values(user.ID, false, ""),
	}

	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, insert := range inserts {
		stmt, args, buildErr := insert.ToSql()
		if buildErr != nil {
			return nil, fmt.Errorf("build insert sql: %w", buildErr)
		}
		if _, execErr := tx.Exec(ctx, stmt, args...); execErr != nil {
			if pgErr, ok := isUniqueViolation(execErr); ok {
				return nil, fmt.Errorf("%w: %s", repository.ErrUniqueViolation, pgErr.ConstraintName)
			}
			return nil, fmt.Errorf("insert user: %w", execErr)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create user: %w", err)
	}

	return user, nil
}

// UpdatePassword replaces the stored hash for email.
func (r *UserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	stmt, args, err := r.builder.
		Update("users").
		Set("password_hash", passwordHash).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
