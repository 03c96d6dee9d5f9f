package domain

import "time"

// Role is the coarse authorization level carried by a user record.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps free-form input onto a role, falling back to RoleUser.
func ParseRole(value string) Role {
	r := Role(value)
	if r.Valid() {
		return r
	}
	return RoleUser
}

// Profile is the empty-by-default profile record created alongside a user.
type Profile struct {
	Bio       string
	AvatarURL string
}

// Security holds moderation state for a user.
type Security struct {
	IsBanned  bool
	BannedAt  *time.Time
	BanReason string
}

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Email        string
	Username     string
	Name         string
	PasswordHash string
	Role         Role
	IsActive     bool
	Profile      Profile
	Security     Security
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user holds any of the given roles.
func (u User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// NewUser carries the fields required to create a user record.
type NewUser struct {
	Email        string
	Username     string
	Name         string
	PasswordHash string
	Role         Role
}
