package port

// PasswordValidator enforces password strength requirements.
type PasswordValidator interface {
	Validate(password string) error
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}
