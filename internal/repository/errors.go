package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUniqueViolation indicates a unique constraint rejected the write.
	ErrUniqueViolation = errors.New("repository: unique violation")
)
