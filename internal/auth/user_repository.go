package auth

import "errors"

// UserRepository is the persistence contract for the account table: load
// everything at startup, save an account whenever its durable state changes.
// The storage format is a backend concern; implementations only promise
// round-trip fidelity of the Account fields.
type UserRepository interface {
	// LoadAll returns every stored account. An empty slice and nil error
	// means a fresh installation.
	LoadAll() ([]*Account, error)

	// Save persists the account, inserting or replacing by username.
	Save(account *Account) error

	// Close releases backend resources.
	Close() error
}

// Domain-level errors surfaced by the store and repositories.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidUsername = errors.New("invalid username")
	ErrWeakPassword    = errors.New("password does not meet complexity requirements")
	ErrAccountLocked   = errors.New("account is locked")
)
