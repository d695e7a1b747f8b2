package repository

import "errors"

// Sentinel errors surfaced by the store. The service layer maps these into
// the external taxonomy; anything else is treated as a storage failure and
// never retried for mutating operations.
var (
	// ErrDuplicateEmail reports that the normalized email already belongs
	// to another identity. Raised by the database unique index, so exactly
	// one of N concurrent creates wins even across replicas.
	ErrDuplicateEmail = errors.New("repository: duplicate email")

	// ErrNotFound reports that a referenced record does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrTokenInvalid reports that a refresh token was absent, already
	// revoked, or expired. Consume deliberately does not distinguish the
	// three.
	ErrTokenInvalid = errors.New("repository: refresh token invalid")
)
