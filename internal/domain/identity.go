package domain

import "time"

// Identity represents one registered user of the service.
//
// PasswordHash is empty only for identities created through a federated
// login provider; those accounts cannot authenticate with a password.
type Identity struct {
	ID           int64
	Email        string
	PasswordHash string
	DisplayName  string
	AvatarURL    string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// HasPassword reports whether the identity can authenticate with a password.
func (i Identity) HasPassword() bool {
	return i.PasswordHash != ""
}
