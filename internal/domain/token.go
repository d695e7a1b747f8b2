package domain

import "time"

// RefreshToken persists one issued refresh token.
//
// Revoked is monotonic: it only ever flips false -> true, either when the
// token is consumed during rotation or when the owner logs out. A revoked
// record must never mint new tokens again, regardless of ExpiresAt.
type RefreshToken struct {
	ID         int64
	Token      string
	IdentityID int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// Usable reports whether the token could still be exchanged at the given
// instant. The authoritative check happens inside the store's conditional
// update; this helper exists for logging and tests only.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
