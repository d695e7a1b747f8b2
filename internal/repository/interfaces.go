package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/arcade-auth/internal/domain"
)

// IdentityRepository persists identities. Create is atomic: uniqueness of
// the normalized email is enforced by the storage layer, not by callers.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) (domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (domain.Identity, error)
	GetByID(ctx context.Context, id int64) (domain.Identity, error)
	UpdateProfile(ctx context.Context, id int64, displayName, avatarURL *string) (domain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// TokenRepository persists refresh tokens.
//
// Consume is the core atomic primitive: in a single conditional update it
// locates the record by value, checks revoked=false and expiry against now,
// and flips revoked to true. The pre-mutation record is returned only to
// the caller whose update took effect; every other concurrent caller gets
// ErrTokenInvalid.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error)
	Consume(ctx context.Context, value string, now time.Time) (domain.RefreshToken, error)
	RevokeAllForIdentity(ctx context.Context, identityID int64) error
}
