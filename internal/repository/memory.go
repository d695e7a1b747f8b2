package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/arcade-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ IdentityRepository = (*MemoryIdentityRepo)(nil)
	_ TokenRepository    = (*MemoryTokenRepo)(nil)
)

// MemoryIdentityRepo is a mutex-guarded IdentityRepository for tests and
// local development. It honors the same contract as Postgres: a single
// winner per normalized email, decided under one lock.
type MemoryIdentityRepo struct {
	mu      sync.Mutex
	byID    map[int64]domain.Identity
	byEmail map[string]int64
	nowFunc func() time.Time
}

func NewMemoryIdentityRepo() *MemoryIdentityRepo {
	return &MemoryIdentityRepo{
		byID:    make(map[int64]domain.Identity),
		byEmail: make(map[string]int64),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryIdentityRepo) Create(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	normalized := strings.ToLower(strings.TrimSpace(identity.Email))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[normalized]; exists {
		return domain.Identity{}, ErrDuplicateEmail
	}

	identity.Email = normalized
	identity.CreatedAt = r.nowFunc()
	r.byID[identity.ID] = identity
	r.byEmail[normalized] = identity.ID
	return identity, nil
}

func (r *MemoryIdentityRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[normalized]
	if !ok {
		return domain.Identity{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryIdentityRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return domain.Identity{}, ErrNotFound
	}
	return identity, nil
}

func (r *MemoryIdentityRepo) UpdateProfile(ctx context.Context, id int64, displayName, avatarURL *string) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return domain.Identity{}, ErrNotFound
	}
	if displayName != nil {
		identity.DisplayName = *displayName
	}
	if avatarURL != nil {
		identity.AvatarURL = *avatarURL
	}
	r.byID[id] = identity
	return identity, nil
}

func (r *MemoryIdentityRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	identity.PasswordHash = hash
	r.byID[id] = identity
	return nil
}

func (r *MemoryIdentityRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byID[id]
	if !ok {
		return nil
	}
	identity.LastLoginAt = &at
	r.byID[id] = identity
	return nil
}

// MemoryTokenRepo is a mutex-guarded TokenRepository. Consume performs the
// locate-check-flip sequence under a single lock acquisition, matching the
// at-most-one-winner semantics of the Postgres conditional update.
type MemoryTokenRepo struct {
	mu      sync.Mutex
	byValue map[string]domain.RefreshToken
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{byValue: make(map[string]domain.RefreshToken)}
}

func (r *MemoryTokenRepo) Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byValue[token.Token] = token
	return token, nil
}

func (r *MemoryTokenRepo) Consume(ctx context.Context, value string, now time.Time) (domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byValue[value]
	if !ok || token.Revoked || !now.Before(token.ExpiresAt) {
		return domain.RefreshToken{}, ErrTokenInvalid
	}

	consumed := token
	token.Revoked = true
	r.byValue[value] = token
	return consumed, nil
}

func (r *MemoryTokenRepo) RevokeAllForIdentity(ctx context.Context, identityID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for value, token := range r.byValue {
		if token.IdentityID == identityID && !token.Revoked {
			token.Revoked = true
			r.byValue[value] = token
		}
	}
	return nil
}

// Get returns the raw record for a value. Test helper.
func (r *MemoryTokenRepo) Get(value string) (domain.RefreshToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byValue[value]
	return token, ok
}

// CountForIdentity returns how many records exist for an identity. Test helper.
func (r *MemoryTokenRepo) CountForIdentity(identityID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, token := range r.byValue {
		if token.IdentityID == identityID {
			n++
		}
	}
	return n
}
