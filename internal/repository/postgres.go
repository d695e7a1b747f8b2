package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/arcade-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ IdentityRepository = (*PostgresIdentityRepo)(nil)
	_ TokenRepository    = (*PostgresTokenRepo)(nil)
)

// PostgresIdentityRepo implements IdentityRepository on pgx.
type PostgresIdentityRepo struct {
	db *pgxpool.Pool
}

func NewPostgresIdentityRepo(pool *pgxpool.Pool) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: pool}
}

const identityColumns = `id, email, password_hash, display_name, avatar_url, created_at, last_login_at`

const insertIdentitySQL = `INSERT INTO identities (id, email, password_hash, display_name, avatar_url)
VALUES ($1, lower($2), $3, $4, $5)
RETURNING ` + identityColumns

func (r *PostgresIdentityRepo) Create(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	row := r.db.QueryRow(ctx, insertIdentitySQL,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.DisplayName,
		identity.AvatarURL,
	)

	created, err := scanIdentity(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return domain.Identity{}, ErrDuplicateEmail
		}
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return created, nil
}

func (r *PostgresIdentityRepo) GetByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = lower($1)`, email)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get identity by email: %w", err)
	}
	return identity, nil
}

func (r *PostgresIdentityRepo) GetByID(ctx context.Context, id int64) (domain.Identity, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get identity by id: %w", err)
	}
	return identity, nil
}

const updateProfileSQL = `UPDATE identities
SET display_name = COALESCE($2, display_name),
    avatar_url   = COALESCE($3, avatar_url)
WHERE id = $1
RETURNING ` + identityColumns

func (r *PostgresIdentityRepo) UpdateProfile(ctx context.Context, id int64, displayName, avatarURL *string) (domain.Identity, error) {
	row := r.db.QueryRow(ctx, updateProfileSQL, id, displayName, avatarURL)

	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, ErrNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("update profile: %w", err)
	}
	return identity, nil
}

func (r *PostgresIdentityRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE identities SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresIdentityRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE identities SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// PostgresTokenRepo implements TokenRepository on pgx.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(pool *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool}
}

const tokenColumns = `id, token, identity_id, issued_at, expires_at, revoked`

const insertTokenSQL = `INSERT INTO refresh_tokens (id, token, identity_id, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + tokenColumns

func (r *PostgresTokenRepo) Create(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, insertTokenSQL,
		token.ID,
		token.Token,
		token.IdentityID,
		token.IssuedAt,
		token.ExpiresAt,
	)

	created, err := scanToken(row)
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("create refresh token: %w", err)
	}
	return created, nil
}

// consumeTokenSQL is the single-winner primitive. The affected-row count of
// the conditional update decides the race: of N concurrent callers with the
// same value, the database serializes exactly one flip and every other
// caller matches zero rows.
const consumeTokenSQL = `UPDATE refresh_tokens
SET revoked = true
WHERE token = $1 AND revoked = false AND expires_at > $2
RETURNING ` + tokenColumns

func (r *PostgresTokenRepo) Consume(ctx context.Context, value string, now time.Time) (domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, consumeTokenSQL, value, now)

	token, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RefreshToken{}, ErrTokenInvalid
	}
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("consume refresh token: %w", err)
	}

	// RETURNING reflects the post-update row; the caller receives the
	// pre-mutation view of the record it just consumed.
	token.Revoked = false
	return token, nil
}

func (r *PostgresTokenRepo) RevokeAllForIdentity(ctx context.Context, identityID int64) error {
	if _, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE identity_id = $1 AND revoked = false`,
		identityID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (domain.Identity, error) {
	var identity domain.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.DisplayName,
		&identity.AvatarURL,
		&identity.CreatedAt,
		&identity.LastLoginAt,
	)
	return identity, err
}

func scanToken(row pgx.Row) (domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := row.Scan(
		&token.ID,
		&token.Token,
		&token.IdentityID,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	return token, err
}
