package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/arcade-auth/internal/apperr"
	"github.com/smallbiznis/arcade-auth/internal/clock"
	"github.com/smallbiznis/arcade-auth/internal/domain"
	"github.com/smallbiznis/arcade-auth/internal/password"
	"github.com/smallbiznis/arcade-auth/internal/repository"
	"github.com/smallbiznis/arcade-auth/internal/token"
)

// SessionManager orchestrates registration, login, refresh rotation,
// logout, and profile maintenance. It keeps no cross-request state; every
// invariant that spans concurrent requests is delegated to the store's
// atomic operations, so instances can be replicated freely.
type SessionManager struct {
	identities repository.IdentityRepository
	tokens     repository.TokenRepository
	hasher     *password.Hasher
	issuer     *token.Issuer
	node       *snowflake.Node
	clock      clock.Clock
	refreshTTL time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer

	// dummyDigest levels the timing of logins against unknown emails.
	dummyDigest string
}

// NewSessionManager wires dependencies.
func NewSessionManager(
	identities repository.IdentityRepository,
	tokens repository.TokenRepository,
	hasher *password.Hasher,
	issuer *token.Issuer,
	node *snowflake.Node,
	clk clock.Clock,
	refreshTTL time.Duration,
	logger *zap.Logger,
) (*SessionManager, error) {
	if clk == nil {
		clk = clock.System()
	}
	dummy, err := hasher.Hash("arcade-auth-timing-dummy")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy digest: %w", err)
	}
	return &SessionManager{
		identities:  identities,
		tokens:      tokens,
		hasher:      hasher,
		issuer:      issuer,
		node:        node,
		clock:       clk,
		refreshTTL:  refreshTTL,
		logger:      logger,
		tracer:      otel.Tracer("github.com/smallbiznis/arcade-auth/internal/service"),
		dummyDigest: dummy,
	}, nil
}

// Register creates a new identity and issues its first credential pair.
// Under concurrent registrations with the same email exactly one call wins;
// the rest observe ConflictError from the store's unique index.
func (s *SessionManager) Register(ctx context.Context, email, pass, confirmPassword string) (Session, error) {
	ctx, span := s.startSpan(ctx, "SessionManager.Register")
	defer span.End()

	if fields := validateRegistration(email, pass, confirmPassword); fields != nil {
		return Session{}, apperr.Validation("One or more fields failed validation.", fields)
	}

	normalized := normalizeEmail(email)
	digest, err := s.hasher.Hash(pass)
	if err != nil {
		span.RecordError(err)
		return Session{}, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	identity, err := s.identities.Create(ctx, domain.Identity{
		ID:           s.node.Generate().Int64(),
		Email:        normalized,
		PasswordHash: digest,
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return Session{}, apperr.Conflict(fmt.Sprintf("An account with email %q already exists.", normalized))
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, apperr.Internal(fmt.Errorf("create identity: %w", err))
	}

	session, err := s.issueSession(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.audit("register.success", "identity_id", identity.ID)
	return session, nil
}

// Login authenticates with email and password. Unknown email, a
// federated-only account, and a wrong password all yield the identical
// AuthenticationError; a dummy verification keeps the timing level when no
// stored digest is available to check.
func (s *SessionManager) Login(ctx context.Context, email, pass string) (Session, error) {
	ctx, span := s.startSpan(ctx, "SessionManager.Login")
	defer span.End()

	identity, err := s.findByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.hasher.Verify(pass, s.dummyDigest)
		return Session{}, apperr.Authentication()
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, apperr.Internal(fmt.Errorf("lookup identity: %w", err))
	}

	if !identity.HasPassword() {
		_, _ = s.hasher.Verify(pass, s.dummyDigest)
		return Session{}, apperr.Authentication()
	}

	ok, err := s.hasher.Verify(pass, identity.PasswordHash)
	if err != nil || !ok {
		return Session{}, apperr.Authentication()
	}

	session, err := s.issueSession(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.audit("login.success", "identity_id", identity.ID)
	return session, nil
}

// Refresh exchanges a refresh token for a new credential pair, permanently
// consuming the presented value. When K requests race on the same value,
// the store's conditional update lets exactly one through; the rest are
// told their token is no longer usable. The response never distinguishes
// never-existed, replayed, and expired.
func (s *SessionManager) Refresh(ctx context.Context, refreshValue string) (Session, error) {
	ctx, span := s.startSpan(ctx, "SessionManager.Refresh")
	defer span.End()

	if refreshValue == "" {
		return Session{}, apperr.Authentication()
	}

	consumed, err := s.tokens.Consume(ctx, refreshValue, s.clock.Now())
	if errors.Is(err, repository.ErrTokenInvalid) {
		return Session{}, apperr.Authentication()
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, apperr.Internal(fmt.Errorf("consume refresh token: %w", err))
	}

	identity, err := s.findByID(ctx, consumed.IdentityID)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, apperr.Authentication()
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, apperr.Internal(fmt.Errorf("load identity: %w", err))
	}

	session, err := s.issueSession(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return Session{}, err
	}

	s.audit("refresh_token.success", "identity_id", identity.ID)
	return session, nil
}

// Logout revokes every active refresh token of the identity. It is
// idempotent: tokens already revoked or long gone are not an error.
func (s *SessionManager) Logout(ctx context.Context, identityID int64) error {
	ctx, span := s.startSpan(ctx, "SessionManager.Logout")
	defer span.End()

	if err := s.tokens.RevokeAllForIdentity(ctx, identityID); err != nil {
		span.RecordError(err)
		return apperr.Internal(fmt.Errorf("revoke tokens: %w", err))
	}

	s.audit("logout.success", "identity_id", identityID)
	return nil
}

// ChangePassword verifies the current password before storing a new hash.
// On mismatch the stored hash is left untouched.
func (s *SessionManager) ChangePassword(ctx context.Context, identityID int64, currentPassword, newPassword string) error {
	ctx, span := s.startSpan(ctx, "SessionManager.ChangePassword")
	defer span.End()

	identity, err := s.findByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Identity does not exist.")
	}
	if err != nil {
		span.RecordError(err)
		return apperr.Internal(fmt.Errorf("load identity: %w", err))
	}

	if !identity.HasPassword() {
		return apperr.Authentication()
	}
	ok, err := s.hasher.Verify(currentPassword, identity.PasswordHash)
	if err != nil || !ok {
		return apperr.Authentication()
	}

	if issues := passwordIssues(newPassword); len(issues) > 0 {
		return apperr.Validation("New password does not meet the policy.", map[string][]string{"newPassword": issues})
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.identities.UpdatePasswordHash(ctx, identityID, digest); err != nil {
		span.RecordError(err)
		return apperr.Internal(fmt.Errorf("store password hash: %w", err))
	}

	s.audit("change_password.success", "identity_id", identityID)
	return nil
}

// UpdateProfile mutates the owner-writable profile fields. Last writer
// wins; these are single-owner fields with no cross-request race in
// practice.
func (s *SessionManager) UpdateProfile(ctx context.Context, identityID int64, update ProfileUpdate) (domain.Identity, error) {
	ctx, span := s.startSpan(ctx, "SessionManager.UpdateProfile")
	defer span.End()

	identity, err := s.identities.UpdateProfile(ctx, identityID, update.DisplayName, update.AvatarURL)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Identity{}, apperr.NotFound("Identity does not exist.")
	}
	if err != nil {
		span.RecordError(err)
		return domain.Identity{}, apperr.Internal(fmt.Errorf("update profile: %w", err))
	}

	s.audit("profile.updated", "identity_id", identityID)
	return identity, nil
}

// CurrentIdentity loads the identity behind a verified access token.
func (s *SessionManager) CurrentIdentity(ctx context.Context, identityID int64) (domain.Identity, error) {
	ctx, span := s.startSpan(ctx, "SessionManager.CurrentIdentity")
	defer span.End()

	identity, err := s.findByID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Identity{}, apperr.NotFound("Identity does not exist.")
	}
	if err != nil {
		span.RecordError(err)
		return domain.Identity{}, apperr.Internal(fmt.Errorf("load identity: %w", err))
	}
	return identity, nil
}

// issueSession mints an access/refresh pair, persists the refresh record,
// and touches last_login_at. The refresh insert is a mutation and is never
// retried: after an ambiguous failure the caller must resubmit.
func (s *SessionManager) issueSession(ctx context.Context, identity domain.Identity) (Session, error) {
	access, err := s.issuer.IssueAccessToken(identity.ID)
	if err != nil {
		return Session{}, apperr.Internal(fmt.Errorf("issue access token: %w", err))
	}

	now := s.clock.Now()
	refresh := s.issuer.NewRefreshValue()
	if _, err := s.tokens.Create(ctx, domain.RefreshToken{
		ID:         s.node.Generate().Int64(),
		Token:      refresh,
		IdentityID: identity.ID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.refreshTTL),
	}); err != nil {
		return Session{}, apperr.Internal(fmt.Errorf("persist refresh token: %w", err))
	}

	if err := s.identities.TouchLastLogin(ctx, identity.ID, now); err != nil {
		// Advisory timestamp; the issued credentials stay valid.
		s.log().Warn("touch last login failed", zap.Int64("identity_id", identity.ID), zap.Error(err))
	} else {
		identity.LastLoginAt = &now
	}

	return Session{
		Identity:     identity,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// findByEmail retries the read once on a transient failure. Sentinel
// results are returned as-is; mutating operations never get this treatment.
func (s *SessionManager) findByEmail(ctx context.Context, email string) (domain.Identity, error) {
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		identity, err = s.identities.GetByEmail(ctx, email)
	}
	return identity, err
}

func (s *SessionManager) findByID(ctx context.Context, id int64) (domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		identity, err = s.identities.GetByID(ctx, id)
	}
	return identity, err
}

func (s *SessionManager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *SessionManager) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", s.clock.Now()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *SessionManager) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
