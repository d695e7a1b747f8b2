package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/arcade-auth/internal/apperr"
	"github.com/smallbiznis/arcade-auth/internal/clock"
	"github.com/smallbiznis/arcade-auth/internal/domain"
	"github.com/smallbiznis/arcade-auth/internal/password"
	"github.com/smallbiznis/arcade-auth/internal/repository"
	"github.com/smallbiznis/arcade-auth/internal/service"
	"github.com/smallbiznis/arcade-auth/internal/token"
)

var fastParams = password.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

type fixture struct {
	manager    *service.SessionManager
	identities *repository.MemoryIdentityRepo
	tokens     *repository.MemoryTokenRepo
	hasher     *password.Hasher
	clk        *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	hasher := password.NewHasher(fastParams)
	issuer := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "arcade-auth-test", 15*time.Minute, 32, clk)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	identities := repository.NewMemoryIdentityRepo()
	tokens := repository.NewMemoryTokenRepo()

	manager, err := service.NewSessionManager(identities, tokens, hasher, issuer, node, clk, 7*24*time.Hour, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		manager:    manager,
		identities: identities,
		tokens:     tokens,
		hasher:     hasher,
		clk:        clk,
	}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, kind, appErr.Kind)
	return appErr
}

func TestRegisterIssuesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "Alice@Example.com", "Password123", "Password123")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", session.Identity.Email)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), session.ExpiresIn)

	// The stored digest is never the plaintext.
	stored, err := f.identities.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Password123", stored.PasswordHash)
	ok, err := f.hasher.Verify("Password123", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name            string
		email           string
		password        string
		confirmPassword string
		wantFields      []string
	}{
		{"missing email", "", "Password123", "Password123", []string{"email"}},
		{"malformed email", "not-an-email", "Password123", "Password123", []string{"email"}},
		{"short password", "a@b.co", "Pw1", "Pw1", []string{"password"}},
		{"no digit", "a@b.co", "passwordonly", "passwordonly", []string{"password"}},
		{"no letter", "a@b.co", "1234567890", "1234567890", []string{"password"}},
		{"confirm mismatch", "a@b.co", "Password123", "Password124", []string{"confirmPassword"}},
		{"everything wrong", "bad", "short", "different", []string{"email", "password", "confirmPassword"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Register(ctx, tc.email, tc.password, tc.confirmPassword)
			appErr := requireKind(t, err, apperr.KindValidation)
			for _, field := range tc.wantFields {
				assert.NotEmpty(t, appErr.Fields[field], "expected messages for field %q", field)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	// Case only differs; the normalized email already exists.
	_, err = f.manager.Register(ctx, "ALICE@example.com", "Password456", "Password456")
	appErr := requireKind(t, err, apperr.KindConflict)
	assert.Contains(t, appErr.Detail, "already exists")
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.manager.Register(ctx, "race@example.com", "Password123", "Password123")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners, conflicts := 0, 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr)
		require.Equal(t, apperr.KindConflict, appErr.Kind)
		conflicts++
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, conflicts)

	// Exactly one identity exists and it is loginable.
	_, err := f.manager.Login(ctx, "race@example.com", "Password123")
	assert.NoError(t, err)
}

func TestLoginErrorsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	// Federated-only account: exists but has no stored digest.
	_, err = f.identities.Create(ctx, federatedIdentity("sso@example.com"))
	require.NoError(t, err)

	_, unknownErr := f.manager.Login(ctx, "nobody@example.com", "Password123")
	_, wrongErr := f.manager.Login(ctx, "alice@example.com", "WrongPassword1")
	_, federatedErr := f.manager.Login(ctx, "sso@example.com", "Password123")

	unknown := requireKind(t, unknownErr, apperr.KindAuthentication)
	wrong := requireKind(t, wrongErr, apperr.KindAuthentication)
	federated := requireKind(t, federatedErr, apperr.KindAuthentication)

	assert.Equal(t, unknown.Detail, wrong.Detail)
	assert.Equal(t, unknown.Detail, federated.Detail)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	second, err := f.manager.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Replaying the consumed value fails.
	_, err = f.manager.Refresh(ctx, first.RefreshToken)
	requireKind(t, err, apperr.KindAuthentication)

	// The rotated value works exactly once.
	third, err := f.manager.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	f.clk.Advance(7*24*time.Hour + time.Minute)

	_, err = f.manager.Refresh(ctx, session.RefreshToken)
	requireKind(t, err, apperr.KindAuthentication)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, value := range []string{"", "never-issued"} {
		_, err := f.manager.Refresh(ctx, value)
		requireKind(t, err, apperr.KindAuthentication)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	type outcome struct {
		session service.Session
		err     error
	}
	results := make(chan outcome, n)

	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s, err := f.manager.Refresh(ctx, session.RefreshToken)
			results <- outcome{s, err}
		}()
	}
	wg.Wait()
	close(results)

	var winner *service.Session
	losers := 0
	for res := range results {
		if res.err == nil {
			require.Nil(t, winner, "more than one refresh succeeded")
			s := res.session
			winner = &s
			continue
		}
		var appErr *apperr.Error
		require.ErrorAs(t, res.err, &appErr)
		require.Equal(t, apperr.KindAuthentication, appErr.Kind)
		losers++
	}
	require.NotNil(t, winner)
	assert.Equal(t, n-1, losers)

	// The winner's token is usable exactly once.
	_, err = f.manager.Refresh(ctx, winner.RefreshToken)
	require.NoError(t, err)
	_, err = f.manager.Refresh(ctx, winner.RefreshToken)
	requireKind(t, err, apperr.KindAuthentication)
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	require.NoError(t, f.manager.Logout(ctx, session.Identity.ID))
	require.NoError(t, f.manager.Logout(ctx, session.Identity.ID))

	_, err = f.manager.Refresh(ctx, session.RefreshToken)
	requireKind(t, err, apperr.KindAuthentication)

	// Logging back in issues a fresh usable token.
	next, err := f.manager.Login(ctx, "alice@example.com", "Password123")
	require.NoError(t, err)
	_, err = f.manager.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)
	id := session.Identity.ID

	err = f.manager.ChangePassword(ctx, id, "Password123", "NewPassword456")
	require.NoError(t, err)

	_, err = f.manager.Login(ctx, "alice@example.com", "Password123")
	requireKind(t, err, apperr.KindAuthentication)
	_, err = f.manager.Login(ctx, "alice@example.com", "NewPassword456")
	assert.NoError(t, err)
}

func TestChangePasswordWrongCurrentLeavesHashUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	err = f.manager.ChangePassword(ctx, session.Identity.ID, "WrongCurrent1", "NewPassword456")
	requireKind(t, err, apperr.KindAuthentication)

	// The old password still works; the rejected change left no trace.
	_, err = f.manager.Login(ctx, "alice@example.com", "Password123")
	assert.NoError(t, err)
	_, err = f.manager.Login(ctx, "alice@example.com", "NewPassword456")
	requireKind(t, err, apperr.KindAuthentication)
}

func TestChangePasswordPolicyOnNewPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	err = f.manager.ChangePassword(ctx, session.Identity.ID, "Password123", "short")
	appErr := requireKind(t, err, apperr.KindValidation)
	assert.NotEmpty(t, appErr.Fields["newPassword"])
}

func TestUpdateProfilePartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)
	id := session.Identity.ID

	name := "Alice"
	updated, err := f.manager.UpdateProfile(ctx, id, service.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.DisplayName)

	// Omitted fields stay untouched.
	avatar := "https://cdn.example.com/a.png"
	updated, err = f.manager.UpdateProfile(ctx, id, service.ProfileUpdate{AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.DisplayName)
	assert.Equal(t, avatar, updated.AvatarURL)
}

func TestUpdateProfileUnknownIdentity(t *testing.T) {
	f := newFixture(t)

	name := "Nobody"
	_, err := f.manager.UpdateProfile(context.Background(), 999, service.ProfileUpdate{DisplayName: &name})
	requireKind(t, err, apperr.KindNotFound)
}

func TestCurrentIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)

	identity, err := f.manager.CurrentIdentity(ctx, session.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity.Email)

	_, err = f.manager.CurrentIdentity(ctx, 999)
	requireKind(t, err, apperr.KindNotFound)
}

func TestLoginTouchesLastLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.manager.Register(ctx, "alice@example.com", "Password123", "Password123")
	require.NoError(t, err)
	require.NotNil(t, session.Identity.LastLoginAt)

	f.clk.Advance(time.Hour)
	next, err := f.manager.Login(ctx, "alice@example.com", "Password123")
	require.NoError(t, err)
	require.NotNil(t, next.Identity.LastLoginAt)
	assert.True(t, next.Identity.LastLoginAt.After(*session.Identity.LastLoginAt))
}

// federatedIdentity builds an identity without a stored password digest.
func federatedIdentity(email string) domain.Identity {
	return domain.Identity{ID: time.Now().UnixNano(), Email: email, DisplayName: "SSO User"}
}
