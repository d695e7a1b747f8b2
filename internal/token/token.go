// Package token mints and verifies the two credential types of the auth
// core: short-lived signed access tokens and opaque random refresh values.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/arcade-auth/internal/clock"
)

// ErrInvalidAccessToken covers every verification failure: bad signature,
// malformed token, or expiry. Callers must not distinguish the causes.
var ErrInvalidAccessToken = errors.New("token: invalid access token")

// Issuer signs access tokens with a process-wide HS256 secret and mints
// opaque refresh values. It performs no I/O; verification is pure and cheap
// enough to run on every request.
type Issuer struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	refreshBytes int
	clock        clock.Clock
}

// NewIssuer constructs an Issuer. refreshBytes below 32 is raised to 32 so
// refresh values stay unguessable.
func NewIssuer(secret []byte, issuer string, accessTTL time.Duration, refreshBytes int, clk clock.Clock) *Issuer {
	if refreshBytes < 32 {
		refreshBytes = 32
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Issuer{
		secret:       secret,
		issuer:       issuer,
		accessTTL:    accessTTL,
		refreshBytes: refreshBytes,
		clock:        clk,
	}
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccessToken produces a signed JWT carrying the identity ID as
// subject, with expiry at issuance time plus the configured TTL.
func (i *Issuer) IssueAccessToken(identityID int64) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: i.secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := i.clock.Now()
	claims := gojwt.Claims{
		Subject:   strconv.FormatInt(identityID, 10),
		Issuer:    i.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(i.accessTTL)),
	}

	raw, err := gojwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return raw, nil
}

// VerifyAccessToken checks signature and expiry and returns the identity ID
// the token was issued for. It touches neither network nor storage.
func (i *Issuer) VerifyAccessToken(raw string) (int64, error) {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return 0, ErrInvalidAccessToken
	}

	var claims gojwt.Claims
	if err := parsed.Claims(i.secret, &claims); err != nil {
		return 0, ErrInvalidAccessToken
	}

	if err := claims.Validate(gojwt.Expected{Issuer: i.issuer, Time: i.clock.Now()}); err != nil {
		return 0, ErrInvalidAccessToken
	}

	identityID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	return identityID, nil
}

// NewRefreshValue mints a cryptographically random opaque value. Collisions
// are negligible at this entropy, so no uniqueness pre-check is made; the
// store's unique index is the backstop.
func (i *Issuer) NewRefreshValue() string {
	buf := make([]byte, i.refreshBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
