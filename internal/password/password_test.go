package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/arcade-auth/internal/password"
)

// fastParams keep argon2 cheap enough for unit tests.
var fastParams = password.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

func TestHashVerifyRoundTrip(t *testing.T) {
	hasher := password.NewHasher(fastParams)

	digest, err := hasher.Hash("Password123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(digest, "$argon2id$"))

	ok, err := hasher.Verify("Password123", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong-password", digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashProducesUniqueSalts(t *testing.T) {
	hasher := password.NewHasher(fastParams)

	first, err := hasher.Hash("Password123")
	require.NoError(t, err)
	second, err := hasher.Hash("Password123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyEmbeddedParams(t *testing.T) {
	// A digest hashed with one cost profile must verify under a hasher
	// configured with another: parameters travel inside the digest.
	digest, err := password.NewHasher(fastParams).Hash("Password123")
	require.NoError(t, err)

	ok, err := password.NewHasher(password.DefaultParams).Verify("Password123", digest)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformedDigest(t *testing.T) {
	hasher := password.NewHasher(fastParams)

	for _, digest := range []string{
		"",
		"not-a-digest",
		"$argon2id$v=19$m=1024,t=1,p=1$salt-only",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$!!!",
	} {
		ok, err := hasher.Verify("Password123", digest)
		assert.False(t, ok, "digest %q", digest)
		assert.ErrorIs(t, err, password.ErrMalformedDigest, "digest %q", digest)
	}
}
