package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/arcade-auth/internal/apperr"
	"github.com/smallbiznis/arcade-auth/internal/http/respond"
	"github.com/smallbiznis/arcade-auth/internal/token"
)

const identityIDKey = "identityID"

// Auth validates the Authorization header and attaches the identity ID.
// Verification is signature-and-expiry only, so it never blocks on I/O.
type Auth struct {
	Issuer *token.Issuer
}

// RequireAccessToken ensures the request carries a valid bearer token.
func (m *Auth) RequireAccessToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		respond.AbortError(c, apperr.Authentication())
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		respond.AbortError(c, apperr.Authentication())
		return
	}

	identityID, err := m.Issuer.VerifyAccessToken(parts[1])
	if err != nil {
		respond.AbortError(c, apperr.Authentication())
		return
	}

	c.Set(identityIDKey, identityID)
	c.Next()
}

// GetIdentityID exposes the authenticated identity to handlers.
func GetIdentityID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(identityIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}
