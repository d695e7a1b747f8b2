package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/arcade-auth/internal/apperr"
	"github.com/smallbiznis/arcade-auth/internal/domain"
	"github.com/smallbiznis/arcade-auth/internal/http/middleware"
	"github.com/smallbiznis/arcade-auth/internal/http/respond"
	"github.com/smallbiznis/arcade-auth/internal/service"
)

// AuthHandler exposes the session lifecycle over REST.
type AuthHandler struct {
	Sessions *service.SessionManager
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(sessions *service.SessionManager) *AuthHandler {
	return &AuthHandler{Sessions: sessions}
}

// IdentityResponse is the public identity payload. The numeric ID is
// rendered as a string so JavaScript clients keep full precision.
type IdentityResponse struct {
	ID          int64      `json:"id,string"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// SessionResponse is the credential payload returned by register, login,
// and refresh.
type SessionResponse struct {
	Identity     IdentityResponse `json:"identity"`
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
}

func newIdentityResponse(identity domain.Identity) IdentityResponse {
	return IdentityResponse{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		AvatarURL:   identity.AvatarURL,
		CreatedAt:   identity.CreatedAt,
		LastLoginAt: identity.LastLoginAt,
	}
}

func newSessionResponse(session service.Session) SessionResponse {
	return SessionResponse{
		Identity:     newIdentityResponse(session.Identity),
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
	}
}

// Register creates an account and signs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.Validation("Request body is malformed.", nil))
		return
	}

	session, err := h.Sessions.Register(c.Request.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(session))
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.Validation("Request body is malformed.", nil))
		return
	}

	session, err := h.Sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Refresh exchanges a refresh token for a new pair, consuming it.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.Validation("Request body is malformed.", nil))
		return
	}

	session, err := h.Sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Logout revokes the caller's active refresh tokens. Idempotent.
func (h *AuthHandler) Logout(c *gin.Context) {
	identityID, ok := middleware.GetIdentityID(c)
	if !ok {
		respond.Error(c, apperr.Authentication())
		return
	}

	if err := h.Sessions.Logout(c.Request.Context(), identityID); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

// Me returns the authenticated identity.
func (h *AuthHandler) Me(c *gin.Context) {
	identityID, ok := middleware.GetIdentityID(c)
	if !ok {
		respond.Error(c, apperr.Authentication())
		return
	}

	identity, err := h.Sessions.CurrentIdentity(c.Request.Context(), identityID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": newIdentityResponse(identity)})
}

// UpdateProfile mutates the owner-writable profile fields.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	identityID, ok := middleware.GetIdentityID(c)
	if !ok {
		respond.Error(c, apperr.Authentication())
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		AvatarURL   *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.Validation("Request body is malformed.", nil))
		return
	}

	identity, err := h.Sessions.UpdateProfile(c.Request.Context(), identityID, service.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": newIdentityResponse(identity)})
}

// ChangePassword swaps the stored hash after verifying the current one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identityID, ok := middleware.GetIdentityID(c)
	if !ok {
		respond.Error(c, apperr.Authentication())
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, apperr.Validation("Request body is malformed.", nil))
		return
	}

	if err := h.Sessions.ChangePassword(c.Request.Context(), identityID, req.CurrentPassword, req.NewPassword); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed."})
}

// Healthz is the liveness probe.
func (h *AuthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
