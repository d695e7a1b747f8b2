package service

import "github.com/smallbiznis/arcade-auth/internal/domain"

// Session bundles the freshly issued credential pair with the owning
// identity. ExpiresIn is the access token lifetime in seconds.
type Session struct {
	Identity     domain.Identity
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// ProfileUpdate carries the owner-writable profile fields. Nil means leave
// the field untouched.
type ProfileUpdate struct {
	DisplayName *string
	AvatarURL   *string
}
