package model

import "time"

// Credentials are exchanged for a token pair at login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is the body of POST /auth/login and POST /auth/token/refresh.
// Refresh is empty when the backend does not rotate refresh tokens.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Session is the authenticated state owned by the session manager.
// ExpiresAt is derived from the access token's exp claim and is zero when
// the claim could not be read.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"-"`
	User         User      `json:"user"`
	ExpiresAt    time.Time `json:"expires_at"`
}
