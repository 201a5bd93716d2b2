package auth

import "github.com/golang-jwt/jwt/v5"

// Tokens is the response of every sign-in and refresh.
type Tokens struct {
	UID          string `json:"uid"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider,omitempty"`
}
