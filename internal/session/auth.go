package session

import (
	"errors"
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrNoUserClaim is returned when the access token carries no recognizable
// user id claim.
var ErrNoUserClaim = errors.New("session: token carries no user id claim")

// identityClaims are the claim names the backend is known to put the user id
// under, in lookup order.
var identityClaims = []string{"anon_id", "sub", "userId", "user_id"}

// UserIDFromToken derives the local user id from the access token's claims.
// The token is decoded without signature verification: validation is the
// server's job, this layer only needs to know who it is acting as.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	for _, key := range identityClaims {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrNoUserClaim
}

// UserNameFromToken extracts the optional display name claim, used for
// outgoing typing events. Empty when the token has none.
func UserNameFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if v, ok := claims["name"].(string); ok {
		return v
	}
	return ""
}
