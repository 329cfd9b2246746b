// Package identity resolves who is looking at a page from their bearer token.
//
// Tokens are decoded without verifying the signature. The backend owns
// verification; the identity is only used to decide what the UI offers.
package identity

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Viewer is the identity behind a bearer token
type Viewer struct {
	Subject string
	Known   bool
}

// Unknown is the viewer for a missing or unreadable token
var Unknown = Viewer{}

// FromToken extracts the subject claim from token
func FromToken(token string) Viewer {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Unknown
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Unknown
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Unknown
	}
	return Viewer{Subject: subject, Known: true}
}

// Owns reports whether the viewer is the user identified by userID
func (v Viewer) Owns(userID string) bool {
	return v.Known && userID != "" && v.Subject == userID
}
