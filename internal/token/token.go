// Package token verifies bearer tokens carrying an embedded session claim.
// Token issuance belongs to the authentication service; this package only
// needs to verify a token and extract the session id from it.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const sessionClaim = "sid"

// Verifier verifies HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// SessionID verifies the token signature and returns the embedded session
// id. Any verification failure yields ErrInvalidToken; callers treat that
// as "no session", not as a hard error.
func (v *Verifier) SessionID(raw string) (string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sid, ok := claims[sessionClaim].(string)
	if !ok || sid == "" {
		return "", ErrInvalidToken
	}
	return sid, nil
}

// Sign issues a token embedding the session id. Used by the login
// collaborator and by tests.
func (v *Verifier) Sign(sessionID string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		sessionClaim: sessionID,
		"iat":        now.Unix(),
		"exp":        now.Add(expiry).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
