package session

import (
	"net/http"
	"strings"

	"medivault/internal/token"
)

const (
	// CookieName is the session cookie set by the login collaborator.
	CookieName = "session_id"
	// HeaderName carries the session id for clients that cannot use
	// cookies or bearer tokens.
	HeaderName = "X-Session-ID"
)

// Resolver extracts a session id from an incoming request: a verified
// bearer token claim first, then the session cookie, then the custom
// header. Resolution never fails hard; an unverifiable token simply
// yields no session id.
type Resolver struct {
	verifier *token.Verifier
}

func NewResolver(v *token.Verifier) *Resolver {
	return &Resolver{verifier: v}
}

// FromRequest returns the resolved session id, or empty string if none
// of the transports carry one.
func (r *Resolver) FromRequest(req *http.Request) string {
	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		raw := strings.TrimPrefix(auth, "Bearer ")
		if sid, err := r.verifier.SessionID(raw); err == nil {
			return sid
		}
		// verification failure is not escalated; fall through
	}

	if cookie, err := req.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return req.Header.Get(HeaderName)
}
