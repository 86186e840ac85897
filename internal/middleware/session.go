package middleware

import (
	"context"
	"errors"
	"net/http"

	"medivault/internal/domain"
	"medivault/internal/observability"
	"medivault/internal/session"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"
)

// Session resolves the request's session id, refreshes the session's
// activity, and attaches the session and user id to the request context.
// It never rejects: anonymous requests, expired sessions, and store
// outages all pass through without session context. Handlers that need
// authentication use RequireSession.
func Session(manager domain.SessionManager, resolver *session.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := resolver.FromRequest(r)
			if sid == "" {
				next.ServeHTTP(w, r)
				return
			}

			s, err := manager.Refresh(r.Context(), sid)
			if err != nil {
				if !errors.Is(err, domain.ErrSessionNotFound) && !errors.Is(err, domain.ErrSessionExpired) {
					observability.FromContext(r.Context()).Warn("session refresh failed, continuing without session",
						"session_id", sid,
						"error", err.Error())
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, s.UserID)
			ctx = context.WithValue(ctx, SessionKey, s)
			ctx = observability.WithSessionID(ctx, s.ID)
			ctx = observability.WithUserID(ctx, s.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects requests that did not resolve to a live session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects authenticated requests whose session does not
// carry the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := GetSession(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if s.Role() != "admin" {
			writeJSONError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

func GetSession(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*domain.Session)
	return s, ok
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
