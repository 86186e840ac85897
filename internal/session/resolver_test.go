package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medivault/internal/token"
)

func TestResolver_BearerToken(t *testing.T) {
	v := token.NewVerifier("test-secret")
	r := NewResolver(v)

	signed, err := v.Sign("sess-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	assert.Equal(t, "sess-1", r.FromRequest(req))
}

func TestResolver_InvalidTokenFallsThrough(t *testing.T) {
	r := NewResolver(token.NewVerifier("test-secret"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "sess-cookie"})

	// bad token degrades to cookie resolution, not an error
	assert.Equal(t, "sess-cookie", r.FromRequest(req))
}

func TestResolver_Cookie(t *testing.T) {
	r := NewResolver(token.NewVerifier("test-secret"))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "sess-2"})

	assert.Equal(t, "sess-2", r.FromRequest(req))
}

func TestResolver_Header(t *testing.T) {
	r := NewResolver(token.NewVerifier("test-secret"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderName, "sess-3")

	assert.Equal(t, "sess-3", r.FromRequest(req))
}

func TestResolver_BearerWinsOverCookie(t *testing.T) {
	v := token.NewVerifier("test-secret")
	r := NewResolver(v)

	signed, err := v.Sign("sess-token", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "sess-cookie"})

	assert.Equal(t, "sess-token", r.FromRequest(req))
}

func TestResolver_NothingResolvesToEmpty(t *testing.T) {
	r := NewResolver(token.NewVerifier("test-secret"))

	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", r.FromRequest(req))
}
