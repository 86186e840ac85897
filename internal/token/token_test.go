package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	signed, err := v.Sign("sess-123", time.Hour)
	require.NoError(t, err)

	sid, err := v.SessionID(signed)
	require.NoError(t, err)
	assert.Equal(t, "sess-123", sid)
}

func TestVerifier_WrongSecret(t *testing.T) {
	signed, err := NewVerifier("secret-a").Sign("sess-123", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret-b").SessionID(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier("test-secret")

	signed, err := v.Sign("sess-123", -time.Minute)
	require.NoError(t, err)

	_, err = v.SessionID(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifier_Garbage(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.SessionID("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
