package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medivault/internal/store"
)

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady_AllUp(t *testing.T) {
	handler := Ready(store.NewMemoryStore(), nil)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])

	checks := body["checks"].(map[string]any)
	storeCheck := checks["store"].(map[string]any)
	assert.Equal(t, "up", storeCheck["status"])

	rmqCheck := checks["rabbitmq"].(map[string]any)
	assert.Equal(t, "skipped", rmqCheck["status"])
}

type unreachableStore struct {
	store.Store
}

func (unreachableStore) Ping(ctx context.Context) error {
	return store.ErrUnavailable
}

func TestReady_StoreDown(t *testing.T) {
	handler := Ready(unreachableStore{store.NewMemoryStore()}, nil)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])
}
