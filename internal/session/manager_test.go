package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medivault/internal/domain"
	"medivault/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := store.NewMemoryStore()
	s.SetClock(clock.Now)

	m := NewManager(s, Config{TTL: time.Hour, MaxPerUser: 3})
	m.now = clock.Now
	return m, s, clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestManager_CreateAndGet(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", map[string]string{"role": "clinician", "ip_address": "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, 3600, s.TTLSeconds)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "clinician", got.Role())

	_, err = m.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_EvictsLeastRecentlyActive(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	// three sessions with distinct activity times, oldest first
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := m.Create(ctx, "u1", nil)
		require.NoError(t, err)
		ids = append(ids, s.ID)
		clock.Advance(time.Minute)
	}

	// a fourth session must evict the oldest
	s4, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	_, err = m.Get(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "oldest session should be evicted")

	for _, id := range append(ids[1:], s4.ID) {
		_, err := m.Get(ctx, id)
		assert.NoError(t, err, "recent sessions should survive")
	}

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total, "cap is never exceeded")
}

func TestManager_EvictionPrefersActivityOverCreation(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	s1, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	s2, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	// touching s1 makes s2 the least recently active
	_, err = m.Refresh(ctx, s1.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	_, err = m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	_, err = m.Get(ctx, s1.ID)
	assert.NoError(t, err, "refreshed session should survive")
	_, err = m.Get(ctx, s2.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_RefreshExpired(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	clock.Advance(61 * time.Minute)

	_, err = m.Refresh(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	// deleted as a side effect
	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_RefreshRenews(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	refreshed, err := m.Refresh(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), refreshed.LastActivity)

	// another 50 minutes of idle time is fine after the refresh
	clock.Advance(50 * time.Minute)
	_, err = m.Refresh(ctx, s.ID)
	assert.NoError(t, err)
}

func TestManager_DestroyIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	n, err := m.Destroy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Destroy(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestManager_DestroyAllForUser(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, "u1", nil)
		require.NoError(t, err)
	}
	other, err := m.Create(ctx, "u2", nil)
	require.NoError(t, err)

	n, err := m.DestroyAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = m.Get(ctx, other.ID)
	assert.NoError(t, err, "other user's session untouched")
}

func TestManager_CleanupExpired(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	s1, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)
	clock.Advance(40 * time.Minute)
	s2, err := m.Create(ctx, "u2", nil)
	require.NoError(t, err)

	// s1 is now idle past its TTL, s2 is not. The memory store would
	// also expire s1's key by TTL; refresh its activity stamp under a
	// shorter horizon by writing sessions whose key outlives idleness.
	clock.Advance(25 * time.Minute)

	cleaned, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleaned, "key TTL already removed the idle session")

	_, err = m.Get(ctx, s1.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = m.Get(ctx, s2.ID)
	assert.NoError(t, err)
}

func TestManager_CleanupExpiredSweepsStaleActivity(t *testing.T) {
	m, s, clock := newTestManager(t)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	// simulate a session whose key is still live but whose activity
	// stamp is stale (e.g. TTL renewed by a concurrent writer)
	sess.LastActivity = clock.Now().Add(-2 * time.Hour)
	require.NoError(t, s.Set(ctx, "session:"+sess.ID, sess, time.Hour))

	cleaned, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned)

	_, err = m.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_Stats(t *testing.T) {
	m, s, clock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, "u1", nil)
	require.NoError(t, err)

	stale, err := m.Create(ctx, "u2", nil)
	require.NoError(t, err)
	stale.LastActivity = clock.Now().Add(-2 * time.Hour)
	require.NoError(t, s.Set(ctx, "session:"+stale.ID, stale, time.Hour))

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)
}
