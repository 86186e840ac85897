package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medivault/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedStore() (*store.MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := store.NewMemoryStore()
	s.SetClock(clock.Now)
	return s, clock
}

func TestFixedWindow_LimitEnforced(t *testing.T) {
	s, clock := newClockedStore()
	fw := NewFixedWindow(s, 3, time.Minute)
	fw.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := fw.Check(ctx, "user:u1:api")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	s, clock := newClockedStore()
	fw := NewFixedWindow(s, 2, time.Minute)
	fw.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := fw.Check(ctx, "user:u1:api")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	clock.Advance(61 * time.Second)

	res, err := fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining, "full budget restored after the window elapses")
}

func TestFixedWindow_TTLRenewedOnAccept(t *testing.T) {
	// The window TTL is reset on every accepted request, so steady
	// sub-limit traffic keeps the same counter alive.
	s, clock := newClockedStore()
	fw := NewFixedWindow(s, 3, time.Minute)
	fw.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := fw.Check(ctx, "user:u1:api")
		require.NoError(t, err)
		require.True(t, res.Allowed)
		clock.Advance(45 * time.Second)
	}

	// 135s since the first request, but the counter never expired
	res, err := fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestFixedWindow_DenialDoesNotRenewWindow(t *testing.T) {
	s, clock := newClockedStore()
	fw := NewFixedWindow(s, 1, time.Minute)
	fw.now = clock.Now
	ctx := context.Background()

	res, err := fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	clock.Advance(30 * time.Second)
	res, err = fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// denial at t=30 must not extend the window past t=60
	clock.Advance(31 * time.Second)
	res, err = fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestFixedWindow_IndependentIdentifiers(t *testing.T) {
	s, clock := newClockedStore()
	fw := NewFixedWindow(s, 1, time.Minute)
	fw.now = clock.Now
	ctx := context.Background()

	res, err := fw.Check(ctx, "user:u1:api")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = fw.Check(ctx, "user:u2:api")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "other identifiers have their own budget")
}

// failingStore simulates an unreachable cache.
type failingStore struct {
	store.Store
}

func (f *failingStore) Incr(ctx context.Context, key string) (int64, error) {
	return 0, store.ErrUnavailable
}

func (f *failingStore) Get(ctx context.Context, key string, dest any) error {
	return store.ErrUnavailable
}

func TestFixedWindow_FailsOpen(t *testing.T) {
	fw := NewFixedWindow(&failingStore{Store: store.NewMemoryStore()}, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := fw.Check(ctx, "user:u1:api")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "store failure must not block traffic")
		assert.Equal(t, 3, res.Remaining)
	}
}

func TestSlidingWindow_Scenario(t *testing.T) {
	s, clock := newClockedStore()
	sw := NewSlidingWindow(s, 3, time.Minute)
	sw.now = clock.Now
	ctx := context.Background()

	start := clock.Now()

	// t=0, 10, 20: admitted
	for i, offset := range []time.Duration{0, 10 * time.Second, 20 * time.Second} {
		clock.t = start.Add(offset)
		res, err := sw.Check(ctx, "user:u1:chat")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i+1)
	}

	// t=30: denied
	clock.t = start.Add(30 * time.Second)
	res, err := sw.Check(ctx, "user:u1:chat")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt, "reset when the oldest entry leaves the window")

	// t=61: the first request has left the trailing window
	clock.t = start.Add(61 * time.Second)
	res, err = sw.Check(ctx, "user:u1:chat")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestSlidingWindow_FailsOpen(t *testing.T) {
	sw := NewSlidingWindow(&failingStore{Store: store.NewMemoryStore()}, 3, time.Minute)
	ctx := context.Background()

	res, err := sw.Check(ctx, "user:u1:chat")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBurst_BothWindowsEnforced(t *testing.T) {
	s, clock := newClockedStore()
	b := NewBurst(s, 100, 2, time.Hour)
	b.base.now = clock.Now
	b.burst.now = clock.Now
	ctx := context.Background()

	// burst limit of 2/min trips first
	for i := 0; i < 2; i++ {
		res, err := b.Check(ctx, "user:u1:upload")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := b.Check(ctx, "user:u1:upload")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// after the burst window passes, the hourly budget still admits
	clock.Advance(61 * time.Second)
	res, err = b.Check(ctx, "user:u1:upload")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBurst_RemainingIsMinimum(t *testing.T) {
	s, clock := newClockedStore()
	b := NewBurst(s, 5, 100, time.Hour)
	b.base.now = clock.Now
	b.burst.now = clock.Now
	ctx := context.Background()

	res, err := b.Check(ctx, "user:u1:upload")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining, "base window is the tighter budget")
}

func TestBurst_BaseDenialDoesNotConsumeBurst(t *testing.T) {
	s := store.NewMemoryStore()
	b := NewBurst(s, 1, 10, time.Hour)
	ctx := context.Background()

	res, err := b.Check(ctx, "user:u1:upload")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = b.Check(ctx, "user:u1:upload")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// the denied request never reached the secondary window
	var burstCount int64
	require.NoError(t, s.Get(ctx, "rate_limit:user:u1:upload:burst", &burstCount))
	assert.Equal(t, int64(1), burstCount)
}

func TestCategoryByName(t *testing.T) {
	c, ok := CategoryByName("auth")
	require.True(t, ok)
	assert.Equal(t, 5, c.Limit)
	assert.Equal(t, 5*time.Minute, c.Window)

	_, ok = CategoryByName("nonexistent")
	assert.False(t, ok)
}

func TestForCategory_FallsBackToAPI(t *testing.T) {
	s := store.NewMemoryStore()
	fw := ForCategory(s, "nonexistent")
	require.NotNil(t, fw)
	assert.Equal(t, 100, fw.limit)
	assert.Equal(t, 15*time.Minute, fw.window)
}
