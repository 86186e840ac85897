package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleCleanupInterval = 5 * time.Minute
	throttleEntryTTL        = 15 * time.Minute
)

type throttleEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle is an in-process per-IP token bucket guarding routes that
// bypass the store-backed limits, such as the metrics and health
// endpoints. It needs no store round-trip and keeps working when the
// store is down.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	rate    rate.Limit
	burst   int
	stopCh  chan struct{}
}

func NewThrottle(requestsPerSecond float64, burst int) *Throttle {
	t := &Throttle{
		entries: make(map[string]*throttleEntry),
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(throttleCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.cleanup()
		}
	}
}

func (t *Throttle) cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-throttleEntryTTL)
	for key, entry := range t.entries {
		if entry.lastAccess.Before(cutoff) {
			delete(t.entries, key)
		}
	}
}

func (t *Throttle) Stop() {
	close(t.stopCh)
}

func (t *Throttle) limiterFor(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.entries[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (t *Throttle) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !t.limiterFor(r.RemoteAddr).Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
