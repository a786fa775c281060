package security

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultLockoutWindow is the trailing window within which failures
	// accumulate toward a lockout.
	DefaultLockoutWindow = 30 * time.Minute
	// DefaultLockoutThreshold is how many failures within the window
	// lock an address out.
	DefaultLockoutThreshold = 5
)

type failureEntry struct {
	Count       int
	LastFailure time.Time
}

// LockoutTracker keeps best-effort, in-memory failure counters per
// source address. Counters do not survive a restart; the durable
// per-user lockout decision is derived from the security event log
// instead. An address whose last failure is older than the window is
// evicted on the next check, not merely reset.
type LockoutTracker struct {
	mu        sync.Mutex
	failures  *ttlcache.Cache[string, failureEntry]
	window    time.Duration
	threshold int
	now       func() time.Time
}

// NewLockoutTracker creates a tracker with the given window and
// threshold. Non-positive arguments fall back to the defaults.
func NewLockoutTracker(window time.Duration, threshold int) *LockoutTracker {
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, failureEntry](window),
		ttlcache.WithDisableTouchOnHit[string, failureEntry](),
	)
	go cache.Start()

	return &LockoutTracker{
		failures:  cache,
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
}

// TrackFailure records a failed attempt from the given address. The
// increment-and-read is atomic: concurrent failures from the same
// address never lose updates.
func (t *LockoutTracker) TrackFailure(sourceIP string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := failureEntry{Count: 1, LastFailure: t.now()}
	if item := t.failures.Get(sourceIP); item != nil {
		prev := item.Value()
		// A stale counter restarts at one rather than accumulating
		// across windows.
		if t.now().Sub(prev.LastFailure) <= t.window {
			entry.Count = prev.Count + 1
		}
	}
	t.failures.Set(sourceIP, entry, t.window)

	return entry.Count
}

// IsLocked reports whether the address has reached the failure
// threshold within the trailing window. A counter whose window has
// elapsed is evicted here and the address treated as clean.
func (t *LockoutTracker) IsLocked(sourceIP string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	item := t.failures.Get(sourceIP)
	if item == nil {
		return false
	}

	entry := item.Value()
	if t.now().Sub(entry.LastFailure) > t.window {
		t.failures.Delete(sourceIP)
		return false
	}

	return entry.Count >= t.threshold
}

// Clear removes the address's counter entirely, typically on a
// successful authentication.
func (t *LockoutTracker) Clear(sourceIP string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures.Delete(sourceIP)
}

// Close stops the cache's cleanup goroutine.
func (t *LockoutTracker) Close() {
	t.failures.Stop()
}
