package store

import (
	"fmt"
	"sync"
	"time"
)

// Usage tracks per-app resource consumption in hourly buckets. Counters are
// keyed (app_id, resource, hour bucket); a new bucket key implicitly resets
// the count to zero, so periods roll over without a sweeper.
type Usage struct {
	mu       sync.RWMutex
	counters map[string]int
	now      func() time.Time
}

// NewUsage creates an empty usage store.
func NewUsage() *Usage {
	return &Usage{
		counters: make(map[string]int),
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests exercising bucket rollover.
func (u *Usage) WithClock(now func() time.Time) *Usage {
	u.now = now
	return u
}

// bucketKey is (app_id, resource, hour bucket) flattened to one string.
func (u *Usage) bucketKey(appID, resource string, t time.Time) string {
	return fmt.Sprintf("%s|%s|%s", appID, resource, t.UTC().Format("2006010215"))
}

// Current returns this hour's count for (appID, resource).
func (u *Usage) Current(appID, resource string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counters[u.bucketKey(appID, resource, u.now())]
}

// Increment adds one to this hour's count and returns the new value.
func (u *Usage) Increment(appID, resource string) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := u.bucketKey(appID, resource, u.now())
	u.counters[key]++
	return u.counters[key]
}

// Snapshot returns this hour's counts for one app across all resources.
func (u *Usage) Snapshot(appID string) map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	prefix := appID + "|"
	suffix := "|" + u.now().UTC().Format("2006010215")

	out := make(map[string]int)
	for key, count := range u.counters {
		if len(key) > len(prefix)+len(suffix) &&
			key[:len(prefix)] == prefix &&
			key[len(key)-len(suffix):] == suffix {
			resource := key[len(prefix) : len(key)-len(suffix)]
			out[resource] = count
		}
	}
	return out
}
