package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket keys for the two upstream dependencies.
const (
	BucketGeocode  = "nominatim"
	BucketOverpass = "overpass"
)

// BucketSpec describes a courtesy token bucket: one token refills every
// RefillEvery, up to Burst stored tokens.
type BucketSpec struct {
	RefillEvery time.Duration
	Burst       int
}

// TokenBuckets holds one non-blocking token bucket per upstream dependency.
// Take never blocks; callers decide what refusal means for their dependency.
type TokenBuckets struct {
	mu      sync.Mutex
	specs   map[string]BucketSpec
	buckets map[string]*rate.Limiter
}

// NewTokenBuckets builds buckets for the given specs. Unknown keys are
// unlimited.
func NewTokenBuckets(specs map[string]BucketSpec) *TokenBuckets {
	return &TokenBuckets{
		specs:   specs,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Take consumes a token for key if one is available and reports whether it
// did. The critical section only covers bucket creation; rate.Limiter is
// safe for concurrent use.
func (t *TokenBuckets) Take(key string) bool {
	t.mu.Lock()
	limiter, ok := t.buckets[key]
	if !ok {
		spec, known := t.specs[key]
		if !known {
			t.mu.Unlock()
			return true
		}
		limiter = rate.NewLimiter(rate.Every(spec.RefillEvery), spec.Burst)
		t.buckets[key] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow()
}
