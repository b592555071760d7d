// Package ratelimit throttles asset requests with per-key token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in the current window
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // zero when allowed
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	window  time.Duration
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows r.Requests per r.Window with bursts of r.Burst. Close
// stops the background pruning of idle buckets.
func NewLimiter(r Rate) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(r.Requests) / r.Window.Seconds()),
		burst:   r.Burst,
		window:  r.Window,
		idle:    10 * time.Minute,
		stop:    make(chan struct{}),
	}
	go l.pruneLoop()
	return l
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	allowed := res.OK() && res.Delay() == 0
	if !allowed && res.OK() {
		res.CancelAt(now)
	}
	tokens := b.limiter.TokensAt(now)
	out := Result{
		Allowed:   allowed,
		Limit:     int(math.Round(float64(l.rate) * l.window.Seconds())),
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))),
	}
	if !allowed {
		out.RetryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return out
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) pruneLoop() {
	t := time.NewTicker(l.idle)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.prune(now)
		case <-l.stop:
			return
		}
	}
}

// prune drops buckets idle since before now minus the idle period and full
// again, so forgetting them changes nothing.
func (l *Limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := now.Add(-l.idle)
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the pruning goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
