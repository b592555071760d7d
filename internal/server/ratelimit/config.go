// Rate parsing and tiers.

package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is a request budget.
type Rate struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// DefaultRate is generous enough for a page load fetching every chunk.
var DefaultRate = Rate{Requests: 6000, Window: time.Minute, Burst: 1000}

// ParseRate parses "<requests>/<window>[:<burst>]", e.g. "600/1m:100". The
// burst defaults to the request count.
func ParseRate(s string) (Rate, error) {
	head, burst, hasBurst := strings.Cut(strings.TrimSpace(s), ":")
	req, win, ok := strings.Cut(head, "/")
	if !ok {
		return Rate{}, fmt.Errorf("invalid rate %q: want <requests>/<window>", s)
	}
	var r Rate
	var err error
	if r.Requests, err = strconv.Atoi(req); err != nil || r.Requests <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: bad request count", s)
	}
	if r.Window, err = time.ParseDuration(win); err != nil || r.Window <= 0 {
		return Rate{}, fmt.Errorf("invalid rate %q: bad window", s)
	}
	r.Burst = r.Requests
	if hasBurst {
		if r.Burst, err = strconv.Atoi(burst); err != nil || r.Burst <= 0 {
			return Rate{}, fmt.Errorf("invalid rate %q: bad burst", s)
		}
	}
	return r, nil
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%s:%d", r.Requests, r.Window, r.Burst)
}

// Scope defines how bucket keys are derived.
type Scope int

const (
	// ScopeIP keys buckets by client IP.
	ScopeIP Scope = iota
	// ScopeGlobal shares one bucket between every client.
	ScopeGlobal
)

// Tier is a named limiter with its scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// NewTier returns a tier over a fresh limiter.
func NewTier(name string, scope Scope, r Rate) *Tier {
	return &Tier{Name: name, Limiter: NewLimiter(r), Scope: scope}
}

// Close stops the tier's limiter.
func (t *Tier) Close() {
	t.Limiter.Close()
}
