package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(Rate{Requests: 5, Window: time.Minute, Burst: 5})
	defer l.Close()

	for i := range 5 {
		res := l.Allow("k")
		if !res.Allowed {
			t.Errorf("request %d refused", i+1)
		}
		if res.Limit != 5 {
			t.Errorf("Limit = %d, want 5", res.Limit)
		}
		if res.RetryAfter != 0 {
			t.Errorf("RetryAfter = %v on an allowed request", res.RetryAfter)
		}
	}
	res := l.Allow("k")
	if res.Allowed {
		t.Error("6th request allowed")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
	if !l.Allow("other").Allowed {
		t.Error("a different key shares the bucket")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLimiter_Prune(t *testing.T) {
	l := NewLimiter(Rate{Requests: 60, Window: time.Minute, Burst: 1})
	defer l.Close()
	l.Allow("a")
	// The bucket is refilled after one second and idle after ten minutes.
	l.prune(time.Now().Add(5 * time.Minute))
	if l.Len() != 1 {
		t.Errorf("Len() = %d, pruned too early", l.Len())
	}
	l.prune(time.Now().Add(11 * time.Minute))
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
	l.Close()
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    Rate
		wantErr bool
	}{
		{in: "600/1m", want: Rate{Requests: 600, Window: time.Minute, Burst: 600}},
		{in: "10/1s:20", want: Rate{Requests: 10, Window: time.Second, Burst: 20}},
		{in: " 6000/1m0s:1000 ", want: DefaultRate},
		{in: "600", wantErr: true},
		{in: "x/1m", wantErr: true},
		{in: "0/1m", wantErr: true},
		{in: "10/forever", wantErr: true},
		{in: "10/1m:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRate() = %+v, want %+v", got, tt.want)
			}
		})
	}
	if s := DefaultRate.String(); s != "6000/1m0s:1000" {
		t.Errorf("String() = %q", s)
	}
}

func TestWriteHeaders(t *testing.T) {
	tests := []struct {
		name      string
		result    Result
		wantRetry string
	}{
		{"allowed", Result{Allowed: true, Limit: 60, Remaining: 45, ResetAt: time.Unix(1706012345, 0)}, ""},
		{"refused", Result{Limit: 60, ResetAt: time.Unix(1706012345, 0), RetryAfter: 30 * time.Second}, "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteHeaders(w, tt.result)
			if got := w.Header().Get("X-RateLimit-Limit"); got != "60" {
				t.Errorf("X-RateLimit-Limit = %s", got)
			}
			if got := w.Header().Get("X-RateLimit-Reset"); got != "1706012345" {
				t.Errorf("X-RateLimit-Reset = %s", got)
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetry)
			}
		})
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey(ScopeIP, "10.0.0.1", "static"); got != "ip:10.0.0.1:static" {
		t.Errorf("BuildKey(ip) = %s", got)
	}
	if got := BuildKey(ScopeGlobal, "10.0.0.1", "static"); got != "global:static" {
		t.Errorf("BuildKey(global) = %s", got)
	}
}

func TestHandler(t *testing.T) {
	tier := NewTier("static", ScopeIP, Rate{Requests: 2, Window: time.Minute, Burst: 2})
	defer tier.Close()
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	h := Handler(tier, func(r *http.Request) string { return r.RemoteAddr }, ok)
	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}
	for range 2 {
		if w := do("a"); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("code = %d headers = %v", w.Code, w.Header())
		}
	}
	w := do("a")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if w := do("b"); w.Code != http.StatusOK {
		t.Errorf("other client code = %d", w.Code)
	}
	if Handler(nil, nil, ok) == nil {
		t.Error("nil tier must pass through")
	}
}
