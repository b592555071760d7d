// HTTP headers, response writer and middleware.

package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteHeaders writes the rate limit headers. Retry-After is only set when
// the request was refused.
func WriteHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// responseWriter injects the headers before the status line goes out.
type responseWriter struct {
	http.ResponseWriter
	result      Result
	wroteHeader bool
}

// NewResponseWriter wraps w so the headers of result are always sent.
func NewResponseWriter(w http.ResponseWriter, result Result) http.ResponseWriter {
	return &responseWriter{ResponseWriter: w, result: result}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		WriteHeaders(rw.ResponseWriter, rw.result)
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// BuildKey returns the bucket key of identifier in tier.
func BuildKey(scope Scope, identifier, tier string) string {
	switch scope {
	case ScopeIP:
		return "ip:" + identifier + ":" + tier
	case ScopeGlobal:
		return "global:" + tier
	default:
		return "unknown:" + identifier + ":" + tier
	}
}

// Handler refuses requests over the tier's budget with 429. identify returns
// the client identifier, typically its IP. A nil tier disables limiting.
func Handler(tier *Tier, identify func(*http.Request) string, next http.Handler) http.Handler {
	if tier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := tier.Limiter.Allow(BuildKey(tier.Scope, identify(r), tier.Name))
		w = NewResponseWriter(w, result)
		if !result.Allowed {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
