// Request metadata, logging and rate limiting middleware.

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lakukan/drive-web/internal/server/ratelimit"
	"github.com/lakukan/drive-web/internal/server/reqctx"
	"github.com/maruel/ksid"
)

// Wrap adds request metadata and logging to next, and rate limiting when
// tier is not nil.
func Wrap(next http.Handler, tier *ratelimit.Tier) http.Handler {
	limited := ratelimit.Handler(tier, reqctx.GetClientIP, next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
		ctx = reqctx.WithRequestID(ctx, ksid.NewID())
		r = r.WithContext(ctx)
		rec := &statusRecorder{ResponseWriter: w}
		limited.ServeHTTP(rec, r)
		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "http",
			"id", reqctx.RequestID(ctx).String(),
			"m", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode(),
			"size", rec.size,
			"ip", reqctx.ClientIP(ctx),
			"dur", time.Since(start).Round(time.Microsecond),
		)
	})
}

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the connection, which upgraded
// requests need.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) statusCode() int {
	if s.status == 0 {
		// Hijacked or empty response.
		return http.StatusOK
	}
	return s.status
}
