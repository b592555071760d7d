package reqctx

import (
	"context"
	"net/http"
	"testing"

	"github.com/maruel/ksid"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For single", map[string]string{"X-Forwarded-For": "203.0.113.195"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Forwarded-For chain", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Forwarded-For spaces", map[string]string{"X-Forwarded-For": "  203.0.113.195  "}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.7"}, "127.0.0.1:8080", "203.0.113.7"},
		{"X-Forwarded-For first", map[string]string{"X-Forwarded-For": "203.0.113.195", "X-Real-IP": "10.0.0.1"}, "127.0.0.1:8080", "203.0.113.195"},
		{"RemoteAddr with port", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"RemoteAddr without port", nil, "192.168.1.1", "192.168.1.1"},
		{"IPv6 RemoteAddr", nil, "[::1]:8080", "::1"},
		{"IPv6 X-Forwarded-For", map[string]string{"X-Forwarded-For": "2001:db8::1"}, "127.0.0.1:8080", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if ClientIP(ctx) != "" || RequestID(ctx) != 0 {
		t.Error("empty context must return zero values")
	}
	id := ksid.NewID()
	ctx = WithRequestID(WithClientIP(ctx, "10.0.0.1"), id)
	if ClientIP(ctx) != "10.0.0.1" {
		t.Errorf("ClientIP() = %q", ClientIP(ctx))
	}
	if RequestID(ctx) != id {
		t.Errorf("RequestID() = %v, want %v", RequestID(ctx), id)
	}
}
