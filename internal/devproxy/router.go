// Package devproxy is the development server front door: it checks the Host
// header and forwards API and real-time command traffic to a separately
// running backend.
package devproxy

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/lakukan/drive-web/internal/buildcfg"
	"golang.org/x/net/http/httpguts"
)

// Router forwards matching requests to the backend and hands everything else
// to the dev asset handler.
type Router struct {
	allowed map[string]struct{}
	routes  []route
	next    http.Handler
}

type route struct {
	rule  buildcfg.ProxyRule
	proxy *httputil.ReverseProxy
}

// New returns a Router for cfg. next serves requests no proxy rule claims.
func New(cfg *buildcfg.Development, next http.Handler) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("devproxy: nil development config")
	}
	if next == nil {
		next = http.NotFoundHandler()
	}
	rt := &Router{allowed: make(map[string]struct{}, len(cfg.AllowedHosts)), next: next}
	for _, h := range cfg.AllowedHosts {
		rt.allowed[strings.ToLower(h)] = struct{}{}
	}
	for _, r := range cfg.Proxy {
		if r.Target == nil {
			return nil, errors.New("devproxy: proxy rule " + r.Path + " has no target")
		}
		rt.routes = append(rt.routes, route{rule: r, proxy: newProxy(r.Target)})
	}
	return rt, nil
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !rt.hostAllowed(r.Host) {
		slog.WarnContext(r.Context(), "Blocked request", "host", r.Host, "path", r.URL.Path)
		http.Error(w, "Blocked request. This host is not allowed.", http.StatusForbidden)
		return
	}
	for i := range rt.routes {
		rte := &rt.routes[i]
		if !rte.rule.Match(r.URL.Path) {
			continue
		}
		// Only upgrade requests take the streaming route; plain requests to
		// the same path fall through to the regular API rule. Other rules
		// carry both, so an upgrade elsewhere under /api reaches the HTTP
		// backend.
		if rte.rule.Stream && !isUpgrade(r) {
			continue
		}
		slog.DebugContext(r.Context(), "Proxy", "path", r.URL.Path, "target", rte.rule.Target.String(), "stream", rte.rule.Stream)
		rte.proxy.ServeHTTP(w, r)
		return
	}
	rt.next.ServeHTTP(w, r)
}

// hostAllowed checks the Host header, ignoring the port.
func (rt *Router) hostAllowed(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	_, ok := rt.allowed[host]
	return ok
}

func isUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" && httpguts.HeaderValuesContainsToken(r.Header["Connection"], "upgrade")
}

// newProxy returns a reverse proxy to target. ws and wss targets are dialled
// as http and https; httputil.ReverseProxy carries the upgrade itself.
//
// The incoming Host header is kept so the backend's origin check sees the
// same host the browser used.
func newProxy(target *url.URL) *httputil.ReverseProxy {
	dial := *target
	switch dial.Scheme {
	case "ws":
		dial.Scheme = "http"
	case "wss":
		dial.Scheme = "https"
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(&dial)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.WarnContext(r.Context(), "Backend unreachable", "target", target.String(), "path", r.URL.Path, "err", err)
			http.Error(w, "Backend unreachable: "+err.Error(), http.StatusBadGateway)
		},
	}
}
