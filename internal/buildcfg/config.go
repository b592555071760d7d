// Package buildcfg computes the configuration of one build or dev server
// invocation.
//
// The mode-independent part (plugins, aliases) is shared; the mode-specific
// part is a tagged variant holding either a *Development or a *Production,
// never both.
package buildcfg

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/lakukan/drive-web/internal/assetpath"
	"github.com/lakukan/drive-web/internal/chunks"
	"github.com/lakukan/drive-web/internal/externals"
)

// Mode is the orchestrator invocation mode.
type Mode string

const (
	// ModeDevelop runs the development server.
	ModeDevelop Mode = "develop"
	// ModeBuild produces deployable output.
	ModeBuild Mode = "produce-output"
)

// Environment variables read in development mode.
const (
	EnvBackendURL   = "BACKEND_URL"
	EnvBackendWSURL = "BACKEND_WS_URL"
)

// Default backend origins.
const (
	DefaultBackendURL   = "http://127.0.0.1:8080"
	DefaultBackendWSURL = "ws://127.0.0.1:8080"
)

// Paths forwarded to the backend in development mode.
const (
	CommandPath = "/api/command"
	APIPrefix   = "/api"
)

// Env looks up an environment variable. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// Plugins are the pipeline stages shared by both modes.
type Plugins struct {
	I18n        I18n
	Legacy      Legacy
	Compression Compression
}

// Config is the configuration of one invocation.
type Config struct {
	// Root is the absolute front-end source root.
	Root    string
	Plugins Plugins
	// Aliases maps import prefixes to absolute paths.
	Aliases map[string]string
	Mode    ModeConfig
}

// ModeConfig is implemented by *Development and *Production only.
type ModeConfig interface {
	Mode() Mode
	isModeConfig()
}

// Development is the dev server payload.
type Development struct {
	Listen       string
	AllowedHosts []string
	// Proxy rules are matched in order; the first match wins.
	Proxy []ProxyRule
}

// ProxyRule forwards requests under Path to Target.
type ProxyRule struct {
	Path   string
	Target *url.URL
	// Stream marks the path as eligible for a streaming upgrade.
	Stream bool
}

// Match reports whether the request path falls under the rule.
func (r *ProxyRule) Match(p string) bool {
	return p == r.Path || strings.HasPrefix(p, strings.TrimSuffix(r.Path, "/")+"/")
}

// Production is the build payload.
type Production struct {
	// Base is the public base path baked into the build; empty keeps every
	// reference relocatable.
	Base string
	// Input maps entry names to absolute HTML paths.
	Input  map[string]string
	OutDir string
	// PublicDir is the absolute directory copied as is; empty for none.
	PublicDir string
	// External marks references left for the browser to fetch.
	External externals.Rule
	// Chunks are the manual chunk rules, in evaluation order.
	Chunks       []chunks.Rule
	StrictChunks bool
	Assets       *assetpath.Rewriter
}

// Mode implements ModeConfig.
func (*Development) Mode() Mode { return ModeDevelop }

func (*Development) isModeConfig() {}

// Mode implements ModeConfig.
func (*Production) Mode() Mode { return ModeBuild }

func (*Production) isModeConfig() {}

// Load computes the configuration for mode. Environment variables are read
// here, once, and only in development mode.
func Load(mode Mode, p *Project, env Env) (*Config, error) {
	if p == nil {
		p = DefaultProject()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	root, err := p.RootDir()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Root: root,
		Plugins: Plugins{
			I18n:        I18n{Include: filepath.Join(root, p.I18n.Include)},
			Legacy:      p.Legacy,
			Compression: p.Compression,
		},
		Aliases: make(map[string]string, len(p.Aliases)),
	}
	for k, v := range p.Aliases {
		abs := filepath.Join(root, v)
		if strings.HasSuffix(v, "/") {
			abs += string(filepath.Separator)
		}
		cfg.Aliases[k] = abs
	}
	switch mode {
	case ModeDevelop:
		cfg.Mode, err = loadDevelopment(p, env)
		if err != nil {
			return nil, err
		}
	case ModeBuild:
		cfg.Mode = loadProduction(p, root)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return cfg, nil
}

func loadDevelopment(p *Project, env Env) (*Development, error) {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	backend, err := backendURL(env, EnvBackendURL, DefaultBackendURL, "http", "https")
	if err != nil {
		return nil, err
	}
	backendWS, err := backendURL(env, EnvBackendWSURL, DefaultBackendWSURL, "ws", "wss", "http", "https")
	if err != nil {
		return nil, err
	}
	return &Development{
		Listen:       p.Listen,
		AllowedHosts: append([]string(nil), p.AllowedHosts...),
		Proxy: []ProxyRule{
			{Path: CommandPath, Target: backendWS, Stream: true},
			{Path: APIPrefix, Target: backend},
		},
	}, nil
}

func loadProduction(p *Project, root string) *Production {
	in := make(map[string]string, len(p.Input))
	for name, path := range p.Input {
		in[name] = filepath.Join(root, path)
	}
	publicDir := ""
	if p.PublicDir != "" {
		publicDir = filepath.Join(root, p.PublicDir)
	}
	return &Production{
		Input:        in,
		PublicDir:    publicDir,
		OutDir:       filepath.Join(root, p.OutDir),
		External:     externals.IsExternal,
		Chunks:       append([]chunks.Rule(nil), chunks.DefaultRules...),
		StrictChunks: p.StrictChunks,
		Assets:       &assetpath.Rewriter{},
	}
}

// backendURL reads key from env, falling back to def when unset or empty.
func backendURL(env Env, key, def string, schemes ...string) (*url.URL, error) {
	raw, ok := env(key)
	if !ok || raw == "" {
		raw = def
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return nil, fmt.Errorf("%s: %q has no host", key, raw)
			}
			return u, nil
		}
	}
	return nil, fmt.Errorf("%s: unsupported scheme %q, want one of %s", key, u.Scheme, strings.Join(schemes, ", "))
}
