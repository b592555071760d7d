// Package server serves a build output as a single-page application.
//
// Files holding placeholders are rendered once with the runtime config when
// the handler is built. Precompressed variants are served to clients that
// accept them and decoded for those that do not.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/lakukan/drive-web/internal/assetpath"
	"github.com/lakukan/drive-web/internal/precompress"
	"github.com/lakukan/drive-web/internal/runtimecfg"
)

// IndexFile is the document served for application routes.
const IndexFile = "index.html"

// Cache-Control values.
const (
	cacheNone      = "no-cache, no-store, must-revalidate"
	cacheShort     = "public, max-age=3600"
	cacheImmutable = "public, max-age=31536000, immutable"
)

// Options configures NewHandler.
type Options struct {
	// HashedDir holds content-hashed files, cached forever. Defaults to
	// "assets".
	HashedDir string
	// NoCache disables client caching, for the dev server.
	NoCache bool
}

// Handler serves the files of a build output.
type Handler struct {
	files     map[string]*file
	staticDir string
	hashedDir string
	noCache   bool
	modTime   time.Time
}

// file is one logical file with its encoded variants.
type file struct {
	// body is the identity content; nil when only variants were built.
	body     []byte
	variants map[string][]byte
	ctype    string
}

// pageData is the template data of rendered files.
type pageData struct {
	runtimecfg.Settings
	// Json is the injected object, as JSON.
	Json string //nolint:revive // placeholder name used by the pages.
	// PrefixScript installs the asset prefixing function.
	PrefixScript string
}

// NewHandler loads fsys and renders its templated files with cfg.
func NewHandler(fsys fs.FS, cfg *runtimecfg.Config, opts Options) (*Handler, error) {
	if cfg == nil {
		cfg = runtimecfg.New(runtimecfg.Settings{})
	}
	js, err := cfg.JSON()
	if err != nil {
		return nil, err
	}
	data := &pageData{
		Settings:     cfg.Settings(),
		Json:         string(js),
		PrefixScript: assetpath.PrefixScript(runtimecfg.GlobalName),
	}
	h := &Handler{
		files:     map[string]*file{},
		staticDir: staticPath(cfg.StaticURL()),
		hashedDir: opts.HashedDir,
		noCache:   opts.NoCache,
		modTime:   time.Now(),
	}
	if h.hashedDir == "" {
		h.hashedDir = "assets"
	}
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		b, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		name := p
		enc, encoded := precompress.ByExt(p)
		if encoded {
			name = strings.TrimSuffix(p, enc.Ext)
		}
		f := h.files[name]
		if f == nil {
			f = &file{variants: map[string][]byte{}, ctype: contentType(name)}
			h.files[name] = f
		}
		if encoded {
			f.variants[enc.Name] = b
		} else {
			f.body = b
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}
	rendered := 0
	for _, name := range slices.Sorted(maps.Keys(h.files)) {
		ok, err := h.files[name].render(name, data)
		if err != nil {
			return nil, err
		}
		if ok {
			rendered++
		}
	}
	slog.Debug("Assets loaded", "files", len(h.files), "rendered", rendered, "static", h.staticDir)
	return h, nil
}

// render substitutes the placeholders of a text file, re-encoding the
// variants it had.
func (f *file) render(name string, data *pageData) (bool, error) {
	switch path.Ext(name) {
	case ".html", ".js", ".mjs":
	default:
		return false, nil
	}
	src, err := f.identity()
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	if !assetpath.HasPlaceholders(src) {
		return false, nil
	}
	out, err := assetpath.Substitute(name, src, data)
	if err != nil {
		return false, err
	}
	for _, e := range precompress.All {
		if _, ok := f.variants[e.Name]; !ok {
			continue
		}
		if f.variants[e.Name], err = e.Compress(out); err != nil {
			return false, fmt.Errorf("%s: %w", name, err)
		}
	}
	f.body = out
	return true, nil
}

// identity returns the decoded content.
func (f *file) identity() ([]byte, error) {
	if f.body != nil {
		return f.body, nil
	}
	for _, e := range precompress.All {
		if b, ok := f.variants[e.Name]; ok {
			return e.Decompress(b)
		}
	}
	return nil, errors.New("no content")
}

func (f *file) encodings() []precompress.Encoding {
	var out []precompress.Encoding
	for _, e := range precompress.All {
		if _, ok := f.variants[e.Name]; ok {
			out = append(out, e)
		}
	}
	return out
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := h.resolve(r.URL.Path)
	f := h.files[name]
	switch {
	case f == nil && containsDot(name):
		http.NotFound(w, r)
		return
	case f == nil:
		// Application route: fall back to the index for client side routing.
		name = IndexFile
		if f = h.files[name]; f == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", cacheNone)
	default:
		w.Header().Set("Cache-Control", h.cacheControl(name))
	}
	h.serveFile(w, r, name, f)
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, name string, f *file) {
	encs := f.encodings()
	if len(encs) != 0 {
		w.Header().Add("Vary", "Accept-Encoding")
	}
	var body []byte
	if enc, ok := precompress.Negotiate(r.Header.Get("Accept-Encoding"), encs); ok {
		body = f.variants[enc.Name]
		w.Header().Set("Content-Encoding", enc.Name)
	} else {
		var err error
		if body, err = f.identity(); err != nil {
			slog.ErrorContext(r.Context(), "Failed to decode asset", "path", name, "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", f.ctype)
	http.ServeContent(w, r, name, h.modTime, bytes.NewReader(body))
}

// resolve maps a request path to a file name, stripping the static prefix.
func (h *Handler) resolve(p string) string {
	p = path.Clean("/" + p)
	if h.staticDir != "" && strings.HasPrefix(p, h.staticDir+"/") {
		p = strings.TrimPrefix(p, h.staticDir)
	}
	name := strings.TrimPrefix(p, "/")
	if name == "" {
		return IndexFile
	}
	return name
}

func (h *Handler) cacheControl(name string) string {
	switch {
	case h.noCache || name == IndexFile:
		return cacheNone
	case strings.HasPrefix(name, h.hashedDir+"/"):
		return cacheImmutable
	default:
		return cacheShort
	}
}

// staticPath returns the path part of the static base URL, without trailing
// slash; empty for the root.
func staticPath(staticURL string) string {
	p := staticURL
	if u, err := url.Parse(staticURL); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Clean("/" + p)
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// containsDot checks if the last path segment has an extension.
func containsDot(p string) bool {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return false
		}
		if p[i] == '.' {
			return true
		}
	}
	return false
}
