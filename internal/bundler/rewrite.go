package bundler

import (
	"regexp"

	"github.com/lakukan/drive-web/internal/assetpath"
)

// publicPathSentinel is handed to esbuild as the public path. Every asset
// reference in the output starts with it, and rewriteOutput replaces it per
// host type, so no prefix ever reaches the final files.
const publicPathSentinel = "__DRIVE_WEB_STATIC__"

var (
	// A quoted string literal in emitted JavaScript.
	jsRefRe = regexp.MustCompile("([\"'`])" + publicPathSentinel + "/([^\"'`]*)[\"'`]")
	// A url() argument in emitted CSS, quoted or not.
	cssRefRe = regexp.MustCompile(publicPathSentinel + `/([^"')\s]+)`)
)

// rewriteOutput rewrites the asset references in the file at rel, a slash
// separated path relative to the output root.
func rewriteOutput(rw *assetpath.Rewriter, rel string, contents []byte) []byte {
	switch assetKind(rel) {
	case kindJS:
		return jsRefRe.ReplaceAllFunc(contents, func(m []byte) []byte {
			sub := jsRefRe.FindSubmatch(m)
			return []byte(rw.Resolve(string(sub[2]), assetpath.HostJS, rel).Value)
		})
	case kindCSS:
		return cssRefRe.ReplaceAllFunc(contents, func(m []byte) []byte {
			sub := cssRefRe.FindSubmatch(m)
			return []byte(rw.Resolve(string(sub[1]), assetpath.HostOther, rel).Value)
		})
	default:
		return contents
	}
}

type kind int

const (
	kindOther kind = iota
	kindJS
	kindCSS
	kindMap
)

func assetKind(rel string) kind {
	switch {
	case hasExt(rel, ".js", ".mjs"):
		return kindJS
	case hasExt(rel, ".css"):
		return kindCSS
	case hasExt(rel, ".map"):
		return kindMap
	default:
		return kindOther
	}
}
