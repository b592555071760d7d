// Package assetpath decides how built output references its own assets so
// that one build can be served under any path prefix.
//
// Nothing here knows the prefix. Script references call a prefixing function
// the page installs before any bundle runs, HTML references carry a
// placeholder the server substitutes, and everything else is relative.
package assetpath

import (
	"path"
	"strconv"
	"strings"
)

// PrefixFunc is the name of the global function the serving page installs.
const PrefixFunc = "__prependStaticUrl"

// StaticURLPlaceholder is substituted by the server with the static base URL.
const StaticURLPlaceholder = "[{[ .StaticURL ]}]"

// HostType is the kind of file holding an asset reference.
type HostType int

const (
	// HostOther covers CSS and any other asset kind.
	HostOther HostType = iota
	// HostJS is a script bundle.
	HostJS
	// HostHTML is the generated document.
	HostHTML
)

func (h HostType) String() string {
	switch h {
	case HostJS:
		return "js"
	case HostHTML:
		return "html"
	default:
		return "other"
	}
}

// ReferenceKind tells how a Reference must be emitted.
type ReferenceKind int

const (
	// Runtime is a JavaScript expression evaluated in the browser.
	Runtime ReferenceKind = iota
	// Literal is text emitted as is.
	Literal
	// Relative is a path relative to the referencing file.
	Relative
)

// Reference is the emitted form of an asset reference.
type Reference struct {
	Kind  ReferenceKind
	Value string
}

// Rewriter resolves asset references per host type.
type Rewriter struct {
	// Func is the global prefixing function; defaults to PrefixFunc.
	Func string
	// Placeholder is the HTML prefix token; defaults to StaticURLPlaceholder.
	Placeholder string
}

// Resolve returns how a file of type host refers to filename.
//
// filename and importer are paths relative to the output root, using forward
// slashes. importer is only used for HostOther.
func (rw *Rewriter) Resolve(filename string, host HostType, importer string) Reference {
	filename = strings.TrimLeft(filename, "/")
	switch host {
	case HostJS:
		fn := rw.Func
		if fn == "" {
			fn = PrefixFunc
		}
		return Reference{Kind: Runtime, Value: "window." + fn + "(" + strconv.Quote(filename) + ")"}
	case HostHTML:
		p := rw.Placeholder
		if p == "" {
			p = StaticURLPlaceholder
		}
		return Reference{Kind: Literal, Value: p + "/" + filename}
	default:
		return Reference{Kind: Relative, Value: relativeTo(path.Dir(strings.TrimLeft(importer, "/")), filename)}
	}
}

// relativeTo returns target relative to dir. Both are slash separated and
// relative to the same root.
func relativeTo(dir, target string) string {
	if dir == "." || dir == "" {
		return "./" + target
	}
	from := strings.Split(dir, "/")
	to := strings.Split(target, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var b strings.Builder
	for range len(from) - i {
		b.WriteString("../")
	}
	if b.Len() == 0 {
		b.WriteString("./")
	}
	b.WriteString(strings.Join(to[i:], "/"))
	return b.String()
}

// Prefixer is the runtime prefixing capability: it maps a build relative
// filename to the URL the browser fetches.
type Prefixer func(filename string) string

// NewPrefixer returns the Prefixer for a static base URL. It mirrors the
// function the page installs as window.__prependStaticUrl.
func NewPrefixer(staticURL string) Prefixer {
	base := strings.TrimRight(staticURL, "/")
	return func(filename string) string {
		return base + "/" + strings.TrimLeft(filename, "/")
	}
}

// PrefixScript is the script defining the prefixing function in the page. It
// reads the static base from the injected config object named global.
func PrefixScript(global string) string {
	return "window." + PrefixFunc + " = (url) => `${window." + global + ".StaticURL}/${url.replace(/^\\/+/, \"\")}`;"
}
