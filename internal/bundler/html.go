package bundler

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/lakukan/drive-web/internal/assetpath"
	"github.com/lakukan/drive-web/internal/externals"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// document is an HTML input with the local entries it references.
type document struct {
	name string
	root *html.Node
	refs []entryRef
}

// entryRef is a script or stylesheet element pointing at a source file.
type entryRef struct {
	node *html.Node
	attr string
	// src is the absolute source path.
	src string
}

// parseDocument reads the HTML input at file. Sources starting with "/" are
// relative to root, others to the document.
func parseDocument(name, file, root string, external externals.Rule) (*document, error) {
	raw, err := os.ReadFile(file) //nolint:gosec // G304: input comes from the project file
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	n, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	d := &document{name: name, root: n}
	for el := range n.Descendants() {
		if el.Type != html.ElementNode {
			continue
		}
		var attr string
		switch {
		case el.DataAtom == atom.Script && getAttr(el, "type") == "module":
			attr = "src"
		case el.DataAtom == atom.Link && strings.EqualFold(getAttr(el, "rel"), "stylesheet"):
			attr = "href"
		default:
			continue
		}
		v := getAttr(el, attr)
		if !isLocal(v) || (external != nil && external(v)) {
			continue
		}
		var src string
		if strings.HasPrefix(v, "/") {
			src = filepath.Join(root, filepath.FromSlash(v))
		} else {
			src = filepath.Join(filepath.Dir(file), filepath.FromSlash(v))
		}
		d.refs = append(d.refs, entryRef{node: el, attr: attr, src: src})
	}
	return d, nil
}

// isLocal reports whether v names a file in the source tree.
func isLocal(v string) bool {
	if v == "" || strings.Contains(v, assetpath.LeftDelim) {
		return false
	}
	if strings.HasPrefix(v, "//") || strings.HasPrefix(v, "data:") {
		return false
	}
	return !strings.Contains(v, "://")
}

// rewrite points every entry at its built output and adds the stylesheets
// extracted from script entries. outputs maps an entry's absolute source
// path to its output and optional CSS bundle, relative to the output root.
func (d *document) rewrite(rw *assetpath.Rewriter, outputs map[string]builtEntry) ([]byte, error) {
	var head *html.Node
	for el := range d.root.Descendants() {
		if el.Type == html.ElementNode && el.DataAtom == atom.Head {
			head = el
			break
		}
	}
	for _, ref := range d.refs {
		out, ok := outputs[ref.src]
		if !ok {
			return nil, fmt.Errorf("%s: no output for %s", d.name, ref.src)
		}
		setAttr(ref.node, ref.attr, rw.Resolve(out.file, assetpath.HostHTML, "").Value)
		if out.css != "" && head != nil {
			link := &html.Node{
				Type:     html.ElementNode,
				Data:     "link",
				DataAtom: atom.Link,
				Attr: []html.Attribute{
					{Key: "rel", Val: "stylesheet"},
					{Key: "href", Val: rw.Resolve(out.css, assetpath.HostHTML, "").Value},
				},
			}
			head.AppendChild(link)
		}
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", d.name, err)
	}
	return buf.Bytes(), nil
}

// builtEntry is the output of one entry point.
type builtEntry struct {
	file string
	css  string
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasExt(p string, exts ...string) bool {
	e := path.Ext(p)
	for _, x := range exts {
		if e == x {
			return true
		}
	}
	return false
}
