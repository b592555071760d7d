package assetpath

import (
	"bytes"
	"fmt"
	"regexp"
	"text/template"
)

// Template delimiters used by placeholders in built output. They differ from
// the usual {{ }} so they never collide with bundled JavaScript.
const (
	LeftDelim  = "[{["
	RightDelim = "]}]"
)

// placeholderRe matches one field action, e.g. "[{[ .StaticURL ]}]". Minified
// scripts can hold the delimiters themselves ("[{[k]:1}]"), so nothing else
// is treated as a placeholder.
var placeholderRe = regexp.MustCompile(`\[\{\[\s*\.[A-Za-z_][A-Za-z0-9_]*\s*\]\}\]`)

// HasPlaceholders reports whether src needs substitution.
func HasPlaceholders(src []byte) bool {
	return placeholderRe.Match(src)
}

// Substitute replaces the placeholders in src with the fields of data. All
// other bytes are copied as is. A placeholder naming a field data lacks is an
// error.
func Substitute(name string, src []byte, data any) ([]byte, error) {
	tmpls := map[string]*template.Template{}
	var buf bytes.Buffer
	last := 0
	for _, loc := range placeholderRe.FindAllIndex(src, -1) {
		buf.Write(src[last:loc[0]])
		last = loc[1]
		action := string(src[loc[0]:loc[1]])
		t := tmpls[action]
		if t == nil {
			var err error
			t, err = template.New(name).Delims(LeftDelim, RightDelim).Option("missingkey=error").Parse(action)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", name, err)
			}
			tmpls[action] = t
		}
		if err := t.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
	}
	buf.Write(src[last:])
	return buf.Bytes(), nil
}
