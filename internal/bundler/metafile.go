package bundler

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
)

// Metafile is the esbuild metafile JSON structure.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input file in the metafile.
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport is an import in the metafile.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput is an output file in the metafile.
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	Exports    []string                `json:"exports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
	CSSBundle  string                  `json:"cssBundle,omitempty"`
}

// InputContrib is the contribution of an input to an output.
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

func parseMetafile(s string) (*Metafile, error) {
	m := &Metafile{}
	if err := json.Unmarshal([]byte(s), m); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return m, nil
}

// InputPaths returns the sorted input paths.
func (m *Metafile) InputPaths() []string {
	out := make([]string, 0, len(m.Inputs))
	for p := range m.Inputs {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Externals returns the sorted, deduplicated import paths left external,
// ignoring the facades importing named bundles.
func (m *Metafile) Externals() []string {
	var out []string
	for p, in := range m.Inputs {
		if strings.HasPrefix(p, memberNamespace+":") {
			continue
		}
		for _, imp := range in.Imports {
			if imp.External && !slices.Contains(out, imp.Path) {
				out = append(out, imp.Path)
			}
		}
	}
	slices.Sort(out)
	return out
}

// EntryOutput returns the output built for the entry point at src, both
// relative to the working directory. A script entry maps to its script, not
// to the stylesheet extracted from it.
func (m *Metafile) EntryOutput(src string) (string, MetafileOutput, bool) {
	wantCSS := path.Ext(src) == ".css"
	for p, o := range m.Outputs {
		if o.EntryPoint != src || strings.HasSuffix(p, ".map") {
			continue
		}
		if (path.Ext(p) == ".css") == wantCSS {
			return p, o, true
		}
	}
	return "", MetafileOutput{}, false
}

// OutputsOf returns the sorted outputs containing input, skipping source maps.
func (m *Metafile) OutputsOf(input string) []string {
	var out []string
	for p, o := range m.Outputs {
		if path.Ext(p) == ".map" {
			continue
		}
		if _, ok := o.Inputs[input]; ok {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}
