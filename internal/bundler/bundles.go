package bundler

import (
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/lakukan/drive-web/internal/chunks"
)

// Modules the chunk planner assigns to a named bundle are built apart, one
// output file per bundle. The main build then loads each of them as a facade
// re-exporting its bindings from that file, so the bundle is fetched once
// whatever the number of modules in it.

const (
	bundleNamespace = "drive-web-bundle"
	memberNamespace = "drive-web-member"
)

var (
	identRe     = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	namespaceRe = regexp.MustCompile(`^[a-z][a-z0-9-]*:`)
)

// resolvingKey marks the nested resolution done by memberPlugin.
type resolvingKey struct{}

// namedBundle is one bundle built apart from the entries.
type namedBundle struct {
	name string
	// ids are the member paths relative to the source root, sorted.
	ids []string
	// members maps the absolute path of each member to its index in ids.
	members map[string]int
	// exports are the bindings of each member, indexed like ids.
	exports [][]string
	// file is the bundle's script relative to the output root.
	file    string
	outputs []api.OutputFile
	meta    *Metafile
}

// routable filters the graph inputs that may be moved to a bundle: source
// files that are neither stylesheets nor entry points.
func routable(inputs []string, entries map[string]bool) []string {
	var out []string
	for _, id := range inputs {
		if namespaceRe.MatchString(id) || path.Ext(id) == ".css" || entries[id] {
			continue
		}
		out = append(out, id)
	}
	return out
}

// buildBundles builds one file per bundle of a.
func buildBundles(opts *Options, base api.BuildOptions, a chunks.Assignment) ([]*namedBundle, error) {
	if len(a) == 0 {
		return nil, nil
	}
	exports, err := memberExports(opts, base, slices.Sorted(maps.Keys(a)))
	if err != nil {
		return nil, err
	}
	groups := a.Groups()
	var out []*namedBundle
	for _, name := range slices.Sorted(maps.Keys(groups)) {
		b := &namedBundle{name: name, ids: groups[name], members: map[string]int{}}
		for i, id := range b.ids {
			b.members[filepath.Join(opts.Root, filepath.FromSlash(id))] = i
			b.exports = append(b.exports, exports[id])
		}
		if err := b.build(opts, base); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// memberExports returns the export names of each module in ids, keeping only
// those usable as identifiers.
func memberExports(opts *Options, base api.BuildOptions, ids []string) (map[string][]string, error) {
	o := base
	o.EntryPoints = make([]string, len(ids))
	for i, id := range ids {
		o.EntryPoints[i] = filepath.Join(opts.Root, filepath.FromSlash(id))
	}
	o.Splitting = false
	o.Outbase = opts.Root
	o.EntryNames = "[dir]/[name]-[hash]"
	o.Sourcemap = api.SourceMapNone
	res := api.Build(o)
	if len(res.Errors) != 0 {
		return nil, buildError(res.Errors)
	}
	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(ids))
	for p, mo := range meta.Outputs {
		if mo.EntryPoint == "" || path.Ext(p) != ".js" {
			continue
		}
		var names []string
		for _, e := range mo.Exports {
			if identRe.MatchString(e) {
				names = append(names, e)
			}
		}
		slices.Sort(names)
		out[mo.EntryPoint] = names
	}
	return out, nil
}

// binding is the name member i exports name under in the bundle.
func binding(i int, name string) string {
	return "m" + strconv.Itoa(i) + "_" + name
}

// source is the virtual module the bundle is built from.
func (b *namedBundle) source(root string) string {
	var sb strings.Builder
	for i, id := range b.ids {
		spec := strconv.Quote(filepath.ToSlash(filepath.Join(root, filepath.FromSlash(id))))
		if len(b.exports[i]) == 0 {
			fmt.Fprintf(&sb, "import %s;\n", spec)
			continue
		}
		parts := make([]string, len(b.exports[i]))
		for j, n := range b.exports[i] {
			parts[j] = n + " as " + binding(i, n)
		}
		fmt.Fprintf(&sb, "export { %s } from %s;\n", strings.Join(parts, ", "), spec)
	}
	return sb.String()
}

// facade is the module standing for the member at abs in the main build.
// Every output lives in the same directory, so the bundle is imported by
// its bare file name.
func (b *namedBundle) facade(abs string) string {
	i := b.members[abs]
	spec := strconv.Quote("./" + path.Base(b.file))
	if len(b.exports[i]) == 0 {
		return "import " + spec + ";\n"
	}
	parts := make([]string, len(b.exports[i]))
	for j, n := range b.exports[i] {
		parts[j] = binding(i, n) + " as " + n
	}
	return fmt.Sprintf("export { %s } from %s;\n", strings.Join(parts, ", "), spec)
}

func (b *namedBundle) build(opts *Options, base api.BuildOptions) error {
	src := b.source(opts.Root)
	entry := bundleNamespace + ":" + b.name
	o := base
	o.EntryPoints = nil
	o.EntryPointsAdvanced = []api.EntryPoint{{InputPath: entry, OutputPath: b.name}}
	o.Outbase = opts.Root
	o.Splitting = false
	o.Plugins = append([]api.Plugin{{
		Name: "drive-web:bundle",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(entry) + "$"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind != api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: b.name, Namespace: bundleNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: bundleNamespace}, func(api.OnLoadArgs) (api.OnLoadResult, error) {
				return api.OnLoadResult{Contents: &src, ResolveDir: opts.Root, Loader: api.LoaderJS}, nil
			})
		},
	}}, base.Plugins...)
	res := api.Build(o)
	if len(res.Errors) != 0 {
		return fmt.Errorf("bundle %s: %w", b.name, buildError(res.Errors))
	}
	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return err
	}
	for p, mo := range meta.Outputs {
		if mo.EntryPoint != "" && path.Ext(p) == ".js" {
			if b.file, err = outRel(opts.Root, opts.OutDir, p); err != nil {
				return err
			}
		}
	}
	if b.file == "" {
		return fmt.Errorf("bundle %s: esbuild produced no script", b.name)
	}
	b.outputs = res.OutputFiles
	b.meta = meta
	return nil
}

// group describes the bundle for the manifest.
func (b *namedBundle) group(opts *Options) (ChunkGroup, error) {
	g := ChunkGroup{Inputs: slices.Clone(b.ids)}
	for _, id := range b.ids {
		for _, o := range b.meta.OutputsOf(id) {
			rel, err := outRel(opts.Root, opts.OutDir, o)
			if err != nil {
				return ChunkGroup{}, err
			}
			if !slices.Contains(g.Outputs, rel) {
				g.Outputs = append(g.Outputs, rel)
			}
		}
	}
	slices.Sort(g.Outputs)
	return g, nil
}

// memberPlugin loads every bundled module as its facade.
func memberPlugin(bundles []*namedBundle) api.Plugin {
	owner := map[string]*namedBundle{}
	for _, b := range bundles {
		for abs := range b.members {
			owner[abs] = b
		}
	}
	return api.Plugin{
		Name: "drive-web:members",
		Setup: func(build api.PluginBuild) {
			// The bundle files only exist in the output.
			build.OnResolve(api.OnResolveOptions{Filter: `.*`, Namespace: memberNamespace}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint || args.PluginData == (resolvingKey{}) {
					return api.OnResolveResult{}, nil
				}
				res := build.Resolve(args.Path, api.ResolveOptions{
					Importer:   args.Importer,
					Namespace:  args.Namespace,
					ResolveDir: args.ResolveDir,
					Kind:       args.Kind,
					PluginData: resolvingKey{},
				})
				if len(res.Errors) != 0 || res.External || res.Namespace != "file" {
					return api.OnResolveResult{}, nil
				}
				if _, ok := owner[res.Path]; !ok {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: res.Path, Namespace: memberNamespace}, nil
			})
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: memberNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				b := owner[args.Path]
				if b == nil {
					return api.OnLoadResult{}, fmt.Errorf("no bundle holds %s", args.Path)
				}
				s := b.facade(args.Path)
				return api.OnLoadResult{Contents: &s, ResolveDir: filepath.Dir(args.Path), Loader: api.LoaderJS}, nil
			})
		},
	}
}
