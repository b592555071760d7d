// Package bundler produces the deployable front-end output.
//
// It bundles the scripts and stylesheets referenced by the HTML inputs with
// esbuild, then rewrites every asset reference so the output carries no path
// prefix: scripts call the page's prefixing function, HTML uses a placeholder
// the server substitutes, stylesheets use relative paths.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/lakukan/drive-web/internal/assetpath"
	"github.com/lakukan/drive-web/internal/buildcfg"
	"github.com/lakukan/drive-web/internal/chunks"
	"github.com/lakukan/drive-web/internal/externals"
	"github.com/lakukan/drive-web/internal/precompress"
	"github.com/maruel/ksid"
)

// Options configures one build.
type Options struct {
	// Root is the absolute source root; esbuild resolves from there.
	Root string
	// Input maps document names to absolute HTML paths.
	Input     map[string]string
	OutDir    string
	PublicDir string
	Aliases   map[string]string
	Plugins   buildcfg.Plugins
	External  externals.Rule
	Chunks    []chunks.Rule
	// StrictChunks turns a chunk rule matching nothing into an error.
	StrictChunks bool
	Assets       *assetpath.Rewriter

	Minify    bool
	Sourcemap bool
	// Compress enables the precompression stage configured in Plugins.
	Compress bool
}

// ProductionOptions derives the build options of a produce-output config.
func ProductionOptions(cfg *buildcfg.Config) (Options, error) {
	prod, ok := cfg.Mode.(*buildcfg.Production)
	if !ok {
		return Options{}, fmt.Errorf("bundler: mode %T is not a production build", cfg.Mode)
	}
	if prod.Base != "" {
		return Options{}, errors.New("bundler: a fixed base path defeats relocatable output")
	}
	return Options{
		Root:         cfg.Root,
		Input:        prod.Input,
		OutDir:       prod.OutDir,
		PublicDir:    prod.PublicDir,
		Aliases:      cfg.Aliases,
		Plugins:      cfg.Plugins,
		External:     prod.External,
		Chunks:       prod.Chunks,
		StrictChunks: prod.StrictChunks,
		Assets:       prod.Assets,
		Minify:       true,
		Compress:     true,
	}, nil
}

// DevelopmentOptions derives build options for the dev server, writing to
// outDir. Inputs and rules come from the project defaults; output is not
// minified and not compressed.
func DevelopmentOptions(cfg *buildcfg.Config, p *buildcfg.Project, outDir string) (Options, error) {
	if _, ok := cfg.Mode.(*buildcfg.Development); !ok {
		return Options{}, fmt.Errorf("bundler: mode %T is not a development build", cfg.Mode)
	}
	in := make(map[string]string, len(p.Input))
	for name, path := range p.Input {
		in[name] = filepath.Join(cfg.Root, path)
	}
	publicDir := ""
	if p.PublicDir != "" {
		publicDir = filepath.Join(cfg.Root, p.PublicDir)
	}
	return Options{
		Root:      cfg.Root,
		Input:     in,
		OutDir:    outDir,
		PublicDir: publicDir,
		Aliases:   cfg.Aliases,
		Plugins:   cfg.Plugins,
		External:  externals.IsExternal,
		Chunks:    chunks.DefaultRules,
		Assets:    &assetpath.Rewriter{},
		Sourcemap: true,
	}, nil
}

// Result summarizes a build.
type Result struct {
	Manifest *Manifest
	// Files are the written files relative to OutDir, sorted.
	Files    []string
	Warnings []string
}

// Build runs the pipeline. The output directory is emptied first.
func Build(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Assets == nil {
		opts.Assets = &assetpath.Rewriter{}
	}
	if len(opts.Input) == 0 {
		return nil, errors.New("bundler: no input documents")
	}
	names := slices.Sorted(maps.Keys(opts.Input))
	var docs []*document
	var entries []string
	for _, name := range names {
		d, err := parseDocument(name, opts.Input[name], opts.Root, opts.External)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
		for _, r := range d.refs {
			if !slices.Contains(entries, r.src) {
				entries = append(entries, r.src)
			}
		}
	}
	if len(entries) == 0 {
		return nil, errors.New("bundler: the input documents reference no module script or stylesheet")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	esOpts, err := esbuildOptions(&opts, entries)
	if err != nil {
		return nil, err
	}
	res := api.Build(esOpts)
	if len(res.Errors) != 0 {
		return nil, buildError(res.Errors)
	}
	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return nil, err
	}

	// Chunk plan over the module graph, then split the assigned modules out.
	entryIDs := map[string]bool{}
	for _, src := range entries {
		key, err := metaPath(opts.Root, src)
		if err != nil {
			return nil, err
		}
		entryIDs[key] = true
	}
	planner := chunks.NewPlanner(opts.Chunks)
	assign := planner.Plan(routable(meta.InputPaths(), entryIDs))
	var warnings []string
	if err := planner.Verify(); err != nil {
		if opts.StrictChunks {
			return nil, err
		}
		slog.WarnContext(ctx, "Chunk plan", "err", err)
		warnings = append(warnings, err.Error())
	}
	bundles, err := buildBundles(&opts, esOpts, assign)
	if err != nil {
		return nil, err
	}
	if len(bundles) != 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		esOpts.Plugins = append(slices.Clone(esOpts.Plugins), memberPlugin(bundles))
		if res = api.Build(esOpts); len(res.Errors) != 0 {
			return nil, buildError(res.Errors)
		}
		if meta, err = parseMetafile(res.Metafile); err != nil {
			return nil, err
		}
	}
	out := &Result{Warnings: formatMessages(res.Warnings, api.WarningMessage)}
	for _, w := range out.Warnings {
		slog.WarnContext(ctx, "esbuild", "msg", w)
	}
	out.Warnings = append(out.Warnings, warnings...)

	if err := emptyDir(opts.OutDir); err != nil {
		return nil, err
	}
	if opts.PublicDir != "" {
		if out.Files, err = copyPublic(opts.PublicDir, opts.OutDir, opts.Input); err != nil {
			return nil, err
		}
	}

	written := map[string][]byte{}
	outputs := slices.Clone(res.OutputFiles)
	for _, b := range bundles {
		outputs = append(outputs, b.outputs...)
	}
	for _, f := range outputs {
		rel, err := filepath.Rel(opts.OutDir, f.Path)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(rel)
		written[rel] = rewriteOutput(opts.Assets, rel, f.Contents)
	}

	// Documents.
	built := map[string]builtEntry{}
	for _, src := range entries {
		key, err := metaPath(opts.Root, src)
		if err != nil {
			return nil, err
		}
		outPath, o, ok := meta.EntryOutput(key)
		if !ok {
			return nil, fmt.Errorf("bundler: esbuild produced no output for %s", key)
		}
		be := builtEntry{}
		if be.file, err = outRel(opts.Root, opts.OutDir, outPath); err != nil {
			return nil, err
		}
		if o.CSSBundle != "" {
			if be.css, err = outRel(opts.Root, opts.OutDir, o.CSSBundle); err != nil {
				return nil, err
			}
		}
		built[src] = be
	}
	m := &Manifest{
		ID:        ksid.NewID(),
		Created:   time.Now().UTC().Truncate(time.Second),
		Entries:   map[string]string{},
		Chunks:    map[string]ChunkGroup{},
		Externals: meta.Externals(),
	}
	m.Revision, m.Dirty = sourceRevision(opts.Root)
	for _, d := range docs {
		b, err := d.rewrite(opts.Assets, built)
		if err != nil {
			return nil, err
		}
		name := d.name + ".html"
		written[name] = b
		m.Entries[d.name] = name
	}
	for _, b := range bundles {
		if m.Chunks[b.name], err = b.group(&opts); err != nil {
			return nil, err
		}
		for _, e := range b.meta.Externals() {
			if !slices.Contains(m.Externals, e) {
				m.Externals = append(m.Externals, e)
			}
		}
	}
	slices.Sort(m.Externals)

	if opts.Compress {
		if err := compressScripts(written, opts.Plugins.Compression, m); err != nil {
			return nil, err
		}
	}

	for rel, b := range written {
		dst := filepath.Join(opts.OutDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint:gosec // G301: build output is public
			return nil, err
		}
		if err := os.WriteFile(dst, b, 0o644); err != nil { //nolint:gosec // G306: build output is public
			return nil, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		out.Files = append(out.Files, rel)
	}
	if err := m.write(opts.OutDir); err != nil {
		return nil, err
	}
	out.Files = append(out.Files, ManifestFile)
	slices.Sort(out.Files)
	out.Manifest = m
	slog.InfoContext(ctx, "Build complete", "out", opts.OutDir, "files", len(out.Files), "dur", time.Since(start).Round(time.Millisecond), "revision", m.Revision)
	return out, nil
}

func esbuildOptions(opts *Options, entries []string) (api.BuildOptions, error) {
	engines, err := parseEngines(opts.Plugins.Legacy.Targets)
	if err != nil {
		return api.BuildOptions{}, err
	}
	plugins := []api.Plugin{externalsPlugin(opts.External)}
	if len(opts.Aliases) != 0 {
		plugins = append(plugins, aliasPlugin(opts.Aliases))
	}
	plugins = append(plugins, i18nPlugin(opts.Plugins.I18n.Include))
	sourcemap := api.SourceMapNone
	if opts.Sourcemap {
		sourcemap = api.SourceMapLinked
	}
	nodeEnv := `"development"`
	if opts.Minify {
		nodeEnv = `"production"`
	}
	return api.BuildOptions{
		EntryPoints:       entries,
		AbsWorkingDir:     opts.Root,
		Outdir:            opts.OutDir,
		Bundle:            true,
		Splitting:         true,
		Format:            api.FormatESModule,
		Platform:          api.PlatformBrowser,
		Engines:           engines,
		EntryNames:        "assets/[name]-[hash]",
		ChunkNames:        "assets/[name]-[hash]",
		AssetNames:        "assets/[name]-[hash]",
		PublicPath:        publicPathSentinel,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		Sourcemap:         sourcemap,
		Define:            map[string]string{"process.env.NODE_ENV": nodeEnv},
		Loader: map[string]api.Loader{
			".png":   api.LoaderFile,
			".jpg":   api.LoaderFile,
			".jpeg":  api.LoaderFile,
			".gif":   api.LoaderFile,
			".svg":   api.LoaderFile,
			".webp":  api.LoaderFile,
			".ico":   api.LoaderFile,
			".woff":  api.LoaderFile,
			".woff2": api.LoaderFile,
			".ttf":   api.LoaderFile,
			".eot":   api.LoaderFile,
		},
		Metafile: true,
		Write:    false,
		LogLevel: api.LogLevelSilent,
		Plugins:  plugins,
	}, nil
}

func formatMessages(msgs []api.Message, kind api.MessageKind) []string {
	if len(msgs) == 0 {
		return nil
	}
	out := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: kind})
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func buildError(msgs []api.Message) error {
	return fmt.Errorf("build failed with %d error(s):\n%s", len(msgs), strings.Join(formatMessages(msgs, api.ErrorMessage), "\n"))
}

// metaPath converts an absolute path to the metafile's key form.
func metaPath(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// outRel converts a metafile output path to a path relative to outDir.
func outRel(root, outDir, p string) (string, error) {
	rel, err := filepath.Rel(outDir, filepath.Join(root, filepath.FromSlash(p)))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// emptyDir removes the content of dir, creating it if needed.
func emptyDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: build output is public
		return err
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyPublic copies src to dst, skipping the HTML inputs themselves. It
// returns the copied files relative to dst.
func copyPublic(src, dst string, inputs map[string]string) ([]string, error) {
	skip := map[string]bool{}
	for _, in := range inputs {
		skip[filepath.Clean(in)] = true
	}
	var copied []string
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == src {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || skip[filepath.Clean(p)] {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p) //nolint:gosec // G304: walking the public directory
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil { //nolint:gosec // G301: build output is public
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil { //nolint:gosec // G306: build output is public
			return err
		}
		copied = append(copied, filepath.ToSlash(rel))
		return nil
	})
	return copied, err
}

// compressScripts adds the configured encodings of every script and drops
// the original when asked to.
func compressScripts(files map[string][]byte, c buildcfg.Compression, m *Manifest) error {
	var encs []precompress.Encoding
	if c.Gzip {
		encs = append(encs, precompress.Gzip)
	}
	if c.Brotli {
		encs = append(encs, precompress.Brotli)
	}
	if len(encs) == 0 {
		return nil
	}
	m.Compressed = map[string][]string{}
	for _, rel := range slices.Sorted(maps.Keys(files)) {
		if assetKind(rel) != kindJS {
			continue
		}
		for _, e := range encs {
			b, err := e.Compress(files[rel])
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			files[rel+e.Ext] = b
			m.Compressed[rel] = append(m.Compressed[rel], rel+e.Ext)
		}
		if c.DeleteOriginal {
			delete(files, rel)
			m.Removed = append(m.Removed, rel)
		}
	}
	return nil
}
