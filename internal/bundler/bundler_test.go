package bundler

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/lakukan/drive-web/internal/assetpath"
	"github.com/lakukan/drive-web/internal/buildcfg"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
<title>Lakukan Drive</title>
<link rel="icon" href="[{[ .StaticURL ]}]/img/logo.svg">
<script src="[{[ .ReCaptchaHost ]}]/recaptcha/api.js?render=explicit"></script>
<script>window.LakukanDrive = [{[ .Json ]}];</script>
<script type="module" src="/src/main.js"></script>
</head>
<body><div id="app"></div></body>
</html>
`

func sampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, filepath.Join(dir, "frontend"), map[string]string{
		"public/index.html":               indexHTML,
		"public/img/logo.svg":             `<svg xmlns="http://www.w3.org/2000/svg"/>`,
		"src/main.js":                     "import logo from \"./logo.svg\";\nimport { msg } from \"@/util.js\";\nimport en from \"./i18n/en.json\";\nimport dayjs from \"dayjs\";\nimport \"./style.css\";\nimport \"https://www.google.com/recaptcha/api.js\";\ndocument.body.dataset.logo = logo;\nconsole.log(msg, en.hello, dayjs());\nimport(\"./i18n/de.json\").then((m) => console.log(m.default.hello));\nimport(\"./i18n/id.json\").then((m) => console.log(m.default.hello));\nimport(\"dayjs/locale/de.js\").then((m) => console.log(m.default.name));\nimport(\"dayjs/locale/id.js\").then((m) => console.log(m.default.name));\n",
		"src/util.js":                     "export const msg = \"hi\";\n",
		"src/logo.svg":                    `<svg xmlns="http://www.w3.org/2000/svg"><rect/></svg>`,
		"src/bg.png":                      "not really a png",
		"src/style.css":                   "body { background: url(./bg.png); }\n",
		"src/i18n/en.json":                "{\n  \"hello\": \"world\"\n}\n",
		"src/i18n/de.json":                "{\"hello\": \"Hallo\"}\n",
		"src/i18n/id.json":                "{\"hello\": \"Halo\"}\n",
		"node_modules/dayjs/index.js":     "export default function dayjs() { return 'now'; }\n",
		"node_modules/dayjs/locale/de.js": "import dayjs from \"../index.js\";\nexport default { name: \"de\", dayjs };\n",
		"node_modules/dayjs/locale/id.js": "import dayjs from \"../index.js\";\nexport default { name: \"id\", dayjs };\n",
	})
	return dir
}

func productionOptions(t *testing.T, dir string, p *buildcfg.Project) Options {
	t.Helper()
	cfg, err := buildcfg.Load(buildcfg.ModeBuild, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	opts, err := ProductionOptions(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return opts
}

func loadProject(t *testing.T, dir string) *buildcfg.Project {
	t.Helper()
	p, err := buildcfg.LoadProject(filepath.Join(dir, buildcfg.ProjectFile))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func gunzip(t *testing.T, b []byte) []byte {
	t.Helper()
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestBuild(t *testing.T) {
	dir := sampleProject(t)
	p := loadProject(t, dir)
	p.StrictChunks = true
	opts := productionOptions(t, dir, p)
	opts.Minify = false

	res, err := Build(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "frontend", "dist")
	read := func(rel string) []byte {
		t.Helper()
		b, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	for _, want := range []string{"index.html", "img/logo.svg", ManifestFile} {
		if !slices.Contains(res.Files, want) {
			t.Errorf("Files misses %s: %v", want, res.Files)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "public", "index.html")); err == nil {
		t.Error("the HTML input must not be copied from the public directory")
	}

	m := res.Manifest
	if m.Entries["index"] != "index.html" {
		t.Errorf("Entries = %v", m.Entries)
	}

	t.Run("html", func(t *testing.T) {
		page := string(read("index.html"))
		if !strings.Contains(page, `src="[{[ .StaticURL ]}]/assets/main-`) {
			t.Errorf("script not rewritten:\n%s", page)
		}
		if !strings.Contains(page, `rel="stylesheet" href="[{[ .StaticURL ]}]/assets/main-`) {
			t.Errorf("stylesheet not added:\n%s", page)
		}
		if strings.Contains(page, "/src/main.js") {
			t.Error("source path left in the page")
		}
		if !strings.Contains(page, `[{[ .ReCaptchaHost ]}]/recaptcha/api.js`) {
			t.Error("external script reference must be left untouched")
		}
		if !strings.Contains(page, `window.LakukanDrive = [{[ .Json ]}];`) {
			t.Error("config placeholder must survive")
		}
	})

	t.Run("scripts", func(t *testing.T) {
		if len(m.Removed) == 0 {
			t.Fatal("no script compressed")
		}
		for _, js := range m.Removed {
			if _, err := os.Stat(filepath.Join(outDir, js)); err == nil {
				t.Errorf("%s must be deleted after compression", js)
			}
		}
		main := ""
		for _, js := range m.Removed {
			if strings.HasPrefix(js, "assets/main-") {
				main = js
			}
		}
		src := string(gunzip(t, read(main+".gz")))
		if strings.Contains(src, publicPathSentinel) {
			t.Errorf("sentinel left in %s", main)
		}
		if !strings.Contains(src, `window.__prependStaticUrl("assets/logo-`) {
			t.Errorf("asset reference not rewritten:\n%s", src)
		}
		if !strings.Contains(src, `"https://www.google.com/recaptcha/api.js"`) {
			t.Errorf("external import missing:\n%s", src)
		}
		if !strings.Contains(src, `"./i18n-`) || !strings.Contains(src, `"./dayjs-`) {
			t.Errorf("named bundles not imported:\n%s", src)
		}
		if strings.Contains(src, `"world"`) {
			t.Error("translation catalog must live in its bundle")
		}
	})

	t.Run("stylesheet", func(t *testing.T) {
		var css string
		for _, f := range res.Files {
			if strings.HasSuffix(f, ".css") {
				css = string(read(f))
			}
		}
		if css == "" {
			t.Fatalf("no stylesheet in %v", res.Files)
		}
		if strings.Contains(css, publicPathSentinel) || !strings.Contains(css, "./bg-") {
			t.Errorf("url() not made relative:\n%s", css)
		}
	})

	t.Run("chunks", func(t *testing.T) {
		tests := []struct {
			bundle string
			inputs []string
			want   []string
		}{
			{"dayjs", []string{"node_modules/dayjs/index.js", "node_modules/dayjs/locale/de.js", "node_modules/dayjs/locale/id.js"}, []string{"now", `"de"`, `"id"`}},
			{"i18n", []string{"src/i18n/de.json", "src/i18n/en.json", "src/i18n/id.json"}, []string{`"world"`, `"Hallo"`, `"Halo"`}},
		}
		for _, tt := range tests {
			t.Run(tt.bundle, func(t *testing.T) {
				g := m.Chunks[tt.bundle]
				if !slices.Equal(g.Inputs, tt.inputs) {
					t.Errorf("Inputs = %v, want %v", g.Inputs, tt.inputs)
				}
				if len(g.Outputs) != 1 {
					t.Fatalf("bundle spread over %v, want one file", g.Outputs)
				}
				file := g.Outputs[0]
				if !strings.HasPrefix(file, "assets/"+tt.bundle+"-") || !strings.HasSuffix(file, ".js") {
					t.Errorf("output = %s", file)
				}
				src := string(gunzip(t, read(file+".gz")))
				for _, w := range tt.want {
					if !strings.Contains(src, w) {
						t.Errorf("%s misses %s:\n%s", file, w, src)
					}
				}
			})
		}
		for name, g := range m.Chunks {
			if slices.Contains(g.Inputs, "src/util.js") {
				t.Errorf("src/util.js assigned to %s", name)
			}
		}
		// Every other script only references the bundles.
		for _, js := range m.Removed {
			if strings.HasPrefix(js, "assets/dayjs-") || strings.HasPrefix(js, "assets/i18n-") {
				continue
			}
			if src := string(gunzip(t, read(js+".gz"))); strings.Contains(src, `"Hallo"`) || strings.Contains(src, "return \"now\"") || strings.Contains(src, "return 'now'") {
				t.Errorf("%s carries bundled module code:\n%s", js, src)
			}
		}
	})

	t.Run("manifest", func(t *testing.T) {
		back, err := ReadManifest(outDir)
		if err != nil {
			t.Fatal(err)
		}
		if back.ID != m.ID {
			t.Errorf("ID = %v, want %v", back.ID, m.ID)
		}
		if !slices.Contains(back.Externals, "https://www.google.com/recaptcha/api.js") {
			t.Errorf("Externals = %v", back.Externals)
		}
	})
}

func TestBuild_StrictChunks(t *testing.T) {
	dir := sampleProject(t)
	// Drop the date library so its rule matches nothing.
	writeTree(t, filepath.Join(dir, "frontend"), map[string]string{
		"src/main.js": "console.log(1);\n",
	})
	p := loadProject(t, dir)
	p.StrictChunks = true
	if _, err := Build(context.Background(), productionOptions(t, dir, p)); err == nil || !strings.Contains(err.Error(), "dayjs") {
		t.Errorf("Build() = %v, want chunk rule error", err)
	}
	p.StrictChunks = false
	if _, err := Build(context.Background(), productionOptions(t, dir, p)); err != nil {
		t.Errorf("non-strict Build() = %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Run("syntax error", func(t *testing.T) {
		dir := sampleProject(t)
		writeTree(t, filepath.Join(dir, "frontend"), map[string]string{"src/util.js": "export const = ;\n"})
		_, err := Build(context.Background(), productionOptions(t, dir, loadProject(t, dir)))
		if err == nil || !strings.Contains(err.Error(), "build failed") {
			t.Errorf("Build() = %v", err)
		}
	})
	t.Run("bad catalog", func(t *testing.T) {
		dir := sampleProject(t)
		writeTree(t, filepath.Join(dir, "frontend"), map[string]string{"src/i18n/en.json": "{"})
		_, err := Build(context.Background(), productionOptions(t, dir, loadProject(t, dir)))
		if err == nil || !strings.Contains(err.Error(), "en.json") {
			t.Errorf("Build() = %v", err)
		}
	})
	t.Run("no entries", func(t *testing.T) {
		dir := sampleProject(t)
		writeTree(t, filepath.Join(dir, "frontend"), map[string]string{"public/index.html": "<html></html>"})
		if _, err := Build(context.Background(), productionOptions(t, dir, loadProject(t, dir))); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("development config", func(t *testing.T) {
		cfg, err := buildcfg.Load(buildcfg.ModeDevelop, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := ProductionOptions(cfg); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRewriteOutput(t *testing.T) {
	rw := &assetpath.Rewriter{}
	tests := []struct {
		name string
		rel  string
		in   string
		want string
	}{
		{"js double quotes", "assets/main.js", `var a = "__DRIVE_WEB_STATIC__/assets/a-1.png";`, `var a = window.__prependStaticUrl("assets/a-1.png");`},
		{"js single quotes", "assets/main.js", `x('__DRIVE_WEB_STATIC__/assets/b.svg')`, `x(window.__prependStaticUrl("assets/b.svg"))`},
		{"js untouched", "assets/main.js", `import("./chunk-X.js")`, `import("./chunk-X.js")`},
		{"css bare", "assets/main.css", `a{background:url(__DRIVE_WEB_STATIC__/assets/bg.png)}`, `a{background:url(./bg.png)}`},
		{"css quoted", "assets/main.css", `a{background:url("__DRIVE_WEB_STATIC__/img/bg.png")}`, `a{background:url("../img/bg.png")}`},
		{"other", "assets/x.txt", `__DRIVE_WEB_STATIC__/a`, `__DRIVE_WEB_STATIC__/a`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(rewriteOutput(rw, tt.rel, []byte(tt.in))); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseEngines(t *testing.T) {
	got, err := parseEngines([]string{"chrome87", "Safari14.1"})
	if err != nil {
		t.Fatal(err)
	}
	want := []api.Engine{{Name: api.EngineChrome, Version: "87"}, {Name: api.EngineSafari, Version: "14.1"}}
	if !slices.Equal(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	for _, bad := range []string{"ie11x", "netscape4", ""} {
		if _, err := parseEngines([]string{bad}); err == nil {
			t.Errorf("parseEngines(%q) succeeded", bad)
		}
	}
}

func TestNamedBundle(t *testing.T) {
	root := filepath.FromSlash("/src")
	b := &namedBundle{
		name:    "i18n",
		ids:     []string{"i18n/de.json", "i18n/side.js"},
		exports: [][]string{{"default", "hello"}, nil},
		file:    "assets/i18n-ABC.js",
	}
	b.members = map[string]int{
		filepath.Join(root, "i18n", "de.json"): 0,
		filepath.Join(root, "i18n", "side.js"): 1,
	}
	wantSrc := "export { default as m0_default, hello as m0_hello } from \"/src/i18n/de.json\";\nimport \"/src/i18n/side.js\";\n"
	if got := b.source(root); filepath.Separator == '/' && got != wantSrc {
		t.Errorf("source() = %q, want %q", got, wantSrc)
	}
	if got, want := b.facade(filepath.Join(root, "i18n", "de.json")), "export { m0_default as default, m0_hello as hello } from \"./i18n-ABC.js\";\n"; got != want {
		t.Errorf("facade() = %q, want %q", got, want)
	}
	if got, want := b.facade(filepath.Join(root, "i18n", "side.js")), "import \"./i18n-ABC.js\";\n"; got != want {
		t.Errorf("facade() = %q, want %q", got, want)
	}
}

func TestRoutable(t *testing.T) {
	in := []string{"src/main.js", "src/i18n/en.json", "src/i18n/x.css", "drive-web-member:/a/b.js", "node_modules/dayjs/index.js"}
	got := routable(in, map[string]bool{"src/main.js": true})
	want := []string{"src/i18n/en.json", "node_modules/dayjs/index.js"}
	if !slices.Equal(got, want) {
		t.Errorf("routable() = %v, want %v", got, want)
	}
}
