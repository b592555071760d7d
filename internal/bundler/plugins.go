package bundler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/lakukan/drive-web/internal/externals"
)

// externalsPlugin leaves references matched by rule for the browser.
func externalsPlugin(rule externals.Rule) api.Plugin {
	return api.Plugin{
		Name: "drive-web:externals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if rule == nil || !rule(args.Path) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
}

// aliasPlugin rewrites import prefixes, e.g. "@/utils/x" to "<root>/src/utils/x",
// then lets esbuild resolve the result so extensions and index files work.
func aliasPlugin(aliases map[string]string) api.Plugin {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	// Longest prefix first.
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })
	return api.Plugin{
		Name: "drive-web:alias",
		Setup: func(build api.PluginBuild) {
			for _, key := range keys {
				target := aliases[key]
				build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(key)}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					p := target + strings.TrimPrefix(args.Path, key)
					res := build.Resolve(p, api.ResolveOptions{
						Importer:   args.Importer,
						ResolveDir: args.ResolveDir,
						Kind:       args.Kind,
					})
					if len(res.Errors) != 0 {
						return api.OnResolveResult{Errors: res.Errors}, nil
					}
					return api.OnResolveResult{Path: res.Path, External: res.External, Namespace: res.Namespace, Suffix: res.Suffix}, nil
				})
			}
		},
	}
}

// i18nPlugin validates and compacts the translation catalogs under dir so a
// broken catalog fails the build with its file name.
func i18nPlugin(dir string) api.Plugin {
	return api.Plugin{
		Name: "drive-web:i18n",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.json$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				if dir == "" || !within(dir, args.Path) {
					return api.OnLoadResult{}, nil
				}
				raw, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				var buf bytes.Buffer
				if err := json.Compact(&buf, raw); err != nil {
					return api.OnLoadResult{}, fmt.Errorf("invalid translation catalog %s: %w", args.Path, err)
				}
				s := buf.String()
				return api.OnLoadResult{Contents: &s, Loader: api.LoaderJSON}, nil
			})
		},
	}
}

// within reports whether p is inside dir.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineRe = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

// parseEngines converts targets like "chrome87" into esbuild engines.
func parseEngines(targets []string) ([]api.Engine, error) {
	var out []api.Engine
	for _, t := range targets {
		m := engineRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
		if m == nil {
			return nil, fmt.Errorf("invalid legacy target %q", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unsupported legacy target %q", t)
		}
		out = append(out, api.Engine{Name: name, Version: m[2]})
	}
	return out, nil
}
