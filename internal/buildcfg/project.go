// Loads the drive-web.yaml project file.

package buildcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the default project file name.
const ProjectFile = "drive-web.yaml"

// Project is the on-disk build description. Every field is optional.
type Project struct {
	// Root is the front-end source root, relative to the project file.
	Root string `yaml:"root"`
	// Input maps entry names to HTML documents under Root.
	Input map[string]string `yaml:"input"`
	// OutDir receives the build output, relative to Root.
	OutDir string `yaml:"outDir"`
	// PublicDir is copied verbatim to OutDir, relative to Root. Empty disables
	// the copy.
	PublicDir string `yaml:"publicDir"`
	// Aliases maps import prefixes to paths under Root.
	Aliases map[string]string `yaml:"aliases"`

	Listen       string   `yaml:"listen"`
	AllowedHosts []string `yaml:"allowedHosts"`

	I18n        I18n        `yaml:"i18n"`
	Legacy      Legacy      `yaml:"legacy"`
	Compression Compression `yaml:"compression"`

	// StrictChunks fails the build when a chunk rule matched no module.
	StrictChunks bool `yaml:"strictChunks"`

	dir string
}

// I18n configures the translation catalog stage.
type I18n struct {
	// Include is the directory holding the catalogs, relative to Root.
	Include string `yaml:"include"`
}

// Legacy configures the browser targets of the transpilation stage.
type Legacy struct {
	// Targets are esbuild engine names with versions, e.g. "chrome87".
	Targets []string `yaml:"targets"`
}

// Compression configures the precompression stage for scripts.
type Compression struct {
	Gzip           bool `yaml:"gzip"`
	Brotli         bool `yaml:"brotli"`
	DeleteOriginal bool `yaml:"deleteOriginal"`
}

// DefaultProject returns the layout used when no project file exists.
func DefaultProject() *Project {
	return &Project{
		Root:      "frontend",
		Input:     map[string]string{"index": "public/index.html"},
		OutDir:    "dist",
		PublicDir: "public",
		Aliases:   map[string]string{"@/": "src/"},
		Listen:    "0.0.0.0:5173",
		AllowedHosts: []string{
			"drive.lakukan.co.id",
			"localhost",
			"127.0.0.1",
		},
		I18n: I18n{Include: "src/i18n"},
		// Browsers covered by the "defaults" browserslist query, without IE.
		Legacy:      Legacy{Targets: []string{"chrome87", "edge88", "firefox78", "safari14"}},
		Compression: Compression{Gzip: true, DeleteOriginal: true},
		dir:         ".",
	}
}

// LoadProject reads path. A missing file yields DefaultProject rooted at the
// file's directory; fields absent from the file keep their defaults.
func LoadProject(path string) (*Project, error) {
	p := DefaultProject()
	p.dir = filepath.Dir(path)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	// Maps are replaced, not merged, when the file sets them.
	defaults := DefaultProject()
	p.Input, p.Aliases = nil, nil
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if p.Input == nil {
		p.Input = defaults.Input
	}
	if p.Aliases == nil {
		p.Aliases = defaults.Aliases
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the project is usable.
func (p *Project) Validate() error {
	if p.Root == "" {
		return errors.New("root is required")
	}
	if len(p.Input) == 0 {
		return errors.New("input must name at least one document")
	}
	for name, in := range p.Input {
		if name == "" || in == "" {
			return fmt.Errorf("input %q: name and path are required", name)
		}
	}
	if p.OutDir == "" {
		return errors.New("outDir is required")
	}
	if p.Compression.DeleteOriginal && !p.Compression.Gzip && !p.Compression.Brotli {
		return errors.New("compression.deleteOriginal requires gzip or brotli")
	}
	return nil
}

// RootDir returns the absolute source root.
func (p *Project) RootDir() (string, error) {
	dir := p.dir
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(filepath.Join(dir, p.Root))
}
