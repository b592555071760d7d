package bundler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/maruel/ksid"
)

// ManifestFile is written at the root of the output directory.
const ManifestFile = "manifest.json"

// Manifest describes one build.
type Manifest struct {
	ID      ksid.ID   `json:"id"`
	Created time.Time `json:"created"`
	// Revision is the source tree commit, empty outside a git checkout.
	Revision string `json:"revision,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
	// Entries maps document names to their output file.
	Entries map[string]string `json:"entries"`
	// Chunks maps bundle names to the inputs assigned to them and the
	// outputs those inputs ended up in.
	Chunks map[string]ChunkGroup `json:"chunks"`
	// Externals are references left for the browser to fetch.
	Externals []string `json:"externals,omitempty"`
	// Compressed maps a script to its precompressed variants.
	Compressed map[string][]string `json:"compressed,omitempty"`
	// Removed lists scripts deleted after compression.
	Removed []string `json:"removed,omitempty"`
}

// ChunkGroup is one named bundle.
type ChunkGroup struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// ReadManifest loads the manifest of a build output.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) //nolint:gosec // G304: dir is the build output
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}
	return m, nil
}

func (m *Manifest) write(dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil { //nolint:gosec // G306: build output is public
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// sourceRevision returns the commit checked out around dir.
func sourceRevision(dir string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		slog.Debug("No git HEAD", "dir", dir, "err", err)
		return "", false
	}
	dirty := false
	if wt, err := repo.Worktree(); err == nil {
		if st, err := wt.Status(); err == nil {
			dirty = !st.IsClean()
		}
	}
	return head.Hash().String(), dirty
}
