package buildlog

import (
	"path/filepath"
	"time"

	"github.com/lakukan/drive-web/internal/bundler"
	"github.com/maruel/ksid"
)

// File is the history file name, under the project directory.
const File = ".drive-web/builds.jsonl"

// DefaultKeep is how many builds the history retains.
const DefaultKeep = 100

// Entry records one production build.
type Entry struct {
	ID       ksid.ID        `json:"id"`
	Created  time.Time      `json:"created"`
	Revision string         `json:"revision,omitempty"`
	Dirty    bool           `json:"dirty,omitempty"`
	OutDir   string         `json:"outDir"`
	Files    int            `json:"files"`
	Duration time.Duration  `json:"duration"`
	Chunks   map[string]int `json:"chunks,omitempty"`
	Warnings int            `json:"warnings,omitempty"`
}

// NewEntry summarizes a build result.
func NewEntry(outDir string, res *bundler.Result, dur time.Duration) Entry {
	m := res.Manifest
	e := Entry{
		ID:       m.ID,
		Created:  m.Created,
		Revision: m.Revision,
		Dirty:    m.Dirty,
		OutDir:   outDir,
		Files:    len(res.Files),
		Duration: dur.Round(time.Millisecond),
		Warnings: len(res.Warnings),
	}
	if len(m.Chunks) != 0 {
		e.Chunks = make(map[string]int, len(m.Chunks))
		for name, g := range m.Chunks {
			e.Chunks[name] = len(g.Inputs)
		}
	}
	return e
}

// Log is the build history of a project.
type Log struct {
	*Table[Entry]
	keep int
}

// Open loads the history next to the project file at project.
func Open(project string, keep int) (*Log, error) {
	t, err := NewTable[Entry](filepath.Join(filepath.Dir(project), filepath.FromSlash(File)))
	if err != nil {
		return nil, err
	}
	return &Log{Table: t, keep: keep}, nil
}

// Record appends e and drops the oldest entries beyond the retention.
func (l *Log) Record(e Entry) error {
	if err := l.Append(e); err != nil {
		return err
	}
	return l.Truncate(l.keep)
}
