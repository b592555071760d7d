// Package buildlog keeps the history of builds as a JSON lines file.
package buildlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Table is an append-mostly JSONL file mirrored in memory.
type Table[T any] struct {
	path string

	mu   sync.RWMutex
	rows []T
}

// NewTable loads path, creating its directory. A missing file is an empty
// table.
func NewTable[T any](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: not secret
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table[T]) load() error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()
	s := bufio.NewScanner(f)
	s.Buffer(nil, 1<<20)
	for line := 1; s.Scan(); line++ {
		if len(s.Bytes()) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(s.Bytes(), &row); err != nil {
			return fmt.Errorf("%s:%d: %w", t.path, line, err)
		}
		t.rows = append(t.rows, row)
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.path, err)
	}
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Last returns up to n of the most recent rows, newest first.
func (t *Table[T]) Last(n int) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n = min(max(n, 0), len(t.rows))
	out := make([]T, 0, n)
	for i := len(t.rows) - 1; i >= len(t.rows)-n; i-- {
		out = append(out, t.rows[i])
	}
	return out
}

// Append persists row at the end of the file.
func (t *Table[T]) Append(row T) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: not secret
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", t.path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	t.rows = append(t.rows, row)
	return nil
}

// Truncate keeps the newest n rows, rewriting the file when rows are
// dropped.
func (t *Table[T]) Truncate(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n < 0 || len(t.rows) <= n {
		return nil
	}
	keep := t.rows[len(t.rows)-n:]
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: derived from the table path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, row := range keep {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return err
	}
	t.rows = append([]T(nil), keep...)
	return nil
}
