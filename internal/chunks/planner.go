// Package chunks groups many small modules into named output bundles.
//
// Locale files of the date library and the translation catalogs change often
// and come one file per language; without grouping each becomes its own tiny
// request.
package chunks

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Rule assigns modules whose resolved path contains Match to Bundle.
type Rule struct {
	Bundle string
	Match  string
}

// DefaultRules are evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{Bundle: "dayjs", Match: "dayjs/"},
	{Bundle: "i18n", Match: "i18n/"},
}

// Assignment maps a module origin to its bundle. Modules absent from the map
// go to the bundler's default chunking.
type Assignment map[string]string

// Planner assigns modules to bundles and remembers which rules fired.
type Planner struct {
	rules []Rule

	mu   sync.Mutex
	hits []int
}

// NewPlanner returns a planner over rules; nil means DefaultRules.
func NewPlanner(rules []Rule) *Planner {
	if rules == nil {
		rules = DefaultRules
	}
	return &Planner{rules: slices.Clone(rules), hits: make([]int, len(rules))}
}

// Rules returns the rules in evaluation order.
func (p *Planner) Rules() []Rule {
	return slices.Clone(p.rules)
}

// Assign returns the bundle for the module at id, or false for the default
// bundle.
func (p *Planner) Assign(id string) (string, bool) {
	id = strings.ReplaceAll(id, "\\", "/")
	for i, r := range p.rules {
		if strings.Contains(id, r.Match) {
			p.mu.Lock()
			p.hits[i]++
			p.mu.Unlock()
			return r.Bundle, true
		}
	}
	return "", false
}

// Plan assigns every id and returns the explicit assignments.
func (p *Planner) Plan(ids []string) Assignment {
	a := Assignment{}
	for _, id := range ids {
		if b, ok := p.Assign(id); ok {
			a[id] = b
		}
	}
	return a
}

// Groups inverts an Assignment: bundle name to sorted module ids.
func (a Assignment) Groups() map[string][]string {
	g := map[string][]string{}
	for id, b := range a {
		g[b] = append(g[b], id)
	}
	for _, ids := range g {
		slices.Sort(ids)
	}
	return g
}

// Verify returns an error naming every rule that matched no module since the
// planner was created. A rule that never fires usually means the module
// layout changed under it.
func (p *Planner) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var missing []string
	for i, r := range p.rules {
		if p.hits[i] == 0 {
			missing = append(missing, fmt.Sprintf("%s (%q)", r.Bundle, r.Match))
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("chunk rules matched no module: %s", strings.Join(missing, ", "))
	}
	return nil
}
