package chunks

import (
	"strings"
	"testing"
)

func TestPlanner_Assign(t *testing.T) {
	tests := []struct {
		id     string
		want   string
		wantOK bool
	}{
		{"node_modules/dayjs/locale/fr.js", "dayjs", true},
		{"/abs/node_modules/dayjs/plugin/relativeTime.js", "dayjs", true},
		{"src/i18n/en.json", "i18n", true},
		{`C:\src\i18n\de.json`, "i18n", true},
		{"src/components/FileList.vue", "", false},
		{"node_modules/dayjs.js", "", false},
		// Evaluation order is the tie-break.
		{"node_modules/dayjs/i18n/x.js", "dayjs", true},
	}
	p := NewPlanner(nil)
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := p.Assign(tt.id)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Assign(%q) = (%q, %v), want (%q, %v)", tt.id, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPlanner_Plan(t *testing.T) {
	p := NewPlanner(nil)
	a := p.Plan([]string{
		"node_modules/dayjs/locale/fr.js",
		"node_modules/dayjs/locale/de.js",
		"src/i18n/en.json",
		"src/main.ts",
	})
	if len(a) != 3 {
		t.Fatalf("len = %d, want 3: %v", len(a), a)
	}
	if _, ok := a["src/main.ts"]; ok {
		t.Error("src/main.ts must fall through to the default bundle")
	}
	g := a.Groups()
	if got := strings.Join(g["dayjs"], ","); got != "node_modules/dayjs/locale/de.js,node_modules/dayjs/locale/fr.js" {
		t.Errorf("dayjs group = %s", got)
	}
	if len(g["i18n"]) != 1 {
		t.Errorf("i18n group = %v", g["i18n"])
	}
}

func TestPlanner_Verify(t *testing.T) {
	p := NewPlanner(nil)
	if err := p.Verify(); err == nil {
		t.Fatal("expected error before any module was assigned")
	}
	p.Assign("src/i18n/en.json")
	err := p.Verify()
	if err == nil || !strings.Contains(err.Error(), "dayjs") || strings.Contains(err.Error(), "i18n") {
		t.Errorf("Verify() = %v, want only dayjs missing", err)
	}
	p.Assign("node_modules/dayjs/dayjs.min.js")
	if err := p.Verify(); err != nil {
		t.Errorf("Verify() = %v", err)
	}
}

func TestNewPlanner_CopiesRules(t *testing.T) {
	rules := []Rule{{Bundle: "vendor", Match: "node_modules/"}}
	p := NewPlanner(rules)
	rules[0].Bundle = "changed"
	if got := p.Rules()[0].Bundle; got != "vendor" {
		t.Errorf("Bundle = %q", got)
	}
}
