package assetpath

import (
	"net/url"
	"strings"
	"testing"
)

func TestRewriter_Resolve(t *testing.T) {
	rw := &Rewriter{}
	tests := []struct {
		name     string
		filename string
		host     HostType
		importer string
		want     Reference
	}{
		{"js", "assets/logo-abc.svg", HostJS, "assets/index.js", Reference{Runtime, `window.__prependStaticUrl("assets/logo-abc.svg")`}},
		{"js leading slash", "/assets/a.png", HostJS, "", Reference{Runtime, `window.__prependStaticUrl("assets/a.png")`}},
		{"html", "assets/index-123.js", HostHTML, "index.html", Reference{Literal, "[{[ .StaticURL ]}]/assets/index-123.js"}},
		{"css same dir", "assets/font.woff2", HostOther, "assets/index.css", Reference{Relative, "./font.woff2"}},
		{"css sibling dir", "img/bg.png", HostOther, "assets/index.css", Reference{Relative, "../img/bg.png"}},
		{"css at root", "img/bg.png", HostOther, "index.css", Reference{Relative, "./img/bg.png"}},
		{"css nested", "a/b/c.png", HostOther, "a/d/e/x.css", Reference{Relative, "../../b/c.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rw.Resolve(tt.filename, tt.host, tt.importer)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRewriter_CustomNames(t *testing.T) {
	rw := &Rewriter{Func: "__p", Placeholder: "{{base}}"}
	if got := rw.Resolve("a.js", HostJS, "").Value; got != `window.__p("a.js")` {
		t.Errorf("js = %q", got)
	}
	if got := rw.Resolve("a.js", HostHTML, "").Value; got != "{{base}}/a.js" {
		t.Errorf("html = %q", got)
	}
}

// The same filename resolves under every prefix chosen at serve time.
func TestPrefixer_AnyPrefix(t *testing.T) {
	const filename = "assets/index-9f8e.js"
	for _, prefix := range []string{"", "/drive", "/a/b/c", "https://cdn.example.com/static", "/trailing/"} {
		got := NewPrefixer(prefix)(filename)
		want := strings.TrimRight(prefix, "/") + "/" + filename
		if got != want {
			t.Errorf("prefix %q: got %q, want %q", prefix, got, want)
		}
		if _, err := url.Parse(got); err != nil {
			t.Errorf("prefix %q: %v", prefix, err)
		}
	}
}

func TestPrefixScript(t *testing.T) {
	s := PrefixScript("LakukanDrive")
	if !strings.HasPrefix(s, "window.__prependStaticUrl = ") {
		t.Errorf("PrefixScript() = %q", s)
	}
	if !strings.Contains(s, "window.LakukanDrive.StaticURL") {
		t.Errorf("PrefixScript() does not read the static URL: %q", s)
	}
}

func TestSubstitute(t *testing.T) {
	raw := []byte(`<script src="[{[ .StaticURL ]}]/assets/index.js"></script>`)
	if !HasPlaceholders(raw) {
		t.Fatal("raw output must carry the placeholder")
	}
	for _, base := range []string{"/static", "/drive/static", ""} {
		out, err := Substitute("index.html", raw, map[string]any{"StaticURL": base})
		if err != nil {
			t.Fatal(err)
		}
		if HasPlaceholders(out) {
			t.Errorf("placeholder left in %q", out)
		}
		want := `<script src="` + base + `/assets/index.js"></script>`
		if string(out) != want {
			t.Errorf("got %q, want %q", out, want)
		}
	}
}

func TestSubstitute_Literal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"computed key", `export const o=k=>[{[k]:1}];`, `export const o=k=>[{[k]:1}];`},
		{"unclosed", `a[{[ .StaticURL `, `a[{[ .StaticURL `},
		{"mixed", `f([{[k]:"[{[ .StaticURL ]}]"}]);`, `f([{[k]:"/s"}]);`},
		{"repeated", `[{[.StaticURL]}]+[{[ .StaticURL ]}]`, `/s+/s`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Substitute("a.js", []byte(tt.in), map[string]any{"StaticURL": "/s"})
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.want {
				t.Errorf("got %q, want %q", out, tt.want)
			}
		})
	}
	if HasPlaceholders([]byte(`o=k=>[{[k]:1}]`)) {
		t.Error("a computed key is not a placeholder")
	}
}

func TestSubstitute_Errors(t *testing.T) {
	if _, err := Substitute("bad", []byte("x [{[ .Missing ]}]"), map[string]any{"StaticURL": "/s"}); err == nil {
		t.Error("expected error for an unknown field")
	}
	if _, err := Substitute("bad", []byte("x [{[ .Missing ]}]"), struct{ StaticURL string }{}); err == nil {
		t.Error("expected error for an unknown struct field")
	}
}
