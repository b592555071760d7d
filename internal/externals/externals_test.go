package externals

import "testing"

func TestIsExternal(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"https://www.google.com/recaptcha/api.js", true},
		{"https://www.recaptcha.net/recaptcha/api.js?render=explicit", true},
		{"[{[ .ReCaptchaHost ]}]/recaptcha/api.js", true},
		{"[{[ .ReCaptchaHost ]}]", true},
		{"./src/api.js", false},
		{"recaptcha/other.js", false},
		{"[{[ .StaticURL ]}]/assets/index.js", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := IsExternal(tt.id); got != tt.want {
				t.Errorf("IsExternal(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestAny(t *testing.T) {
	r := Any(IsExternal, func(id string) bool { return id == "vue" })
	if !r("vue") || !r("recaptcha/api.js") || r("dayjs") {
		t.Error("Any() combined rules incorrectly")
	}
	if Any()("x") {
		t.Error("empty Any() must not match")
	}
}
