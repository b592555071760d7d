// Package runtimecfg reads the configuration object the serving page injects
// as window.LakukanDrive.
//
// The object is trusted: it comes from the same server that serves the
// assets. Missing or malformed fields fall back to their zero value and never
// cause a failure. A Config is built once at process start and is immutable
// afterwards; pass it explicitly to whatever needs it.
package runtimecfg

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"
)

// GlobalName is the property of window holding the injected object.
const GlobalName = "LakukanDrive"

// DefaultName is used when the injected object carries no display name.
const DefaultName = "Lakukan Drive"

// TusEndpoint is the resumable upload endpoint, relative to the API base.
const TusEndpoint = "/api/tus"

const logoPath = "/img/logo.svg"

// TusSettings configures the resumable upload client.
type TusSettings struct {
	ChunkSize  uint64 `json:"chunkSize" jsonschema:"description=Upload chunk size in bytes"`
	RetryCount uint16 `json:"retryCount" jsonschema:"description=Retries per chunk before giving up"`
}

// Settings is the injected object as it appears on the wire.
type Settings struct {
	Name                  string      `json:"Name" jsonschema:"description=Display name of the drive"`
	DisableExternal       bool        `json:"DisableExternal" jsonschema:"description=Hide external sharing links"`
	DisableUsedPercentage bool        `json:"DisableUsedPercentage" jsonschema:"description=Hide the used space indicator"`
	BaseURL               string      `json:"BaseURL" jsonschema:"description=Path prefix of the application"`
	StaticURL             string      `json:"StaticURL" jsonschema:"description=Path prefix of the static assets"`
	ReCaptcha             string      `json:"ReCaptcha" jsonschema:"description=CAPTCHA type, empty when disabled"`
	ReCaptchaKey          string      `json:"ReCaptchaKey" jsonschema:"description=CAPTCHA site key"`
	ReCaptchaHost         string      `json:"ReCaptchaHost" jsonschema:"description=Host serving the CAPTCHA script"`
	Signup                bool        `json:"Signup" jsonschema:"description=Allow self registration"`
	Version               string      `json:"Version" jsonschema:"description=Server version string"`
	NoAuth                bool        `json:"NoAuth" jsonschema:"description=Authentication is disabled"`
	AuthMethod            string      `json:"AuthMethod" jsonschema:"description=Authentication mode identifier"`
	LogoutPage            string      `json:"LogoutPage" jsonschema:"description=Redirect target after logout"`
	LoginPage             bool        `json:"LoginPage" jsonschema:"description=Show the login page"`
	HideLoginButton       bool        `json:"HideLoginButton" jsonschema:"description=Hide the login button"`
	Theme                 string      `json:"Theme" jsonschema:"description=UI theme (light, dark or empty for the system default)"`
	EnableThumbs          bool        `json:"EnableThumbs" jsonschema:"description=Render image thumbnails"`
	ResizePreview         bool        `json:"ResizePreview" jsonschema:"description=Resize images in previews"`
	EnableExec            bool        `json:"EnableExec" jsonschema:"description=Allow remote command execution"`
	TusSettings           TusSettings `json:"TusSettings" jsonschema:"description=Resumable upload settings"`
}

// Config is the frozen view over Settings with derived values.
type Config struct {
	s       Settings
	origin  string
	logoURL string
}

// New freezes s.
func New(s Settings) *Config {
	if s.Name == "" {
		s.Name = DefaultName
	}
	return &Config{s: s, logoURL: s.StaticURL + logoPath}
}

// Parse decodes the injected object.
//
// Each field is decoded on its own so one bad value only disables that value.
// Input that is not a JSON object yields the defaults.
func Parse(data []byte) *Config {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if len(bytes.TrimSpace(data)) != 0 {
			slog.Warn("Ignoring malformed runtime config", "err", err)
		}
		return New(Settings{})
	}
	var s Settings
	v := reflect.ValueOf(&s).Elem()
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, v.Field(i).Addr().Interface()); err != nil {
			slog.Warn("Ignoring malformed runtime config field", "field", name, "err", err)
			v.Field(i).SetZero()
		}
	}
	return New(s)
}

// WithOrigin returns a copy bound to the page origin.
func (c *Config) WithOrigin(origin string) *Config {
	d := *c
	d.origin = strings.TrimSuffix(origin, "/")
	return &d
}

// Settings returns a copy of the underlying settings.
func (c *Config) Settings() Settings { return c.s }

// JSON returns the object to inject into the page.
func (c *Config) JSON() ([]byte, error) {
	return json.Marshal(c.s)
}

func (c *Config) Name() string                { return c.s.Name }
func (c *Config) DisableExternal() bool       { return c.s.DisableExternal }
func (c *Config) DisableUsedPercentage() bool { return c.s.DisableUsedPercentage }
func (c *Config) BaseURL() string             { return c.s.BaseURL }
func (c *Config) StaticURL() string           { return c.s.StaticURL }
func (c *Config) ReCaptcha() string           { return c.s.ReCaptcha }
func (c *Config) ReCaptchaKey() string        { return c.s.ReCaptchaKey }
func (c *Config) ReCaptchaHost() string       { return c.s.ReCaptchaHost }
func (c *Config) Signup() bool                { return c.s.Signup }
func (c *Config) Version() string             { return c.s.Version }
func (c *Config) NoAuth() bool                { return c.s.NoAuth }
func (c *Config) AuthMethod() string          { return c.s.AuthMethod }
func (c *Config) LogoutPage() string          { return c.s.LogoutPage }
func (c *Config) LoginPage() bool             { return c.s.LoginPage }
func (c *Config) HideLoginButton() bool       { return c.s.HideLoginButton }
func (c *Config) Theme() string               { return c.s.Theme }
func (c *Config) EnableThumbs() bool          { return c.s.EnableThumbs }
func (c *Config) ResizePreview() bool         { return c.s.ResizePreview }
func (c *Config) EnableExec() bool            { return c.s.EnableExec }
func (c *Config) TusSettings() TusSettings    { return c.s.TusSettings }
func (c *Config) Origin() string              { return c.origin }
func (c *Config) TusEndpoint() string         { return TusEndpoint }

// LogoURL is the logo location under the static base.
func (c *Config) LogoURL() string { return c.logoURL }
