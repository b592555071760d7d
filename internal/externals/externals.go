// Package externals lists module references the bundler must leave alone
// because the browser fetches them directly at runtime.
//
// The CAPTCHA script is the only one: its host is operator configured and
// the provider forbids self hosting it.
package externals

import "strings"

// CaptchaScript is the hosted CAPTCHA script path.
const CaptchaScript = "recaptcha/api.js"

// CaptchaHostPlaceholder is substituted by the server with the configured
// CAPTCHA host before the page is served.
const CaptchaHostPlaceholder = "[{[ .ReCaptchaHost ]}]"

// Rule reports whether a module reference is external.
type Rule func(id string) bool

// IsExternal is the default Rule.
func IsExternal(id string) bool {
	return strings.Contains(id, CaptchaScript) || strings.Contains(id, CaptchaHostPlaceholder)
}

// Any combines rules; a reference is external if any rule says so.
func Any(rules ...Rule) Rule {
	return func(id string) bool {
		for _, r := range rules {
			if r(id) {
				return true
			}
		}
		return false
	}
}
