package runtimecfg

import "github.com/invopop/jsonschema"

// Schema describes the injected object for server implementers. Every field
// is optional on the wire, nested objects included.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		Anonymous:                  true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	s := r.Reflect(&Settings{})
	s.Title = "window." + GlobalName
	return s
}
