package helpers

import (
	"github.com/invopop/jsonschema"
)

// SchemaFromStruct reflects the JSON schema of an argument struct, with
// definitions expanded inline.
func SchemaFromStruct(v interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
		// Models sometimes send extra arguments; they are ignored, not rejected
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(v)
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}
	// Gemini rejects the meta-schema keywords
	schema.Version = ""
	schema.ID = ""
	return schema
}
