package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated schema document.
const SchemaID = "https://github.com/ormasoftchile/kombi/schemas/config-v1.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Config struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Config{})
	s.ID = SchemaID
	s.Title = "Kombi rule configuration v1"
	s.Description = "Schema for kombi task holder configuration documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
