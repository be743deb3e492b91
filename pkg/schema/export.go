package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// playbookDoc is the reflection shape used for JSON-Schema generation.
// Commands are polymorphic in Go (CommandEntry holds an interface), so the
// schema validates against the union of all command fields; per-type rules
// live in the domain validation phase.
type playbookDoc struct {
	APIVersion string       `json:"apiVersion" jsonschema:"required,enum=playbook/v1"`
	Meta       Meta         `json:"meta"       jsonschema:"required"`
	Commands   []commandDoc `json:"commands"   jsonschema:"required"`
}

// commandDoc is the union of every concrete command type's fields.
type commandDoc struct {
	BaseCommand
	Shell   string            `json:"shell,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Seconds string            `json:"seconds,omitempty"`
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the playbook document shape using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&playbookDoc{})
	s.ID = "https://github.com/soralis-ops/sortie/schemas/playbook-v1.json"
	s.Title = "Sortie Playbook v1"
	s.Description = "Schema for sortie playbook YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
