package policy

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// schemaV1 is the JSON Schema for foyer.yaml access policy files.
const schemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "foyer.yaml Access Policy",
  "type": "object",
  "required": ["assistant", "entities", "services", "actions"],
  "additionalProperties": false,
  "properties": {
    "assistant": {
      "type": "object",
      "required": ["name", "version"],
      "properties": {
        "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_-]+$"},
        "description": {"type": "string"},
        "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"}
      }
    },
    "entities": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^[a-z_]+\\.[a-z0-9_]+$"}
    },
    "services": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^[a-z_]+/[a-z_]+$"}
    },
    "actions": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["service", "entity_id", "description"],
        "properties": {
          "service": {"type": "string"},
          "entity_id": {"type": "string"},
          "description": {"type": "string"}
        }
      },
      "propertyNames": {"pattern": "^[a-z0-9_]+$"}
    }
  }
}`

// ValidateSchema validates YAML policy bytes against the schema.
// The YAML is first converted to JSON because gojsonschema operates on JSON.
func ValidateSchema(yamlBytes []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return fmt.Errorf("parsing YAML for schema validation: %w", err)
	}

	normalized := normalizeYAML(raw)

	jsonBytes, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("converting YAML to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaV1)
	documentLoader := gojsonschema.NewBytesLoader(jsonBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for _, verr := range result.Errors() {
			errMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("schema validation errors:\n%s", errMsg)
	}

	return nil
}

// normalizeYAML recursively converts map[interface{}]interface{} to
// map[string]interface{} so that json.Marshal can handle it.
func normalizeYAML(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[k] = normalizeYAML(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, v := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(v)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}
