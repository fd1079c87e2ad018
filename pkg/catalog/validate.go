package catalog

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/unfazed-dev/genui/pkg/models"
)

var schemaCache sync.Map

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := name + ":" + string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateInput checks tool input against the tool's input schema. A schema
// that fails to compile is a tool-conversion error returned to the caller;
// input that fails validation is reported through the result, not an error.
func ValidateInput(schema models.ToolSchema, input map[string]any) (models.ValidationResult, error) {
	compiled, err := compileSchema(schema.Name, schema.InputSchema)
	if err != nil {
		return models.ValidationResult{}, models.WrapError(models.ErrorToolConversion,
			"invalid input schema for "+schema.Name, err)
	}

	decoded, err := normalizeInput(input)
	if err != nil {
		return models.ValidationResult{}, models.WrapError(models.ErrorToolConversion,
			"unencodable input for "+schema.Name, err)
	}

	if err := compiled.Validate(decoded); err != nil {
		result := models.ValidationResult{Valid: false}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			for _, cause := range flattenCauses(ve) {
				result.Errors = append(result.Errors, cause)
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result, nil
	}

	return models.ValidationResult{Valid: true}, nil
}

// normalizeInput round-trips the input through JSON so nested values match
// what a JSON decode would produce, which is what the validator expects.
func normalizeInput(input map[string]any) (any, error) {
	if input == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func flattenCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		return []string{ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenCauses(cause)...)
	}
	return out
}
