package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
)

// ArgumentError reports arguments that do not match a tool's declared
// parameters.
type ArgumentError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return talkErrors.ErrInvalidArguments
}

// DecodeArguments parses raw tool-call arguments. An empty string counts as
// an empty object; anything other than a JSON object is rejected.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, fmt.Errorf("arguments must be a JSON object, got null")
	}
	return args, nil
}

// ValidateArguments checks args against a JSON-schema object declaration:
// required fields, unknown fields, types and enums. Null counts as absent.
func ValidateArguments(toolName string, schema map[string]interface{}, args map[string]interface{}) error {
	return validateObject(toolName, "", schema, args)
}

func validateObject(toolName, prefix string, schema map[string]interface{}, input map[string]interface{}) error {
	for _, field := range requiredFields(schema) {
		if v, exists := input[field]; !exists || v == nil {
			return &ArgumentError{Tool: toolName, Field: join(prefix, field), Reason: "missing required field"}
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		propSchema, defined := properties[key]
		if !defined {
			return &ArgumentError{Tool: toolName, Field: join(prefix, key), Reason: "unknown field"}
		}
		value := input[key]
		if value == nil {
			continue
		}
		propSchemaMap, ok := propSchema.(map[string]interface{})
		if !ok {
			continue
		}
		if err := validateValue(toolName, join(prefix, key), propSchemaMap, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(toolName, field string, schema map[string]interface{}, value interface{}) error {
	mismatch := func(expected string) error {
		return &ArgumentError{Tool: toolName, Field: field, Reason: fmt.Sprintf("expected %s, got %s", expected, jsonKind(value))}
	}

	switch schema["type"] {
	case "string":
		if _, ok := value.(string); !ok {
			return mismatch("string")
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return mismatch("number")
		}
	case "integer":
		n, ok := value.(float64)
		if !ok || n != math.Trunc(n) {
			return mismatch("integer")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mismatch("boolean")
		}
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return mismatch("array")
		}
		if itemsSchema, ok := schema["items"].(map[string]interface{}); ok {
			for i, item := range arr {
				if err := validateValue(toolName, fmt.Sprintf("%s[%d]", field, i), itemsSchema, item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return mismatch("object")
		}
		if err := validateObject(toolName, field, schema, obj); err != nil {
			return err
		}
	}

	if allowed := enumValues(schema); len(allowed) > 0 {
		for _, a := range allowed {
			if a == value {
				return nil
			}
		}
		return &ArgumentError{Tool: toolName, Field: field, Reason: fmt.Sprintf("value %v is not one of %v", value, allowed)}
	}
	return nil
}

func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		out := make([]string, 0, len(required))
		for _, f := range required {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func enumValues(schema map[string]interface{}) []interface{} {
	switch enum := schema["enum"].(type) {
	case []interface{}:
		return enum
	case []string:
		out := make([]interface{}, len(enum))
		for i, s := range enum {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}
