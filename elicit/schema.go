package elicit

import "fmt"

// FieldType enumerates the primitive input field types a form can request.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldEnum    FieldType = "enum"
)

// Field describes one input the form collects.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label,omitempty"`
	Required bool      `json:"required,omitempty"`
	// Constraints carries type-specific limits: "options" ([]string) for enum
	// fields, "min"/"max" (float64) for number fields, "max_length" (int) for
	// string fields.
	Constraints map[string]any `json:"constraints,omitempty"`
}

// Schema is the typed form definition attached to an elicitation request.
type Schema struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
}

// Validate checks submitted values against the schema: required fields must
// be present and typed fields must match their declared type and constraints.
func (s Schema) Validate(values map[string]any) error {
	for _, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			if f.Required {
				return fmt.Errorf("field %q is required", f.Name)
			}
			continue
		}
		if err := f.validate(v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) validate(v any) error {
	switch f.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string, got %T", f.Name, v)
		}
		if maxLen, ok := f.Constraints["max_length"].(int); ok && len(s) > maxLen {
			return fmt.Errorf("field %q: exceeds max length %d", f.Name, maxLen)
		}
	case FieldNumber:
		n, ok := asNumber(v)
		if !ok {
			return fmt.Errorf("field %q: expected number, got %T", f.Name, v)
		}
		if minVal, ok := f.Constraints["min"].(float64); ok && n < minVal {
			return fmt.Errorf("field %q: below minimum %v", f.Name, minVal)
		}
		if maxVal, ok := f.Constraints["max"].(float64); ok && n > maxVal {
			return fmt.Errorf("field %q: above maximum %v", f.Name, maxVal)
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("field %q: expected boolean, got %T", f.Name, v)
		}
	case FieldEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string option, got %T", f.Name, v)
		}
		options := enumOptions(f.Constraints["options"])
		for _, opt := range options {
			if opt == s {
				return nil
			}
		}
		return fmt.Errorf("field %q: %q is not a valid option", f.Name, s)
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// enumOptions tolerates both []string literals and []any decoded from JSON.
func enumOptions(v any) []string {
	switch opts := v.(type) {
	case []string:
		return opts
	case []any:
		out := make([]string, 0, len(opts))
		for _, o := range opts {
			if s, ok := o.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
