package fields

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Errors []FieldError

func (e Errors) Error() string {
	messages := make([]string, 0, len(e))
	for _, fe := range e {
		messages = append(messages, fe.Error())
	}
	return strings.Join(messages, "; ")
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseTime accepts a time.Time or an ISO-8601 string and returns it in UTC.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("expected a date")
		}
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("expected an ISO-8601 date, got %q", t)
	}
	return time.Time{}, fmt.Errorf("expected a date, got %T", v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Coerce checks v against t and normalizes it to the stored representation.
func Coerce(t Type, v any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string")
	case TypeNumber:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("expected a number")
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean")
	case TypeDate:
		return ParseTime(v)
	case TypeStringArray:
		switch items := v.(type) {
		case []string:
			return append([]string(nil), items...), nil
		case []any:
			out := make([]string, 0, len(items))
			for i, item := range items {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("element %d: expected a string", i)
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected an array of strings")
	case TypeNumberArray:
		switch items := v.(type) {
		case []float64:
			return append([]float64(nil), items...), nil
		case []any:
			out := make([]float64, 0, len(items))
			for i, item := range items {
				f, ok := toFloat(item)
				if !ok {
					return nil, fmt.Errorf("element %d: expected a number", i)
				}
				out = append(out, f)
			}
			return out, nil
		}
		return nil, fmt.Errorf("expected an array of numbers")
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}

// ValidateInput checks caller-supplied additional field values. Unknown
// keys and fields that are not accepted as input are rejected; missing
// fields receive their default. The returned map is safe to persist.
func (s *Schema) ValidateInput(values map[string]any) (map[string]any, Errors) {
	out := make(map[string]any)
	var errs Errors

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, ok := s.fields[key]
		switch {
		case !ok:
			errs = append(errs, FieldError{Field: key, Message: "is not a known field"})
			continue
		case field.Core:
			continue
		case !field.Input:
			errs = append(errs, FieldError{Field: key, Message: "cannot be set by the caller"})
			continue
		}

		if values[key] == nil {
			continue
		}
		coerced, err := Coerce(field.Type, values[key])
		if err != nil {
			errs = append(errs, FieldError{Field: key, Message: err.Error()})
			continue
		}
		out[field.StorageName] = coerced
	}

	for _, field := range s.Additional() {
		if _, set := out[field.StorageName]; set {
			continue
		}
		if def, ok := field.Default(); ok {
			coerced, err := Coerce(field.Type, def)
			if err != nil {
				errs = append(errs, FieldError{Field: field.Name, Message: "default value: " + err.Error()})
				continue
			}
			out[field.StorageName] = coerced
			continue
		}
		if field.Required {
			errs = append(errs, FieldError{Field: field.Name, Message: "is required"})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// FilterOutput drops additional fields that are not returned to callers.
// Keys the schema does not know about are dropped as well.
func (s *Schema) FilterOutput(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for _, field := range s.Additional() {
		if !field.Returned {
			continue
		}
		if v, ok := values[field.StorageName]; ok {
			out[field.Name] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
