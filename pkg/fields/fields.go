// Package fields composes operator-declared additional fields with the base
// waitlist and waitlist-user record shapes.
//
// A Schema is built once at startup and is immutable afterwards. It answers
// three questions for a model: which fields are persisted, which are returned
// to callers and which are accepted as input.
package fields

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

type Type string

const (
	TypeString      Type = "string"
	TypeNumber      Type = "number"
	TypeBoolean     Type = "boolean"
	TypeDate        Type = "date"
	TypeStringArray Type = "string[]"
	TypeNumberArray Type = "number[]"
)

func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeStringArray, TypeNumberArray:
		return true
	}
	return false
}

// Attribute is an operator declaration. Input and Returned default to true
// when nil. DefaultValue may be a static value or a func() any evaluated on
// every write.
type Attribute struct {
	Type         Type
	Required     bool
	Input        *bool
	Returned     *bool
	DefaultValue any
}

type Declarations map[string]Attribute

// Field is a resolved attribute inside a Schema.
type Field struct {
	Name         string
	StorageName  string
	Type         Type
	Required     bool
	Input        bool
	Returned     bool
	DefaultValue any
	Core         bool
}

func (f Field) Default() (any, bool) {
	switch d := f.DefaultValue.(type) {
	case nil:
		return nil, false
	case func() any:
		return d(), true
	default:
		return d, true
	}
}

type Schema struct {
	model  string
	fields map[string]Field
	names  []string
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func newSchema(model string, base []Field) *Schema {
	s := &Schema{model: model, fields: make(map[string]Field, len(base))}
	for _, f := range base {
		f.Core = true
		s.fields[f.Name] = f
		s.names = append(s.names, f.Name)
	}
	return s
}

func (s *Schema) clone() *Schema {
	c := &Schema{
		model:  s.model,
		fields: make(map[string]Field, len(s.fields)),
		names:  append([]string(nil), s.names...),
	}
	for k, v := range s.fields {
		c.fields[k] = v
	}
	return c
}

// Extend returns a new Schema with the declared fields added. s and decl are
// left untouched. Extending with a field that is already present with the
// same attribute is a no-op, so Extend is idempotent.
func (s *Schema) Extend(decl Declarations) (*Schema, error) {
	out := s.clone()

	names := make([]string, 0, len(decl))
	for name := range decl {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		field, err := resolve(name, decl[name])
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if core := out.coreCollision(name); core != "" {
			problems = append(problems, fmt.Sprintf("%s: collides with base field %q of %s", name, core, s.model))
			continue
		}
		if existing, ok := out.fields[name]; ok {
			if !sameField(existing, field) {
				problems = append(problems, fmt.Sprintf("%s: already declared with a different attribute", name))
			}
			continue
		}
		out.fields[name] = field
		out.names = append(out.names, name)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid additional fields for %s: %s", s.model, strings.Join(problems, "; "))
	}
	return out, nil
}

func (s *Schema) coreCollision(name string) string {
	lower := strings.ToLower(name)
	for _, f := range s.fields {
		if !f.Core {
			continue
		}
		if strings.ToLower(f.Name) == lower || strings.ToLower(f.StorageName) == lower {
			return f.Name
		}
	}
	return ""
}

func resolve(name string, attr Attribute) (Field, error) {
	if !fieldNamePattern.MatchString(name) {
		return Field{}, fmt.Errorf("%q: field names must start with a letter and contain only letters, digits and underscores", name)
	}
	if !attr.Type.Valid() {
		return Field{}, fmt.Errorf("%s: unsupported type %q", name, attr.Type)
	}

	field := Field{
		Name:         name,
		StorageName:  name,
		Type:         attr.Type,
		Required:     attr.Required,
		Input:        attr.Input == nil || *attr.Input,
		Returned:     attr.Returned == nil || *attr.Returned,
		DefaultValue: attr.DefaultValue,
	}

	if def, ok := field.Default(); ok {
		coerced, err := Coerce(field.Type, def)
		if err != nil {
			return Field{}, fmt.Errorf("%s: default value: %v", name, err)
		}
		if _, isFunc := attr.DefaultValue.(func() any); !isFunc {
			field.DefaultValue = coerced
		}
	} else if field.Required && !field.Input {
		return Field{}, fmt.Errorf("%s: a required field that is not accepted as input needs a default value", name)
	}

	return field, nil
}

func sameField(a, b Field) bool {
	if a.Type != b.Type || a.Required != b.Required || a.Input != b.Input || a.Returned != b.Returned {
		return false
	}
	fa, aFunc := a.DefaultValue.(func() any)
	fb, bFunc := b.DefaultValue.(func() any)
	if aFunc || bFunc {
		return aFunc && bFunc && reflect.ValueOf(fa).Pointer() == reflect.ValueOf(fb).Pointer()
	}
	return reflect.DeepEqual(a.DefaultValue, b.DefaultValue)
}

func (s *Schema) Model() string {
	return s.model
}

func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Persisted lists every stored field, base fields first.
func (s *Schema) Persisted() []string {
	return append([]string(nil), s.names...)
}

// Output lists the fields exposed to callers.
func (s *Schema) Output() []string {
	return s.filter(func(f Field) bool { return f.Returned })
}

// Input lists the fields a caller may set.
func (s *Schema) Input() []string {
	return s.filter(func(f Field) bool { return f.Input })
}

// Additional returns the operator-declared fields in declaration order.
func (s *Schema) Additional() []Field {
	var out []Field
	for _, name := range s.names {
		if f := s.fields[name]; !f.Core {
			out = append(out, f)
		}
	}
	return out
}

// HasRequiredInput reports whether callers must send at least one
// additional field.
func (s *Schema) HasRequiredInput() bool {
	for _, f := range s.Additional() {
		if f.Required && f.Input {
			if _, hasDefault := f.Default(); !hasDefault {
				return true
			}
		}
	}
	return false
}

func (s *Schema) filter(keep func(Field) bool) []string {
	var out []string
	for _, name := range s.names {
		if keep(s.fields[name]) {
			out = append(out, name)
		}
	}
	return out
}
