// Package schema describes a port's data shape, validates values against it, and decides
// structural equality between two schemas.
package schema

import (
	"errors"
	"fmt"
)

// Kind is a primitive shape tag.
type Kind string

const (
	KindBytes   Kind = "bytes"
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindFloat   Kind = "float"
	KindBoolean Kind = "boolean"
	KindDict    Kind = "dict"
	KindList    Kind = "list"
	KindAny     Kind = "any"
)

// FieldDef describes one field of a mapping shape: either a bare primitive tag or a
// detailed descriptor carrying required/description/default.
type FieldDef struct {
	Type        Kind
	Required    bool
	Description string
	Default     any
	HasDefault  bool
}

// Shape is either a primitive Kind (Fields == nil) or a mapping of field name to FieldDef.
type Shape struct {
	Primitive Kind
	Fields    map[string]FieldDef
}

// IsMapping reports whether the shape is a field-mapping shape rather than a bare primitive.
func (s Shape) IsMapping() bool {
	return s.Fields != nil
}

// Schema describes a port's data shape.
type Schema struct {
	IsStreaming bool
	Shape       Shape
	Description string
}

// Sentinel validation failures. Callers wrap these as errs.Configuration (at connection
// build time) or errs.NodeExecution (at runtime chunk/value validation).
var (
	ErrTypeMismatch  = errors.New("schema: type mismatch")
	ErrShapeMismatch = errors.New("schema: shape mismatch")
	ErrMissingField  = errors.New("schema: missing required field")
)

// New constructs a primitive schema.
func New(kind Kind, streaming bool) *Schema {
	return &Schema{IsStreaming: streaming, Shape: Shape{Primitive: kind}}
}

// NewMapping constructs a mapping (struct-shaped) schema.
func NewMapping(fields map[string]FieldDef, streaming bool) *Schema {
	return &Schema{IsStreaming: streaming, Shape: Shape{Fields: fields}}
}

// Validate accepts any value for KindAny; for primitive tags, accepts nil and otherwise
// requires a matching native Go type; for mapping shapes, requires a map[string]any value
// and, per declared field: materializes the default if absent-but-defaulted, fails
// ErrMissingField if absent-required-no-default, else validates recursively. It returns the
// (possibly defaulted) value.
func (s *Schema) Validate(value any) (any, error) {
	if s == nil {
		return value, nil
	}
	if s.Shape.IsMapping() {
		return s.validateMapping(value)
	}
	return validatePrimitive(s.Shape.Primitive, value)
}

func (s *Schema) validateMapping(value any) (any, error) {
	if value == nil {
		value = map[string]any{}
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected mapping, got %T", ErrShapeMismatch, value)
	}
	for name, def := range s.Shape.Fields {
		fieldVal, present := m[name]
		if !present {
			if def.HasDefault {
				m[name] = def.Default
				continue
			}
			if def.Required {
				return nil, fmt.Errorf("%w: field %q", ErrMissingField, name)
			}
			continue
		}
		validated, err := validatePrimitive(def.Type, fieldVal)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		m[name] = validated
	}
	return m, nil
}

func validatePrimitive(kind Kind, value any) (any, error) {
	if kind == KindAny {
		return value, nil
	}
	if value == nil {
		return nil, nil
	}
	switch kind {
	case KindBytes:
		if _, ok := value.([]byte); !ok {
			return nil, fmt.Errorf("%w: expected bytes, got %T", ErrTypeMismatch, value)
		}
	case KindString:
		if _, ok := value.(string); !ok {
			return nil, fmt.Errorf("%w: expected string, got %T", ErrTypeMismatch, value)
		}
	case KindInteger:
		switch value.(type) {
		case int, int32, int64:
		default:
			return nil, fmt.Errorf("%w: expected integer, got %T", ErrTypeMismatch, value)
		}
	case KindFloat:
		switch value.(type) {
		case float32, float64:
		default:
			return nil, fmt.Errorf("%w: expected float, got %T", ErrTypeMismatch, value)
		}
	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return nil, fmt.Errorf("%w: expected boolean, got %T", ErrTypeMismatch, value)
		}
	case KindDict:
		if _, ok := value.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: expected dict, got %T", ErrShapeMismatch, value)
		}
	case KindList:
		if _, ok := value.([]any); !ok {
			return nil, fmt.Errorf("%w: expected list, got %T", ErrShapeMismatch, value)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrTypeMismatch, kind)
	}
	return value, nil
}

// Equals reports structural equality: IsStreaming flags match and shapes are deeply equal
// on type/required/default. Descriptions are documentation and excluded from equality.
func (s *Schema) Equals(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.IsStreaming != other.IsStreaming {
		return false
	}
	return shapesEqual(s.Shape, other.Shape)
}

func shapesEqual(a, b Shape) bool {
	if a.IsMapping() != b.IsMapping() {
		return false
	}
	if !a.IsMapping() {
		return a.Primitive == b.Primitive
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for name, fa := range a.Fields {
		fb, ok := b.Fields[name]
		if !ok {
			return false
		}
		if fa.Type != fb.Type || fa.Required != fb.Required {
			return false
		}
		if fa.HasDefault != fb.HasDefault {
			return false
		}
		if fa.HasDefault && !defaultsEqual(fa.Default, fb.Default) {
			return false
		}
	}
	return true
}

func defaultsEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// String renders the schema for error messages (e.g. connection schema-mismatch errors).
func (s *Schema) String() string {
	if s == nil {
		return "<nil>"
	}
	if !s.Shape.IsMapping() {
		return fmt.Sprintf("{streaming=%v type=%s}", s.IsStreaming, s.Shape.Primitive)
	}
	return fmt.Sprintf("{streaming=%v fields=%d}", s.IsStreaming, len(s.Shape.Fields))
}
