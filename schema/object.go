package schema

import (
	"fmt"

	"github.com/skiffdb/skiff/value"
)

// Kind names the value type a field must hold.
type Kind int

const (
	// KindAny accepts every value type.
	KindAny Kind = iota
	// KindString accepts value.String.
	KindString
	// KindInt accepts value.Int.
	KindInt
	// KindBool accepts value.Bool.
	KindBool
	// KindArray accepts value.Array.
	KindArray
	// KindObject accepts value.Object.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field declares one object field for ObjectValidator.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
}

// ObjectValidator is a minimal native implementation of the Validator
// contract: required/optional fields with kind checks, unknown fields
// rejected. It exists so a workspace can mix validator libraries - and so
// tests do not need a CUE context - not as a full schema language.
type ObjectValidator struct {
	fields []Field
	byName map[string]Field
}

// NewObject builds an object validator from field declarations.
func NewObject(fields ...Field) *ObjectValidator {
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return &ObjectValidator{fields: fields, byName: byName}
}

// Validate implements Validator.
func (o *ObjectValidator) Validate(v value.Value) (value.Value, []Issue) {
	obj, ok := v.(value.Object)
	if !ok {
		return nil, []Issue{{Message: fmt.Sprintf("expected object, got %T", v)}}
	}

	var issues []Issue
	for _, f := range o.fields {
		fv, present := obj[f.Name]
		if !present {
			if !f.Optional {
				issues = append(issues, Issue{Path: f.Name, Message: "required field missing"})
			}
			continue
		}
		if !kindMatches(f.Kind, fv) {
			issues = append(issues, Issue{
				Path:    f.Name,
				Message: fmt.Sprintf("expected %s, got %s", f.Kind, kindOf(fv)),
			})
		}
	}
	for _, k := range obj.SortedKeys() {
		if _, known := o.byName[k]; !known {
			issues = append(issues, Issue{Path: k, Message: "unknown field"})
		}
	}

	if len(issues) > 0 {
		return nil, issues
	}
	return v, nil
}

// EnsuresStringID implements IDGuard.
func (o *ObjectValidator) EnsuresStringID() bool {
	f, ok := o.byName["id"]
	return ok && !f.Optional && f.Kind == KindString
}

func kindMatches(k Kind, v value.Value) bool {
	switch k {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(value.String)
		return ok
	case KindInt:
		_, ok := v.(value.Int)
		return ok
	case KindBool:
		_, ok := v.(value.Bool)
		return ok
	case KindArray:
		_, ok := v.(value.Array)
		return ok
	case KindObject:
		_, ok := v.(value.Object)
		return ok
	default:
		return false
	}
}

func kindOf(v value.Value) string {
	switch v.(type) {
	case value.Null:
		return "null"
	case value.String:
		return "string"
	case value.Int:
		return "int"
	case value.Bool:
		return "bool"
	case value.Array:
		return "array"
	case value.Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
