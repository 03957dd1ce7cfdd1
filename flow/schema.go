package flow

import (
	"fmt"
	"reflect"
)

// ParamType declares the shape a processor kind expects for one named input.
// Flow plumbs values between nodes as `any` (the erased value type) and
// recovers the concrete type at node boundaries via the schema below,
// per the "tagged variants or erased handle" design note.
type ParamType int

const (
	// TypeAny accepts any value without a type check. Use sparingly — it
	// opts a parameter out of construction-time validation.
	TypeAny ParamType = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeBytes
	TypeList
	TypeMap
)

func (t ParamType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeList:
		return "list"
	case TypeMap:
		return "map"
	default:
		return "any"
	}
}

// ParamSpec declares one named, typed parameter of a processor kind's
// process step.
type ParamSpec struct {
	Name string
	Type ParamType
}

// matches reports whether v's dynamic type satisfies t. nil never matches a
// concrete type (a processor kind that wants to accept nil must declare
// TypeAny).
func (t ParamType) matches(v any) bool {
	if t == TypeAny {
		return true
	}
	if v == nil {
		return false
	}
	switch t {
	case TypeInt:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case TypeFloat:
		switch v.(type) {
		case float32, float64:
			return true
		}
		return false
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeBytes:
		_, ok := v.([]byte)
		return ok
	case TypeList:
		k := reflect.ValueOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeMap:
		return reflect.ValueOf(v).Kind() == reflect.Map
	default:
		return true
	}
}

// validateBindings checks that bindings cover exactly the parameter names
// declared by schema (no extras, no missing keys), and that every literal
// binding's value satisfies its parameter's declared type. Node-reference
// bindings are not type-checked, here or at run time: the value a
// referent produces is passed to Process as is.
func validateBindings(nodeID int, schema []ParamSpec, bindings map[string]Binding) error {
	declared := make(map[string]ParamType, len(schema))
	for _, p := range schema {
		declared[p.Name] = p.Type
	}

	for name := range bindings {
		if _, ok := declared[name]; !ok {
			return &ConstructionError{
				NodeID:  nodeID,
				Code:    "UNKNOWN_PARAM",
				Message: fmt.Sprintf("binding %q is not a declared input of this processor kind", name),
			}
		}
	}
	for name := range declared {
		if _, ok := bindings[name]; !ok {
			return &ConstructionError{
				NodeID:  nodeID,
				Code:    "MISSING_PARAM",
				Message: fmt.Sprintf("missing binding for declared input %q", name),
			}
		}
	}

	for name, b := range bindings {
		if b.IsRef {
			continue
		}
		t := declared[name]
		if !t.matches(b.Literal) {
			return &ConstructionError{
				NodeID: nodeID,
				Code:   "TYPE_MISMATCH",
				Message: fmt.Sprintf("binding %q: literal value %v does not match declared type %s",
					name, b.Literal, t),
			}
		}
	}
	return nil
}
