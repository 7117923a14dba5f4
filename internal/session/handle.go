package session

import (
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Known Variable.Type values (spec.md §3). Any other string is treated
// as Opaque — the non-closed sum type spec.md §9 calls out.
const (
	TypeString    = "string"
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeNull      = "null"
	TypeUndefined = "undefined"
	TypeObject    = "object"
	TypeFunction  = "function"
)

// VariableInfo is the wire shape the debuggee sends for one variable
// (inside a "variables" response, or synthesised from an "evaluate"
// response).
type VariableInfo struct {
	Name                string `json:"name"`
	Value               string `json:"value"`
	Type                string `json:"type"`
	VariablesReference  int    `json:"variablesReference"`
	IndexedVariables    *int   `json:"indexedVariables,omitempty"`
}

// Variable is the unifying entity spec.md §3 describes: either a decoded
// primitive or a handle into the debuggee's variable table.
type Variable struct {
	Name  string
	Ref   int // 0 for primitives
	Type  string

	Primitive      bool
	PrimitiveValue interface{} // decoded scalar when Primitive is true
	ValueAsString  string      // the debuggee's rendered string form

	IsArray      bool
	IndexedCount int
}

// NewVariable applies the typing rules in spec.md §3 to a wire VariableInfo.
func NewVariable(info VariableInfo) Variable {
	v := Variable{
		Name:          info.Name,
		Ref:           info.VariablesReference,
		Type:          info.Type,
		ValueAsString: info.Value,
	}

	switch info.Type {
	case TypeString:
		v.Primitive = true
		v.PrimitiveValue = info.Value
	case TypeInteger:
		v.Primitive = true
		if n, err := strconv.ParseInt(info.Value, 10, 64); err == nil {
			v.PrimitiveValue = n
		}
	case TypeFloat:
		v.Primitive = true
		if f, err := strconv.ParseFloat(info.Value, 64); err == nil {
			v.PrimitiveValue = f
		}
	case TypeBoolean:
		v.Primitive = true
		v.PrimitiveValue = info.Value == "true"
	case TypeNull:
		v.Primitive = true
		v.PrimitiveValue = nil
	case TypeUndefined:
		v.Primitive = true
		v.PrimitiveValue = nil
	case TypeObject, TypeFunction:
		v.Primitive = false
		v.IsArray = info.IndexedVariables != nil
		if info.IndexedVariables != nil {
			v.IndexedCount = *info.IndexedVariables
		}
	default:
		// Opaque: non-primitive, keep ValueAsString only.
		v.Primitive = false
	}

	return v
}

// StackFrame is an immutable snapshot of one call-stack level (spec.md §3).
// Its Id is only valid as a frameId until the next resume-like state change.
type StackFrame struct {
	Id         int    `json:"id"`
	Name       string `json:"name"`
	FileName   string `json:"fileName"`
	LineNumber int    `json:"lineNumber"`
}

// Scope specialises a Variable reference (spec.md §3).
type Scope struct {
	Name      string `json:"name"`
	Reference int    `json:"reference"`
	Expensive bool   `json:"expensive"`
}

// Breakpoint is keyed by source path at the call site (spec.md §3).
type Breakpoint struct {
	Line   int `json:"line"`
	Column int `json:"column,omitempty"`
}

// BreakpointVerification is the per-breakpoint result of setBreakpoints
// on protocol v>=6, or a synthetically-verified result on earlier
// versions (spec.md §4.3).
type BreakpointVerification struct {
	Verified bool `json:"verified"`
}
