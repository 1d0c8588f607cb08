package runtime

import (
	"fmt"
	"strconv"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindNil Kind = iota
	KindNumber
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "nil":
		return KindNil, true
	case "number":
		return KindNumber, true
	case "string":
		return KindString, true
	case "bool":
		return KindBool, true
	default:
		return 0, false
	}
}

// Value is the shared behaviour for all runtime values. Every implementation
// is a comparable struct, so values compare by content with ==.
type Value interface {
	Kind() Kind
}

//-----------------------------------------------------------------------------
// Scalars
//-----------------------------------------------------------------------------

type NumberValue struct {
	Val float64
}

func (v NumberValue) Kind() Kind { return KindNumber }

type StringValue struct {
	Val string
}

func (v StringValue) Kind() Kind { return KindString }

type BoolValue struct {
	Val bool
}

func (v BoolValue) Kind() Kind { return KindBool }

// NilValue is the "no value" result: empty blocks, loops that never ran and
// the `null` constant.
type NilValue struct{}

func (NilValue) Kind() Kind { return KindNil }

// Nil is the shared NilValue instance.
var Nil Value = NilValue{}

// Truthy reports whether a value selects the consequent of `if` and keeps a
// `while` running. Only false and nil are falsy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil:
		return false
	case NilValue:
		return false
	case BoolValue:
		return val.Val
	default:
		return true
	}
}

// Format renders a value the way the CLI prints results.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, NilValue:
		return "nil"
	case NumberValue:
		return strconv.FormatFloat(val.Val, 'f', -1, 64)
	case StringValue:
		return val.Val
	case BoolValue:
		return strconv.FormatBool(val.Val)
	default:
		return fmt.Sprintf("[%s]", v.Kind())
	}
}

// Inspect renders a value unambiguously: strings are quoted.
func Inspect(v Value) string {
	if s, ok := v.(StringValue); ok {
		return strconv.Quote(s.Val)
	}
	return Format(v)
}
