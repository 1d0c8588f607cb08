package interpreter

import (
	"testing"

	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/runtime"
)

func mustEvaluate(t *testing.T, interp *Interpreter, expr ast.Expression) runtime.Value {
	t.Helper()
	val, err := interp.Evaluate(expr, nil)
	if err != nil {
		t.Fatalf("evaluating %s: %v", expr, err)
	}
	return val
}

func expectNumber(t *testing.T, val runtime.Value, want float64) {
	t.Helper()
	num, ok := val.(runtime.NumberValue)
	if !ok {
		t.Fatalf("expected number %v, got %#v", want, val)
	}
	if num.Val != want {
		t.Fatalf("expected %v, got %v", want, num.Val)
	}
}

func expectString(t *testing.T, val runtime.Value, want string) {
	t.Helper()
	str, ok := val.(runtime.StringValue)
	if !ok || str.Val != want {
		t.Fatalf("expected string %q, got %#v", want, val)
	}
}

func expectBool(t *testing.T, val runtime.Value, want bool) {
	t.Helper()
	b, ok := val.(runtime.BoolValue)
	if !ok || b.Val != want {
		t.Fatalf("expected bool %v, got %#v", want, val)
	}
}

func expectNil(t *testing.T, val runtime.Value) {
	t.Helper()
	if _, ok := val.(runtime.NilValue); !ok {
		t.Fatalf("expected nil, got %#v", val)
	}
}
