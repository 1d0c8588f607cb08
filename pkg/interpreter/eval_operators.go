package interpreter

import (
	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/runtime"
)

// evaluateBinaryOperator handles +, *, > and <. Operands are evaluated left
// to right in env.
func (i *Interpreter) evaluateBinaryOperator(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	if form.Arity() != 2 {
		return nil, unimplemented(form, "%s expects 2 operands, got %d", form.Keyword, form.Arity())
	}
	left, err := i.evaluateExpression(form.Operands[0], env)
	if err != nil {
		return nil, err
	}
	right, err := i.evaluateExpression(form.Operands[1], env)
	if err != nil {
		return nil, err
	}

	switch form.Keyword {
	case ast.KeywordAdd, ast.KeywordMul:
		l, lok := left.(runtime.NumberValue)
		r, rok := right.(runtime.NumberValue)
		if !lok || !rok {
			return nil, unimplemented(form, "%s requires numbers, got %s and %s", form.Keyword, left.Kind(), right.Kind())
		}
		if form.Keyword == ast.KeywordAdd {
			return runtime.NumberValue{Val: l.Val + r.Val}, nil
		}
		return runtime.NumberValue{Val: l.Val * r.Val}, nil
	case ast.KeywordGreater, ast.KeywordLess:
		cmp, ok := compareValues(left, right)
		if !ok {
			return nil, unimplemented(form, "%s cannot order %s and %s", form.Keyword, left.Kind(), right.Kind())
		}
		if form.Keyword == ast.KeywordGreater {
			return runtime.BoolValue{Val: cmp > 0}, nil
		}
		return runtime.BoolValue{Val: cmp < 0}, nil
	default:
		return nil, unimplemented(form, "%s is not an operator", form.Keyword)
	}
}

// compareValues orders two numbers or two strings. NaN compares as
// neither greater nor less.
func compareValues(left, right runtime.Value) (int, bool) {
	switch l := left.(type) {
	case runtime.NumberValue:
		r, ok := right.(runtime.NumberValue)
		if !ok {
			return 0, false
		}
		switch {
		case l.Val < r.Val:
			return -1, true
		case l.Val > r.Val:
			return 1, true
		default:
			return 0, true
		}
	case runtime.StringValue:
		r, ok := right.(runtime.StringValue)
		if !ok {
			return 0, false
		}
		switch {
		case l.Val < r.Val:
			return -1, true
		case l.Val > r.Val:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}
