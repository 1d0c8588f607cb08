package interpreter

import (
	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/runtime"
)

// evaluateExpression dispatches on the expression variant.
func (i *Interpreter) evaluateExpression(node ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	switch n := node.(type) {
	case *ast.NumberLiteral:
		return runtime.NumberValue{Val: n.Value}, nil
	case *ast.StringLiteral:
		return runtime.StringValue{Val: n.Value}, nil
	case *ast.Symbol:
		if !n.IsVariable() {
			return nil, unimplemented(n, "%q is not a variable name", n.Name)
		}
		return env.Get(n.Name)
	case *ast.CompoundForm:
		return i.evaluateCompoundForm(n, env)
	case nil:
		return nil, unimplemented(nil, "missing expression")
	default:
		return nil, unimplemented(n, "unsupported node type %s", n.NodeType())
	}
}

func (i *Interpreter) evaluateCompoundForm(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	switch form.Keyword {
	case ast.KeywordAdd, ast.KeywordMul, ast.KeywordGreater, ast.KeywordLess:
		return i.evaluateBinaryOperator(form, env)
	case ast.KeywordVar:
		return i.evaluateVar(form, env)
	case ast.KeywordSet:
		return i.evaluateSet(form, env)
	case ast.KeywordBegin:
		return i.evaluateBegin(form, env)
	case ast.KeywordIf:
		return i.evaluateIf(form, env)
	case ast.KeywordWhile:
		return i.evaluateWhile(form, env)
	case ast.KeywordUnknown:
		if form.Head == nil {
			return nil, unimplemented(form, "empty form")
		}
		return nil, unimplemented(form, "unknown form head %s", form.Head)
	default:
		return nil, unimplemented(form, "unhandled keyword %s", form.Keyword)
	}
}
