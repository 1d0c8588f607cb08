package interpreter

import (
	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/runtime"
)

func (i *Interpreter) evaluateVar(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	name, err := bindingTarget(form)
	if err != nil {
		return nil, err
	}
	val, err := i.evaluateExpression(form.Operands[1], env)
	if err != nil {
		return nil, err
	}
	if i.tracing {
		i.logger.Debug("define", "name", name, "value", runtime.Inspect(val), "depth", env.Depth())
	}
	return env.Define(name, val), nil
}

func (i *Interpreter) evaluateSet(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	name, err := bindingTarget(form)
	if err != nil {
		return nil, err
	}
	val, err := i.evaluateExpression(form.Operands[1], env)
	if err != nil {
		return nil, err
	}
	if i.tracing {
		i.logger.Debug("assign", "name", name, "value", runtime.Inspect(val), "depth", env.Depth())
	}
	return env.Assign(name, val)
}

// bindingTarget validates (var|set name value) and returns name.
func bindingTarget(form *ast.CompoundForm) (string, error) {
	if form.Arity() != 2 {
		return "", unimplemented(form, "%s expects a name and a value", form.Keyword)
	}
	sym, ok := form.Operands[0].(*ast.Symbol)
	if !ok || !sym.IsVariable() {
		return "", unimplemented(form, "%s target must be a variable name", form.Keyword)
	}
	return sym.Name, nil
}

func (i *Interpreter) evaluateBegin(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	blockEnv := env.Extend()
	if i.tracing {
		i.logger.Debug("scope enter", "depth", blockEnv.Depth())
	}
	var result runtime.Value = runtime.Nil
	for _, expr := range form.Operands {
		val, err := i.evaluateExpression(expr, blockEnv)
		if err != nil {
			return nil, err
		}
		result = val
	}
	if i.tracing {
		i.logger.Debug("scope exit", "depth", blockEnv.Depth(), "bindings", len(blockEnv.Keys()))
	}
	return result, nil
}

func (i *Interpreter) evaluateIf(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	if form.Arity() != 3 {
		return nil, unimplemented(form, "if expects a condition, a consequent and an alternate")
	}
	cond, err := i.evaluateExpression(form.Operands[0], env)
	if err != nil {
		return nil, err
	}
	if runtime.Truthy(cond) {
		return i.evaluateExpression(form.Operands[1], env)
	}
	return i.evaluateExpression(form.Operands[2], env)
}

func (i *Interpreter) evaluateWhile(form *ast.CompoundForm, env *runtime.Environment) (runtime.Value, error) {
	if form.Arity() != 2 {
		return nil, unimplemented(form, "while expects a condition and a body")
	}
	var result runtime.Value = runtime.Nil
	for {
		cond, err := i.evaluateExpression(form.Operands[0], env)
		if err != nil {
			return nil, err
		}
		if !runtime.Truthy(cond) {
			return result, nil
		}
		result, err = i.evaluateExpression(form.Operands[1], env)
		if err != nil {
			return nil, err
		}
	}
}
