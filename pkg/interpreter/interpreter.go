package interpreter

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"eva/interpreter-go/pkg/ast"
	"eva/interpreter-go/pkg/driver"
	"eva/interpreter-go/pkg/runtime"
)

// Interpreter drives evaluation of eva expression trees against a
// caller-owned global environment.
type Interpreter struct {
	global  *runtime.Environment
	logger  *slog.Logger
	runID   string
	tracing bool
}

// Options configures tracing for an Interpreter.
type Options struct {
	// Logger receives debug records for scopes, bindings and failures.
	// Nil discards them.
	Logger *slog.Logger
	// RunID tags every record; a random UUID is used when empty.
	RunID string
}

// New returns an interpreter bound to global. A nil global gets an empty
// root environment.
func New(global *runtime.Environment) *Interpreter {
	return NewWithOptions(global, Options{})
}

// NewWithOptions is New with tracing configured.
func NewWithOptions(global *runtime.Environment, opts Options) *Interpreter {
	if global == nil {
		global = runtime.NewEnvironment(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Interpreter{
		global:  global,
		logger:  logger.With("run_id", runID),
		runID:   runID,
		tracing: logger.Enabled(context.Background(), slog.LevelDebug),
	}
}

// NewGlobalEnvironment returns a root environment holding the constants
// null, true and false.
func NewGlobalEnvironment() *runtime.Environment {
	env := runtime.NewEnvironment(nil)
	env.Define("null", runtime.Nil)
	env.Define("true", runtime.BoolValue{Val: true})
	env.Define("false", runtime.BoolValue{Val: false})
	return env
}

// GlobalEnvironment returns the interpreter’s global environment.
func (i *Interpreter) GlobalEnvironment() *runtime.Environment {
	return i.global
}

// RunID identifies this interpreter in trace records.
func (i *Interpreter) RunID() string {
	return i.runID
}

// Evaluate evaluates one top-level expression. A nil env means the global
// environment. Failures are *runtime.UnresolvedVariableError or
// *UnimplementedExpressionError and abort the whole evaluation.
func (i *Interpreter) Evaluate(expr ast.Expression, env *runtime.Environment) (runtime.Value, error) {
	if env == nil {
		env = i.global
	}
	val, err := i.evaluateExpression(expr, env)
	if err != nil {
		i.logger.Debug("evaluation failed", "error", err)
		return nil, err
	}
	return val, nil
}

// EvaluateExpressions evaluates a sequence of top-level expressions in the
// global environment and returns the last value (nil for an empty sequence).
func (i *Interpreter) EvaluateExpressions(exprs []ast.Expression) (runtime.Value, error) {
	var last runtime.Value = runtime.Nil
	for _, expr := range exprs {
		val, err := i.Evaluate(expr, i.global)
		if err != nil {
			return nil, err
		}
		last = val
	}
	return last, nil
}

// EvaluateProgram evaluates every prelude module, then the entry module, in
// the global environment. The result is the entry's last value.
func (i *Interpreter) EvaluateProgram(program *driver.Program) (runtime.Value, error) {
	if program == nil || program.Entry == nil {
		return nil, fmt.Errorf("program has no entry module")
	}
	i.logger.Debug("program start", "entry", program.Entry.Path, "preludes", len(program.Preludes))
	for _, mod := range program.Preludes {
		if mod == nil {
			continue
		}
		if _, err := i.EvaluateExpressions(mod.Expressions); err != nil {
			return nil, fmt.Errorf("prelude %s: %w", mod.Path, err)
		}
	}
	val, err := i.EvaluateExpressions(program.Entry.Expressions)
	if err != nil {
		return nil, err
	}
	i.logger.Debug("program end", "entry", program.Entry.Path, "expressions", len(program.Entry.Expressions))
	return val, nil
}
