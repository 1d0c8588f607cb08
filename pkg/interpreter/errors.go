package interpreter

import (
	"fmt"

	"eva/interpreter-go/pkg/ast"
)

// UnimplementedExpressionError is returned for any expression whose shape
// matches none of the recognised forms.
type UnimplementedExpressionError struct {
	Expr   ast.Expression
	Reason string
}

func (e *UnimplementedExpressionError) Error() string {
	rendered := "<nil>"
	if e.Expr != nil {
		rendered = e.Expr.String()
	}
	if e.Reason == "" {
		return fmt.Sprintf("Unimplemented: %s", rendered)
	}
	return fmt.Sprintf("Unimplemented: %s (%s)", rendered, e.Reason)
}

func unimplemented(expr ast.Expression, format string, args ...any) error {
	return &UnimplementedExpressionError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}
