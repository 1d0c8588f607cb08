package runtime

import "fmt"

// UnresolvedVariableError is returned when a name is bound nowhere in the
// scope chain.
type UnresolvedVariableError struct {
	Name string
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("Undefined variable '%s'", e.Name)
}
