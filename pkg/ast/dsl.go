package ast

// Builders used by tests and embedding hosts to assemble trees by hand.

func Num(value float64) *NumberLiteral { return NewNumberLiteral(value) }

func Str(value string) *StringLiteral { return NewStringLiteral(value) }

func Sym(name string) *Symbol { return NewSymbol(name) }

// Form builds a compound form headed by the symbol head.
func Form(head string, operands ...Expression) *CompoundForm {
	if operands == nil {
		operands = []Expression{}
	}
	return NewCompoundForm(NewSymbol(head), operands)
}

func Add(left, right Expression) *CompoundForm { return Form("+", left, right) }

func Mul(left, right Expression) *CompoundForm { return Form("*", left, right) }

func Gt(left, right Expression) *CompoundForm { return Form(">", left, right) }

func Lt(left, right Expression) *CompoundForm { return Form("<", left, right) }

func Var(name string, value Expression) *CompoundForm { return Form("var", Sym(name), value) }

func Set(name string, value Expression) *CompoundForm { return Form("set", Sym(name), value) }

func Begin(body ...Expression) *CompoundForm { return Form("begin", body...) }

func If(cond, consequent, alternate Expression) *CompoundForm {
	return Form("if", cond, consequent, alternate)
}

func While(cond, body Expression) *CompoundForm { return Form("while", cond, body) }
