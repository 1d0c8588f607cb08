package ast

import "regexp"

type NodeType string

const (
	NodeNumberLiteral NodeType = "NumberLiteral"
	NodeStringLiteral NodeType = "StringLiteral"
	NodeSymbol        NodeType = "Symbol"
	NodeCompoundForm  NodeType = "CompoundForm"
)

// Expression is a node of an eva program tree. The set of implementations is
// closed: NumberLiteral, StringLiteral, Symbol and CompoundForm.
type Expression interface {
	NodeType() NodeType
	String() string
	expressionNode()
}

type nodeImpl struct {
	Type NodeType `json:"type"`
}

func newNodeImpl(kind NodeType) nodeImpl {
	return nodeImpl{Type: kind}
}

func (n nodeImpl) NodeType() NodeType { return n.Type }
func (nodeImpl) expressionNode()      {}

// Literals

type NumberLiteral struct {
	nodeImpl

	Value float64 `json:"value"`
}

func NewNumberLiteral(value float64) *NumberLiteral {
	return &NumberLiteral{nodeImpl: newNodeImpl(NodeNumberLiteral), Value: value}
}

// StringLiteral holds the characters between the delimiting quotes.
type StringLiteral struct {
	nodeImpl

	Value string `json:"value"`
}

func NewStringLiteral(value string) *StringLiteral {
	return &StringLiteral{nodeImpl: newNodeImpl(NodeStringLiteral), Value: value}
}

// Symbol names a variable, or a keyword when it heads a compound form.
type Symbol struct {
	nodeImpl

	Name string `json:"name"`
}

func NewSymbol(name string) *Symbol {
	return &Symbol{nodeImpl: newNodeImpl(NodeSymbol), Name: name}
}

// IsVariable reports whether the symbol is a well-formed variable reference.
func (s *Symbol) IsVariable() bool {
	return IsVariableName(s.Name)
}

// CompoundForm is an ordered sequence whose head selects the evaluation rule.
type CompoundForm struct {
	nodeImpl

	Keyword  Keyword      `json:"keyword"`
	Head     Expression   `json:"head,omitempty"`
	Operands []Expression `json:"operands"`
}

// NewCompoundForm resolves the keyword from head once. A nil head yields an
// empty form with KeywordUnknown.
func NewCompoundForm(head Expression, operands []Expression) *CompoundForm {
	kw := KeywordUnknown
	if sym, ok := head.(*Symbol); ok {
		kw = LookupKeyword(sym.Name)
	}
	return &CompoundForm{
		nodeImpl: newNodeImpl(NodeCompoundForm),
		Keyword:  kw,
		Head:     head,
		Operands: operands,
	}
}

// Arity is the number of operands after the head.
func (c *CompoundForm) Arity() int {
	return len(c.Operands)
}

var variableNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// IsVariableName matches [a-zA-Z][a-zA-Z0-9_]*.
func IsVariableName(name string) bool {
	return variableNamePattern.MatchString(name)
}

var (
	_ Expression = (*NumberLiteral)(nil)
	_ Expression = (*StringLiteral)(nil)
	_ Expression = (*Symbol)(nil)
	_ Expression = (*CompoundForm)(nil)
)
