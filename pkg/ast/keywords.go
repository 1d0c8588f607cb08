package ast

import "fmt"

// Keyword enumerates the recognised heads of a compound form.
type Keyword int

const (
	KeywordUnknown Keyword = iota
	KeywordAdd
	KeywordMul
	KeywordGreater
	KeywordLess
	KeywordVar
	KeywordSet
	KeywordBegin
	KeywordIf
	KeywordWhile
)

var keywordNames = map[string]Keyword{
	"+":     KeywordAdd,
	"*":     KeywordMul,
	">":     KeywordGreater,
	"<":     KeywordLess,
	"var":   KeywordVar,
	"set":   KeywordSet,
	"begin": KeywordBegin,
	"if":    KeywordIf,
	"while": KeywordWhile,
}

// LookupKeyword maps a head symbol to its keyword, or KeywordUnknown.
func LookupKeyword(name string) Keyword {
	if kw, ok := keywordNames[name]; ok {
		return kw
	}
	return KeywordUnknown
}

func (k Keyword) String() string {
	switch k {
	case KeywordUnknown:
		return "unknown"
	case KeywordAdd:
		return "+"
	case KeywordMul:
		return "*"
	case KeywordGreater:
		return ">"
	case KeywordLess:
		return "<"
	case KeywordVar:
		return "var"
	case KeywordSet:
		return "set"
	case KeywordBegin:
		return "begin"
	case KeywordIf:
		return "if"
	case KeywordWhile:
		return "while"
	default:
		return fmt.Sprintf("keyword_%d", int(k))
	}
}

// IsOperator reports whether the keyword is one of the binary operators.
func (k Keyword) IsOperator() bool {
	switch k {
	case KeywordAdd, KeywordMul, KeywordGreater, KeywordLess:
		return true
	default:
		return false
	}
}
