package ast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DecodeError reports a document that does not describe an expression tree.
type DecodeError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *DecodeError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", loc, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

// Decode reads a YAML stream (JSON is accepted as YAML) in which every
// document is one top-level expression.
func Decode(data []byte) ([]Expression, error) {
	return decodeStream("", data, false)
}

// DecodeInline is Decode for text typed at a prompt or on the command line.
// A document that is a single double-quoted scalar, such as "hello", is a
// string literal rather than a symbol.
func DecodeInline(data []byte) ([]Expression, error) {
	return decodeStream("", data, true)
}

// DecodeFile reads and decodes a program file.
func DecodeFile(path string) ([]Expression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program %s: %w", path, err)
	}
	return decodeStream(path, data, false)
}

// DecodeOne decodes inline input that must hold exactly one expression.
func DecodeOne(data []byte) (Expression, error) {
	exprs, err := DecodeInline(data)
	if err != nil {
		return nil, err
	}
	if len(exprs) != 1 {
		return nil, &DecodeError{Msg: fmt.Sprintf("expected exactly one expression, found %d", len(exprs))}
	}
	return exprs[0], nil
}

func decodeStream(path string, data []byte, inline bool) ([]Expression, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []Expression
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Path: path, Msg: err.Error()}
		}
		if doc.Kind == yaml.DocumentNode && len(doc.Content) == 0 {
			continue
		}
		if inline && len(doc.Content) == 1 {
			if lit, ok := quotedScalar(doc.Content[0]); ok {
				out = append(out, lit)
				continue
			}
		}
		expr, err := decodeNode(path, &doc)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func decodeNode(path string, node *yaml.Node) (Expression, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) != 1 {
			return nil, nodeError(path, node, "document must hold a single expression")
		}
		return decodeNode(path, node.Content[0])
	case yaml.AliasNode:
		return nil, nodeError(path, node, fmt.Sprintf("aliases are not expressions (*%s)", node.Value))
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return NewCompoundForm(nil, []Expression{}), nil
		}
		head, err := decodeNode(path, node.Content[0])
		if err != nil {
			return nil, err
		}
		operands := make([]Expression, 0, len(node.Content)-1)
		for _, child := range node.Content[1:] {
			expr, err := decodeNode(path, child)
			if err != nil {
				return nil, err
			}
			operands = append(operands, expr)
		}
		return NewCompoundForm(head, operands), nil
	case yaml.ScalarNode:
		return decodeScalar(path, node)
	case yaml.MappingNode:
		return nil, nodeError(path, node, "mappings are not expressions")
	default:
		return nil, nodeError(path, node, fmt.Sprintf("unsupported node kind %d", node.Kind))
	}
}

func decodeScalar(path string, node *yaml.Node) (Expression, error) {
	switch node.ShortTag() {
	case "!!int", "!!float":
		var v float64
		if err := node.Decode(&v); err != nil {
			return nil, nodeError(path, node, fmt.Sprintf("invalid number %q", node.Value))
		}
		return NewNumberLiteral(v), nil
	case "!!bool":
		b, err := strconv.ParseBool(node.Value)
		if err != nil {
			return nil, nodeError(path, node, fmt.Sprintf("invalid boolean %q", node.Value))
		}
		return NewSymbol(strconv.FormatBool(b)), nil
	case "!!null":
		return NewSymbol("null"), nil
	case "!!str":
		return textExpression(node.Value), nil
	default:
		return nil, nodeError(path, node, fmt.Sprintf("unsupported scalar tag %s", node.ShortTag()))
	}
}

// quotedScalar turns a bare double-quoted string document into a string
// literal. Text that already carries its own delimiters is left to
// textExpression.
func quotedScalar(node *yaml.Node) (Expression, bool) {
	if node.Kind != yaml.ScalarNode || node.Style != yaml.DoubleQuotedStyle || node.ShortTag() != "!!str" {
		return nil, false
	}
	if _, ok := textExpression(node.Value).(*StringLiteral); ok {
		return nil, false
	}
	return NewStringLiteral(node.Value), true
}

// textExpression classifies a raw string token: quoted text is a string
// literal, anything else a symbol.
func textExpression(text string) Expression {
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		return NewStringLiteral(text[1 : len(text)-1])
	}
	return NewSymbol(text)
}

func nodeError(path string, node *yaml.Node, msg string) error {
	return &DecodeError{Path: path, Line: node.Line, Column: node.Column, Msg: msg}
}

// FromValue converts plain Go data (as produced by encoding/json or written
// inline by a host) into an expression tree.
func FromValue(v any) (Expression, error) {
	switch val := v.(type) {
	case Expression:
		return val, nil
	case nil:
		return NewSymbol("null"), nil
	case bool:
		return NewSymbol(strconv.FormatBool(val)), nil
	case string:
		return textExpression(val), nil
	case int:
		return NewNumberLiteral(float64(val)), nil
	case int32:
		return NewNumberLiteral(float64(val)), nil
	case int64:
		return NewNumberLiteral(float64(val)), nil
	case float32:
		return NewNumberLiteral(float64(val)), nil
	case float64:
		return NewNumberLiteral(val), nil
	case []any:
		if len(val) == 0 {
			return NewCompoundForm(nil, []Expression{}), nil
		}
		head, err := FromValue(val[0])
		if err != nil {
			return nil, err
		}
		operands := make([]Expression, 0, len(val)-1)
		for _, raw := range val[1:] {
			expr, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			operands = append(operands, expr)
		}
		return NewCompoundForm(head, operands), nil
	default:
		return nil, &DecodeError{Msg: fmt.Sprintf("unsupported value %T", v)}
	}
}

// MustFromValue is FromValue for literals known to be well formed.
func MustFromValue(v any) Expression {
	expr, err := FromValue(v)
	if err != nil {
		panic(err)
	}
	return expr
}
