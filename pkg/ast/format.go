package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// String renderings use JSON-array notation so diagnostics can be pasted back
// into `eva eval`. Non-finite numbers render as NaN or ±Inf and do not
// decode back to numbers.

func (n *NumberLiteral) String() string {
	return FormatNumber(n.Value)
}

func (s *StringLiteral) String() string {
	return quoteJSON(`"` + s.Value + `"`)
}

func (s *Symbol) String() string {
	return quoteJSON(s.Name)
}

func (c *CompoundForm) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if c.Head != nil {
		b.WriteString(c.Head.String())
	}
	for i, op := range c.Operands {
		if i > 0 || c.Head != nil {
			b.WriteString(", ")
		}
		if op == nil {
			b.WriteString("null")
			continue
		}
		b.WriteString(op.String())
	}
	b.WriteByte(']')
	return b.String()
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quoteJSON renders s as a JSON string that the decoder reads back. HTML
// escaping is off so operators such as < stay readable; code points YAML
// refuses as raw input are written as \u escapes.
func quoteJSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	encoded := strings.TrimSuffix(buf.String(), "\n")
	if !strings.ContainsFunc(encoded, yamlUnprintable) {
		return encoded
	}
	var b strings.Builder
	for _, r := range encoded {
		if yamlUnprintable(r) {
			fmt.Fprintf(&b, "\\u%04x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func yamlUnprintable(r rune) bool {
	return (r >= 0x7f && r <= 0x9f && r != 0x85) || r == 0xfffe || r == 0xffff
}
