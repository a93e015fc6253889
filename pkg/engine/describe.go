package engine

import (
	"fmt"
	"strings"
)

// Kind names the shape of classified content: "literal", "variable",
// "for", "if" or "unrecognized".
func Kind(c Content) string {
	switch c := c.(type) {
	case Literal:
		return "literal"
	case Variable:
		return "variable"
	case Directive:
		if _, ok := c.Tag.(ForTag); ok {
			return "for"
		}
		return "if"
	default:
		return "unrecognized"
	}
}

// Describe returns a compact, single line rendering of the structure of c,
// e.g. `if(name = Bob){variable[{{name}}]}`.
func Describe(c Content) string {
	switch c := c.(type) {
	case Literal:
		return fmt.Sprintf("literal(%q)", c.Text)
	case Variable:
		return "variable[" + strings.Join(c.Expr.Placeholders, " ") + "]"
	case Directive:
		cond := c.Tag.Conditional()
		return fmt.Sprintf("%s(%s %s %s){%s}", Kind(c),
			cond.Condition.Left, cond.Condition.Op, cond.Condition.Right, Describe(cond.Body))
	default:
		return "unrecognized"
	}
}
