package engine

import (
	"slices"
	"strings"
)

// Render produces the output text of classified content against vars.
// Literal text is returned verbatim and Unrecognized content renders as an
// empty string; callers that want a visible marker use Processor.RenderLine.
func Render(c Content, vars Context) (string, error) {
	switch c := c.(type) {
	case Literal:
		return c.Text, nil
	case Variable:
		return RenderVariable(c.Expr, vars)
	case Directive:
		return RenderConditional(c.Tag.Conditional(), vars)
	default:
		return "", nil
	}
}

// RenderVariable substitutes every placeholder of expr with the first value
// bound to its name. The result is stored in expr.Rendered and returned.
// A name missing from vars is a *LookupError.
func RenderVariable(expr *Expression, vars Context) (string, error) {
	expr.Rendered = expr.Source
	for _, token := range expr.Placeholders {
		name := placeholderName(token)
		values, ok := vars.Lookup(name)
		if !ok || len(values) == 0 {
			return "", &LookupError{Name: name}
		}
		expr.Rendered = strings.ReplaceAll(expr.Rendered, token, values[0])
	}
	return expr.Rendered, nil
}

// RenderConditional evaluates a directive. Conditions naming a variable that
// is not bound render nothing rather than failing, and an unsupported
// operator renders its diagnostic message in place of the directive.
func RenderConditional(cond *Conditional, vars Context) (string, error) {
	switch cond.Condition.Op.Kind {
	case OpEqual:
		return renderEqual(cond, vars)
	case OpIn:
		return renderIn(cond, vars), nil
	default:
		return cond.Condition.Op.Message, nil
	}
}

func renderEqual(cond *Conditional, vars Context) (string, error) {
	bound, ok := vars.Lookup(cond.Condition.Left)
	if !ok {
		return "", nil
	}
	if !slices.Equal(strings.Fields(cond.Condition.Right), bound) {
		return "", nil
	}
	return Render(cond.Body, vars)
}

// renderIn repeats the body once per value of the collection operand. The
// loop variable named in the header is not bound: a Variable body has its
// first placeholder replaced by the current value, and a Literal body is
// repeated unchanged. Every repetition ends with a newline.
func renderIn(cond *Conditional, vars Context) string {
	items, ok := vars.Lookup(cond.Condition.Right)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, item := range items {
		switch body := cond.Body.(type) {
		case Literal:
			sb.WriteString(body.Text)
		case Variable:
			body.Expr.Rendered = body.Expr.Source
			if len(body.Expr.Placeholders) > 0 {
				body.Expr.Rendered = strings.ReplaceAll(body.Expr.Rendered, body.Expr.Placeholders[0], item)
			}
			sb.WriteString(body.Expr.Rendered)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
