package engine

import "strings"

const (
	tagOpen   = "{%"
	tagClose  = "%}"
	varOpen   = "{{"
	varClose  = "}}"
	endIfTag  = "{% endif %}"
	endForTag = "{% endfor %}"
)

// Classify decides which shape a single template line has and parses it
// into Content. Keyword detection is plain substring containment, so a line
// with balanced tag markers and the letters "if" anywhere in it is treated
// as an if directive. A malformed directive returns a *FormatError.
func Classify(line string) (Content, error) {
	isTag := matchingPair(line, tagOpen, tagClose)
	isFor := strings.Contains(line, "for") && strings.Contains(line, "in") ||
		strings.Contains(line, "endfor")
	isIf := strings.Contains(line, "if") || strings.Contains(line, "endif")
	isVariable := matchingPair(line, varOpen, varClose)

	switch {
	case isTag && isFor:
		cond, err := ParseConditional(line)
		if err != nil {
			return nil, err
		}
		return Directive{Tag: ForTag{Cond: cond}}, nil
	case isTag && isIf:
		cond, err := ParseConditional(line)
		if err != nil {
			return nil, err
		}
		return Directive{Tag: IfTag{Cond: cond}}, nil
	case isVariable:
		return Variable{Expr: NewExpression(line)}, nil
	case !isTag && !isVariable:
		return Literal{Text: line}, nil
	default:
		return Unrecognized{}, nil
	}
}

// matchingPair reports whether left and right occur the same, non-zero,
// number of times in s.
func matchingPair(s, left, right string) bool {
	n := strings.Count(s, left)
	return n != 0 && n == strings.Count(s, right)
}
