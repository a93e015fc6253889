package engine

import "strings"

// operators is scanned in order; the first one contained in a condition wins.
var operators = []string{">", ">=", "=", "<=", "<", "in"}

// ParseConditional parses a complete one-line directive of the form
//
//	{% if LEFT OP RIGHT %} BODY {% endif %}
//	{% for VAR in COLLECTION %} BODY {% endfor %}
//
// The body is trimmed and classified again, which is how directives nest.
func ParseConditional(line string) (*Conditional, error) {
	var endTag string
	switch {
	case strings.HasSuffix(line, endIfTag):
		endTag = endIfTag
	case strings.HasSuffix(line, endForTag):
		endTag = endForTag
	default:
		return nil, &FormatError{Line: line, Reason: "invalid input format: missing end tag"}
	}

	start := conditionStart(line)
	if start < 0 {
		return nil, &FormatError{Line: line, Reason: "invalid input format: missing if or for"}
	}
	end := strings.Index(line, " %}")
	if end < 0 || start >= end {
		return nil, &FormatError{Line: line, Reason: "invalid input format"}
	}
	bodyEnd := len(line) - len(endTag)
	if end+3 > bodyEnd {
		return nil, &FormatError{Line: line, Reason: "invalid input format: empty header"}
	}

	cond, err := ParseCondition(line[start:end])
	if err != nil {
		return nil, err
	}
	body, err := Classify(strings.TrimSpace(line[end+3 : bodyEnd]))
	if err != nil {
		return nil, err
	}
	return &Conditional{Condition: cond, Body: body}, nil
}

// conditionStart returns the offset just past the leftmost "{% if " or
// "{% for " opener, or -1 when the line has neither.
func conditionStart(line string) int {
	ifAt := strings.Index(line, "{% if ")
	forAt := strings.Index(line, "{% for ")
	switch {
	case ifAt >= 0 && (forAt < 0 || ifAt < forAt):
		return ifAt + len("{% if ")
	case forAt >= 0:
		return forAt + len("{% for ")
	}
	return -1
}

// ParseCondition splits a directive header such as "name = Bob" or
// "customer in names" into its operands. The text is split on every
// occurrence of the chosen operator and must yield exactly two parts.
func ParseCondition(text string) (Condition, error) {
	text = strings.TrimSpace(text)
	for _, op := range operators {
		if !strings.Contains(text, op) {
			continue
		}
		parts := strings.Split(text, op)
		if len(parts) != 2 {
			break
		}
		return Condition{
			Left:  strings.TrimSpace(parts[0]),
			Op:    operatorFor(op),
			Right: strings.TrimSpace(parts[1]),
		}, nil
	}
	return Condition{}, &FormatError{Line: text, Reason: "invalid format"}
}

func operatorFor(token string) Operator {
	switch token {
	case "=":
		return Operator{Kind: OpEqual}
	case "in":
		return Operator{Kind: OpIn}
	default:
		return Operator{Kind: OpUnsupported, Message: "Unrecognized operator"}
	}
}
