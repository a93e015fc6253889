package engine

// Context maps a variable name to its ordered values. A single value is a
// scalar binding, more than one makes the name iterable by a for directive.
// The engine only ever reads from it.
type Context map[string][]string

// Lookup returns the values bound to name.
func (c Context) Lookup(name string) ([]string, bool) {
	v, ok := c[name]
	return v, ok
}

// Content is the classification of a single template line.
// It is one of Literal, Variable, Directive or Unrecognized.
type Content interface {
	isContent()
}

// Literal is a line without any template markers, emitted verbatim.
type Literal struct {
	Text string
}

// Variable is a line containing {{name}} placeholders.
type Variable struct {
	Expr *Expression
}

// Directive is an if or for block written on a single line.
type Directive struct {
	Tag Tag
}

// Unrecognized is a line whose markers match none of the other shapes.
type Unrecognized struct{}

func (Literal) isContent()      {}
func (Variable) isContent()     {}
func (Directive) isContent()    {}
func (Unrecognized) isContent() {}

// Expression holds the source text of an interpolation line together with
// the placeholder tokens found in it. Every placeholder is a substring of
// Source. Rendered stays empty until the expression is generated.
type Expression struct {
	Source       string
	Placeholders []string
	Rendered     string
}

// Tag is either a ForTag or an IfTag.
type Tag interface {
	Conditional() *Conditional
}

// ForTag is a {% for ... %} directive.
type ForTag struct {
	Cond *Conditional
}

// IfTag is an {% if ... %} directive.
type IfTag struct {
	Cond *Conditional
}

func (t ForTag) Conditional() *Conditional { return t.Cond }
func (t IfTag) Conditional() *Conditional  { return t.Cond }

// Conditional is the parsed header and body of a directive. The body is
// owned by the conditional and may itself be a Directive.
type Conditional struct {
	Condition Condition
	Body      Content
}

// Condition is a binary comparison taken from a directive header.
type Condition struct {
	Left  string
	Op    Operator
	Right string
}

// OperatorKind enumerates the comparisons a condition can express.
type OperatorKind int

const (
	OpEqual OperatorKind = iota
	OpIn
	OpUnsupported
)

// Operator is the comparison of a Condition. Message is only set for
// OpUnsupported and is rendered in place of the directive.
type Operator struct {
	Kind    OperatorKind
	Message string
}

func (o Operator) String() string {
	switch o.Kind {
	case OpEqual:
		return "="
	case OpIn:
		return "in"
	default:
		return "unsupported(" + o.Message + ")"
	}
}
