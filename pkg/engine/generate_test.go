package engine

import (
	"errors"
	"testing"
)

func testContext() Context {
	return Context{
		"name": {"Bob"},
		"city": {"Boston"},
	}
}

func renderLine(t *testing.T, line string, vars Context) string {
	t.Helper()
	c, err := Classify(line)
	if err != nil {
		t.Fatalf("Classify(%q) error = %v", line, err)
	}
	out, err := Render(c, vars)
	if err != nil {
		t.Fatalf("Render(%q) error = %v", line, err)
	}
	return out
}

func TestRenderVariable(t *testing.T) {
	expr := &Expression{Source: "{{name}}", Placeholders: []string{"{{name}}"}}
	got, err := RenderVariable(expr, testContext())
	if err != nil {
		t.Fatalf("RenderVariable() error = %v", err)
	}
	if got != "Bob" || expr.Rendered != "Bob" {
		t.Errorf("expected 'Bob', got %q (rendered %q)", got, expr.Rendered)
	}

	if got := renderLine(t, "Hi {{name}} ,welcome", testContext()); got != "Hi Bob ,welcome" {
		t.Errorf("expected 'Hi Bob ,welcome', got %q", got)
	}
	if got := renderLine(t, "{{name}} from {{city}} and {{name}}", testContext()); got != "Bob from Boston and Bob" {
		t.Errorf("unexpected multi placeholder output %q", got)
	}
}

func TestRenderVariableMissing(t *testing.T) {
	c, err := Classify("Hi {{nobody}} ,welcome")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	_, err = Render(c, testContext())
	var le *LookupError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LookupError, got %v", err)
	}
	if le.Name != "nobody" || !errors.Is(err, ErrLookup) {
		t.Errorf("unexpected lookup error %#v", le)
	}

	_, err = Render(c, Context{"nobody": {}})
	if !errors.Is(err, ErrLookup) {
		t.Errorf("expected an empty binding to fail lookup, got %v", err)
	}
}

func TestRenderIfTag(t *testing.T) {
	line := "{% if name = Bob %} <h1> hello Bob </h1> {% endif %}"
	if got := renderLine(t, line, testContext()); got != "<h1> hello Bob </h1>" {
		t.Errorf("expected '<h1> hello Bob </h1>', got %q", got)
	}
	if got := renderLine(t, line, Context{"name": {"Alice"}}); got != "" {
		t.Errorf("expected empty output for a false condition, got %q", got)
	}
	if got := renderLine(t, line, Context{}); got != "" {
		t.Errorf("expected empty output for an unbound condition, got %q", got)
	}
}

func TestRenderIfTagBodies(t *testing.T) {
	vars := Context{"name": {"Bob"}, "names": {"Bob", "Lisa"}}
	tests := map[string]struct {
		line string
		want string
	}{
		"variable body": {"{% if name = Bob %} <h1> hello {{name}} </h1> {% endif %}", "<h1> hello Bob </h1>"},
		"sequence":      {"{% if names = Bob Lisa %} both {% endif %}", "both"},
		"order matters": {"{% if names = Lisa Bob %} both {% endif %}", ""},
		"nested if":     {"{% if name = Bob %} {% if names = Bob Lisa %} deep {% endif %} {% endif %}", "deep"},
		"nested for": {
			"{% if name = Bob %} {% for c in names %} <li> {{c}} </li> {% endfor %} {% endif %}",
			"<li> Bob </li>\n<li> Lisa </li>\n",
		},
		"unrecognized body": {"{% if name = Bob %} {% raw %} {% endif %}", ""},
		"unsupported":       {"{% if name > Bob %} <b>x</b> {% endif %}", "Unrecognized operator"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := renderLine(t, tt.line, vars); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRenderIfTagBodyLookupFails(t *testing.T) {
	c, err := Classify("{% if name = Bob %} hello {{missing}} {% endif %}")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if _, err = Render(c, testContext()); !errors.Is(err, ErrLookup) {
		t.Errorf("expected lookup error from the body, got %v", err)
	}
}

func TestRenderForTag(t *testing.T) {
	vars := Context{"name": {"Bob", "Lisa"}, "city": {"Boston"}}

	got := renderLine(t, "{% for customer in name %} <li> {{customer}} </li> {% endfor %}", vars)
	if want := "<li> Bob </li>\n<li> Lisa </li>\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	// The loop variable is not bound, so only the first placeholder follows the element.
	got = renderLine(t, "{% for x in name %} <li> {{a}} {{b}} </li> {% endfor %}", vars)
	if want := "<li> Bob {{b}} </li>\n<li> Lisa {{b}} </li>\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = renderLine(t, "{% for x in name %} <hr> {% endfor %}", vars)
	if want := "<hr>\n<hr>\n"; got != want {
		t.Errorf("expected literal body repeated, got %q", got)
	}

	got = renderLine(t, "{% for x in name %} {% if city = Boston %} hi {% endif %} {% endfor %}", vars)
	if want := "\n\n"; got != want {
		t.Errorf("expected nested directives to be skipped, got %q", got)
	}

	if got = renderLine(t, "{% for x in absent %} <li> {{x}} </li> {% endfor %}", vars); got != "" {
		t.Errorf("expected empty output for an unbound collection, got %q", got)
	}
}
