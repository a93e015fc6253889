package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{" amount = 2000 ", Condition{Left: "amount", Op: Operator{Kind: OpEqual}, Right: "2000"}},
		{"customer in names", Condition{Left: "customer", Op: Operator{Kind: OpIn}, Right: "names"}},
		{"name = Bob Lisa", Condition{Left: "name", Op: Operator{Kind: OpEqual}, Right: "Bob Lisa"}},
		// ">" is scanned before ">=", so the remainder keeps the "=".
		{"a >= b", Condition{Left: "a", Op: Operator{Kind: OpUnsupported, Message: "Unrecognized operator"}, Right: "= b"}},
		{"a < b", Condition{Left: "a", Op: Operator{Kind: OpUnsupported, Message: "Unrecognized operator"}, Right: "b"}},
	}
	for _, tt := range tests {
		got, err := ParseCondition(tt.in)
		if err != nil {
			t.Errorf("ParseCondition(%q) error = %v", tt.in, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseCondition(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseConditionInvalid(t *testing.T) {
	for _, in := range []string{"", "x y", "a = b = c", "item in inventory"} {
		_, err := ParseCondition(in)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("ParseCondition(%q): expected format error, got %v", in, err)
		}
	}
}

func TestOperatorFor(t *testing.T) {
	if got := operatorFor("in"); got.Kind != OpIn {
		t.Errorf("operatorFor(in) = %v", got)
	}
	if got := operatorFor("="); got.Kind != OpEqual {
		t.Errorf("operatorFor(=) = %v", got)
	}
	want := Operator{Kind: OpUnsupported, Message: "Unrecognized operator"}
	if got := operatorFor("~"); got != want {
		t.Errorf("operatorFor(~) = %+v, want %+v", got, want)
	}
}

func TestParseConditional(t *testing.T) {
	got, err := ParseConditional("{% if amount = 2000 %} <p> hola </p> {% endif %}")
	if err != nil {
		t.Fatalf("ParseConditional() error = %v", err)
	}
	want := &Conditional{
		Condition: Condition{Left: "amount", Op: Operator{Kind: OpEqual}, Right: "2000"},
		Body:      Literal{Text: "<p> hola </p>"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestParseConditionalEmptyBody(t *testing.T) {
	got, err := ParseConditional("{% if a = b %}{% endif %}")
	if err != nil {
		t.Fatalf("ParseConditional() error = %v", err)
	}
	if !reflect.DeepEqual(got.Body, Literal{Text: ""}) {
		t.Errorf("expected an empty literal body, got %#v", got.Body)
	}
}

func TestParseConditionalNested(t *testing.T) {
	t.Run("same kind", func(t *testing.T) {
		got, err := ParseConditional("{% if a = x %} {% if b = y %} ok {% endif %} {% endif %}")
		if err != nil {
			t.Fatalf("ParseConditional() error = %v", err)
		}
		want := "if(b = y){literal(\"ok\")}"
		if d := Describe(got.Body); d != want {
			t.Errorf("inner body = %s, want %s", d, want)
		}
	})

	t.Run("for inside if", func(t *testing.T) {
		got, err := ParseConditional("{% if name = Bob %} {% for c in names %} <li> {{c}} </li> {% endfor %} {% endif %}")
		if err != nil {
			t.Fatalf("ParseConditional() error = %v", err)
		}
		if got.Condition.Left != "name" || got.Condition.Right != "Bob" {
			t.Errorf("outer condition = %+v", got.Condition)
		}
		if Kind(got.Body) != "for" {
			t.Errorf("inner body kind = %s, want for", Kind(got.Body))
		}
	})
}

func TestParseConditionalErrors(t *testing.T) {
	tests := map[string]string{
		"no end tag":        "{% if a = b %} body",
		"wrong end tag":     "{% if a = b %} body {% end %}",
		"no opener":         "{%if a = b %} body {% endif %}",
		"no header close":   "{% if a = b body {% endif %}",
		"bad condition":     "{% if a b %} body {% endif %}",
		"nested is invalid": "{% if a = b %} {% if c %} x {% endif %} {% endif %}",
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseConditional(line); !errors.Is(err, ErrFormat) {
				t.Errorf("expected format error, got %v", err)
			}
		})
	}
}
