package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
)

// setupTestProcessor creates a Processor that discards its logs.
func setupTestProcessor(tb testing.TB, mutate func(*Config)) *Processor {
	tb.Helper()
	config := DefaultConfig()
	if mutate != nil {
		mutate(config)
	}
	return NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
}

const mixedTemplate = `<ul>
Hi {{name}} ,welcome
{% if name = Bob %} <h1> hello Bob </h1> {% endif %}
{% for customer in names %} <li> {{customer}} </li> {% endfor %}
{% block %}
{% if name = Bob %} never closed
{% if nobody = x %} hidden {% endif %}
</ul>`

func mixedContext() Context {
	return Context{"name": {"Bob"}, "names": {"Bob", "Lisa"}}
}

func TestRenderLine(t *testing.T) {
	p := setupTestProcessor(t, nil)

	got, err := p.RenderLine("{% block %}\n", mixedContext())
	if err != nil {
		t.Fatalf("RenderLine() error = %v", err)
	}
	if got != "Unrecognized input" {
		t.Errorf("expected the unrecognized marker, got %q", got)
	}

	got, err = p.RenderLine("Hi {{name}} ,welcome\r\n", mixedContext())
	if err != nil || got != "Hi Bob ,welcome" {
		t.Errorf("expected trailing newline to be ignored, got %q (err %v)", got, err)
	}

	p.SetConfig(&Config{UnrecognizedMarker: "??"})
	if got, _ = p.RenderLine("{% block %}", nil); got != "??" {
		t.Errorf("expected custom marker, got %q", got)
	}
}

func TestProcessPolicies(t *testing.T) {
	head := "<ul>\nHi Bob ,welcome\n<h1> hello Bob </h1>\n<li> Bob </li>\n<li> Lisa </li>\n\nUnrecognized input\n"
	tail := "\n</ul>\n"

	tests := []struct {
		policy  ErrorPolicy
		want    string
		report  Report
		wantErr bool
	}{
		{PolicySkip, head + tail, Report{Lines: 8, Rendered: 7, Failed: 1}, false},
		{PolicyInline, head + "error: invalid input format: missing end tag: \"{% if name = Bob %} never closed\"\n" + tail, Report{Lines: 8, Rendered: 7, Failed: 1}, false},
		{PolicyHalt, head, Report{Lines: 6, Rendered: 5, Failed: 1}, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			p := setupTestProcessor(t, func(c *Config) { c.ErrorPolicy = tt.policy })
			var out bytes.Buffer
			report, err := p.Process(context.Background(), strings.NewReader(mixedTemplate), &out, mixedContext())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrFormat) {
				t.Errorf("expected the halt error to wrap a format error, got %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("unexpected output:\n got %q\nwant %q", out.String(), tt.want)
			}
			if report != tt.report {
				t.Errorf("report = %+v, want %+v", report, tt.report)
			}
		})
	}
}

func TestProcessSoftMissIsBlankLine(t *testing.T) {
	p := setupTestProcessor(t, nil)
	var out bytes.Buffer
	_, err := p.Process(context.Background(), strings.NewReader("{% for x in absent %} {{x}} {% endfor %}\n"), &out, Context{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.String() != "\n" {
		t.Errorf("expected a single blank line, got %q", out.String())
	}
}

func TestProcessLineTooLong(t *testing.T) {
	input := "short\n" + strings.Repeat("x", 64) + "\r\nafter\n" + strings.Repeat("y", 17)

	tests := []struct {
		policy ErrorPolicy
		want   string
		report Report
	}{
		{PolicySkip, "short\nafter\n", Report{Lines: 4, Rendered: 2, Failed: 2}},
		{PolicyInline, "short\nerror: line too long: more than 16 bytes\nafter\nerror: line too long: more than 16 bytes\n", Report{Lines: 4, Rendered: 2, Failed: 2}},
		{PolicyHalt, "short\n", Report{Lines: 2, Rendered: 1, Failed: 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			p := setupTestProcessor(t, func(c *Config) {
				c.MaxLineBytes = 16
				c.ErrorPolicy = tt.policy
			})
			var out bytes.Buffer
			report, err := p.Process(context.Background(), strings.NewReader(input), &out, nil)
			if tt.policy == PolicyHalt {
				if !errors.Is(err, ErrLineTooLong) {
					t.Fatalf("expected a line too long error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("unexpected output:\n got %q\nwant %q", out.String(), tt.want)
			}
			if report != tt.report {
				t.Errorf("report = %+v, want %+v", report, tt.report)
			}
		})
	}
}

func TestProcessLongLineWithinLimit(t *testing.T) {
	// Longer than the reader's internal buffer but within MaxLineBytes.
	line := strings.Repeat("z", 10000)
	p := setupTestProcessor(t, func(c *Config) { c.MaxLineBytes = 16 * 1024 })
	var out bytes.Buffer
	report, err := p.Process(context.Background(), strings.NewReader(line+"\n"+line), &out, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if out.String() != line+"\n"+line+"\n" {
		t.Errorf("long lines were not passed through intact (got %d bytes)", out.Len())
	}
	if report.Lines != 2 || report.Failed != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRenderLinesOrderIndependent(t *testing.T) {
	p := setupTestProcessor(t, func(c *Config) { c.Workers = 3 })
	lines := strings.Split(mixedTemplate, "\n")
	vars := mixedContext()

	sequential := make(map[string]LineResult, len(lines))
	for _, line := range lines {
		out, err := p.RenderLine(line, vars)
		sequential[line] = LineResult{Output: out, Err: err}
	}

	for round := 0; round < 5; round++ {
		shuffled := append([]string(nil), lines...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		results := p.RenderLines(shuffled, vars)
		if len(results) != len(shuffled) {
			t.Fatalf("expected %d results, got %d", len(shuffled), len(results))
		}
		for i, res := range results {
			want := sequential[shuffled[i]]
			if res.Index != i {
				t.Errorf("result %d carries index %d", i, res.Index)
			}
			if res.Output != want.Output || (res.Err == nil) != (want.Err == nil) {
				t.Errorf("line %q: got (%q, %v), want (%q, %v)", shuffled[i], res.Output, res.Err, want.Output, want.Err)
			}
		}
	}
}

func TestRenderLinesEmpty(t *testing.T) {
	p := setupTestProcessor(t, nil)
	if got := p.RenderLines(nil, nil); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestParsePolicy(t *testing.T) {
	if p, ok := ParsePolicy("inline"); !ok || p != PolicyInline {
		t.Errorf("ParsePolicy(inline) = %q, %v", p, ok)
	}
	if _, ok := ParsePolicy("explode"); ok {
		t.Error("expected unknown policy to be rejected")
	}
}
