package contexts

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/CTAG07/Sundew/pkg/engine"
)

func TestDecodeFormats(t *testing.T) {
	want := engine.Context{
		"name":  {"Bob"},
		"names": {"Bob", "Lisa"},
		"count": {"3"},
	}
	docs := map[Format]string{
		FormatJSON: `{"name": "Bob", "names": ["Bob", "Lisa"], "count": 3}`,
		FormatYAML: "name: Bob\nnames:\n  - Bob\n  - Lisa\ncount: 3\n",
		FormatTOML: "name = \"Bob\"\nnames = [\"Bob\", \"Lisa\"]\ncount = 3\n",
	}
	for format, doc := range docs {
		t.Run(string(format), func(t *testing.T) {
			got, err := Decode(strings.NewReader(doc), format)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestDecodeRejectsNesting(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"user": {"name": "Bob"}}`), FormatJSON); err == nil {
		t.Error("expected nested maps to be rejected")
	}
	if _, err := Decode(strings.NewReader(`{}`), Format("xml")); err == nil {
		t.Error("expected an unknown format to be rejected")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.yml")
	if err := os.WriteFile(path, []byte("city: Boston\n"), 0644); err != nil {
		t.Fatalf("failed to write context file: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !reflect.DeepEqual(got, engine.Context{"city": {"Boston"}}) {
		t.Errorf("unexpected context %v", got)
	}

	if _, err = LoadFile(filepath.Join(t.TempDir(), "ctx.ini")); err == nil {
		t.Error("expected an unsupported extension to fail")
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"name=Bob", "names=Bob,Lisa", "names=Zed"})
	if err != nil {
		t.Fatalf("ParseAssignments() error = %v", err)
	}
	want := engine.Context{"name": {"Bob"}, "names": {"Bob", "Lisa", "Zed"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	for _, bad := range []string{"novalue", "=Bob"} {
		if _, err = ParseAssignments([]string{bad}); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestMerge(t *testing.T) {
	base := engine.Context{"name": {"Bob"}, "city": {"Boston"}}
	got := Merge(base, engine.Context{"name": {"Alice"}})
	want := engine.Context{"name": {"Alice"}, "city": {"Boston"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if base["name"][0] != "Bob" {
		t.Error("Merge must not modify its inputs")
	}
	if names := SortedNames(got); !reflect.DeepEqual(names, []string{"city", "name"}) {
		t.Errorf("unexpected sorted names %v", names)
	}
}
