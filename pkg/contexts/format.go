package contexts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CTAG07/Sundew/pkg/engine"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the document format of a context file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a Format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported context file extension %q", filepath.Ext(path))
}

// Decode reads a context document from r. The document must be a flat
// mapping; a scalar becomes a single value and a list keeps its order.
//
//	name: Bob
//	names: [Bob, Lisa]
func Decode(r io.Reader, format Format) (engine.Context, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read context document: %w", err)
	}

	raw := map[string]any{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported context format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s context: %w", format, err)
	}
	return normalize(raw)
}

// LoadFile decodes the context file at path, choosing the format from its
// extension.
func LoadFile(path string) (engine.Context, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open context file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return Decode(f, format)
}

func normalize(raw map[string]any) (engine.Context, error) {
	vars := make(engine.Context, len(raw))
	for name, v := range raw {
		switch v := v.(type) {
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				s, err := scalar(name, item)
				if err != nil {
					return nil, err
				}
				values = append(values, s)
			}
			vars[name] = values
		default:
			s, err := scalar(name, v)
			if err != nil {
				return nil, err
			}
			vars[name] = []string{s}
		}
	}
	return vars, nil
}

func scalar(name string, v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case map[string]any, []any:
		return "", fmt.Errorf("variable %q: nested values are not supported", name)
	default:
		return fmt.Sprint(v), nil
	}
}

// ParseAssignments builds a context from name=value assignments. Multiple
// values are separated by commas, so "names=Bob,Lisa" binds two values.
// Repeating a name appends to its values.
func ParseAssignments(assignments []string) (engine.Context, error) {
	vars := engine.Context{}
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected name=value", a)
		}
		vars[name] = append(vars[name], strings.Split(value, ",")...)
	}
	return vars, nil
}

// Merge returns a new context with the bindings of every layer, later layers
// replacing earlier ones name by name.
func Merge(layers ...engine.Context) engine.Context {
	merged := engine.Context{}
	for _, layer := range layers {
		for name, values := range layer {
			merged[name] = append([]string(nil), values...)
		}
	}
	return merged
}

// SortedNames returns the variable names of vars in sorted order.
func SortedNames(vars engine.Context) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
