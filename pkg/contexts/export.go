package contexts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Sundew/pkg/engine"
)

// ExportedContext is the serializable representation of a stored context,
// used for JSON-based import and export.
type ExportedContext struct {
	Name string         `json:"name"`
	Vars engine.Context `json:"vars"`
}

// Export writes the context stored under name to w as indented JSON.
func (s *Store) Export(ctx context.Context, name string, w io.Writer) error {
	vars, err := s.Get(ctx, name)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Context exported",
		slog.String("context_name", name),
		slog.Int("variables", len(vars)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ExportedContext{Name: name, Vars: vars})
}

// Import reads an exported context from r and stores it, replacing any
// context of the same name. It returns the imported name.
func (s *Store) Import(ctx context.Context, r io.Reader) (string, error) {
	var imported ExportedContext
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return "", fmt.Errorf("failed to decode json context: %w", err)
	}
	if imported.Name == "" {
		return "", fmt.Errorf("imported context has no name")
	}
	if err := s.Put(ctx, imported.Name, imported.Vars); err != nil {
		return "", err
	}
	return imported.Name, nil
}
