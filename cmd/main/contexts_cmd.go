package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/Sundew/pkg/contexts"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

// withStore opens the configured database for the duration of fn.
func withStore(cmd *cobra.Command, configPath string, fn func(*contexts.Store) error) error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Server.LogLevel)

	db, err := openDatabase(cfg.Server)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	store, err := contexts.NewStore(db, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newContextsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contexts",
		Aliases: []string{"ctx"},
		Short:   "Manage stored variable contexts",
	}
	cmd.AddCommand(
		newContextsListCmd(configPath),
		newContextsShowCmd(configPath),
		newContextsSetCmd(configPath),
		newContextsImportCmd(configPath),
		newContextsExportCmd(configPath),
		newContextsDeleteCmd(configPath),
	)
	return cmd
}

func newContextsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				names, err := store.Names(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newContextsShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print the variables of a stored context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				vars, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to load context %q: %w", args[0], err)
				}
				for _, name := range contexts.SortedNames(vars) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", name, strings.Join(vars[name], ", "))
				}
				return nil
			})
		},
	}
}

func newContextsSetCmd(configPath *string) *cobra.Command {
	var files, vars []string

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or replace a stored context",
		Example: `  sundew contexts set people --var names=Bob,Lisa --var city=Boston
  sundew contexts set people --file people.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 && len(vars) == 0 {
				return fmt.Errorf("at least one --file or --var is required")
			}
			merged, err := buildRenderContext(renderOptions{contextFiles: files, vars: vars}, nil)
			if err != nil {
				return err
			}
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				return store.Put(cmd.Context(), args[0], merged)
			})
		},
	}
	cmd.Flags().StringArrayVar(&files, "file", nil, "JSON, YAML or TOML context file (repeatable)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "variable assignment name=v1,v2 (repeatable)")
	return cmd
}

func newContextsImportCmd(configPath *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a context from a file",
		Long: `Import reads a context exported by "sundew contexts export". With --name the
file is instead read as a plain JSON, YAML or TOML variable file and stored
under that name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				if name != "" {
					vars, err := contexts.LoadFile(args[0])
					if err != nil {
						return err
					}
					return store.Put(cmd.Context(), name, vars)
				}

				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open import file: %w", err)
				}
				defer func(f *os.File) {
					_ = f.Close()
				}(f)
				imported, err := store.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", imported)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "store a plain variable file under this name")
	return cmd
}

func newContextsExportCmd(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Export a stored context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				var buf bytes.Buffer
				if err := store.Export(cmd.Context(), args[0], &buf); err != nil {
					return fmt.Errorf("failed to export context %q: %w", args[0], err)
				}
				if out == "" {
					_, err := buf.WriteTo(cmd.OutOrStdout())
					return err
				}
				if err := atomic.WriteFile(out, &buf); err != nil {
					return fmt.Errorf("failed to write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newContextsDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a stored context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *configPath, func(store *contexts.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete context %q: %w", args[0], err)
				}
				return nil
			})
		},
	}
}
