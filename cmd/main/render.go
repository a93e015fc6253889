package main

import (
	"fmt"
	"io"
	"os"

	"github.com/CTAG07/Sundew/pkg/contexts"
	"github.com/CTAG07/Sundew/pkg/engine"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	contextName  string
	contextFiles []string
	vars         []string
	policy       string
}

// builtinContext is used when no context source is given.
func builtinContext() engine.Context {
	return engine.Context{
		"name": {"Bob"},
		"city": {"Boston"},
	}
}

func newRenderCmd(configPath *string) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template read from stdin",
		Long: `Render reads a template from stdin one line at a time and writes one
rendered unit per line to stdout.

Variables come from a stored context, context files and --var assignments,
layered in that order. Without any of them a small built-in context is used.`,
		Example: `  sundew render --context people < page.tmpl
  sundew render --context-file vars.yaml --var name=Alice < page.tmpl
  echo 'Hello {{name}}' | sundew render`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, *configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.contextName, "context", "", "stored context to render against")
	cmd.Flags().StringArrayVar(&opts.contextFiles, "context-file", nil, "JSON, YAML or TOML context file (repeatable)")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "variable assignment name=v1,v2 (repeatable)")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "error policy for failed lines: skip, inline or halt")
	return cmd
}

func runRender(cmd *cobra.Command, configPath string, opts renderOptions) error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}

	engineCfg := *cfg.Engine
	if opts.policy != "" {
		policy, ok := engine.ParsePolicy(opts.policy)
		if !ok {
			return fmt.Errorf("unknown error policy %q", opts.policy)
		}
		engineCfg.ErrorPolicy = policy
	}

	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr, cfg.Server.LogLevel)

	vars, err := buildRenderContext(opts, func(name string) (engine.Context, error) {
		db, err := openDatabase(cfg.Server)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = db.Close()
		}()
		store, err := contexts.NewStore(db, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		vars, err := store.Get(cmd.Context(), name)
		if err != nil {
			return nil, fmt.Errorf("failed to load context %q: %w", name, err)
		}
		return vars, nil
	})
	if err != nil {
		return err
	}

	proc := engine.NewProcessor(logger, &engineCfg)
	report, err := proc.Process(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), vars)
	if report.Failed > 0 {
		errorColor(stderr).Fprintf(stderr, "%d of %d lines failed to render\n", report.Failed, report.Lines)
	}
	return err
}

// buildRenderContext layers the stored context, context files and --var
// assignments. load is only called when a stored context is named.
func buildRenderContext(opts renderOptions, load func(name string) (engine.Context, error)) (engine.Context, error) {
	if opts.contextName == "" && len(opts.contextFiles) == 0 && len(opts.vars) == 0 {
		return builtinContext(), nil
	}

	var layers []engine.Context
	if opts.contextName != "" {
		stored, err := load(opts.contextName)
		if err != nil {
			return nil, err
		}
		layers = append(layers, stored)
	}
	for _, path := range opts.contextFiles {
		fileVars, err := contexts.LoadFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, fileVars)
	}
	assigned, err := contexts.ParseAssignments(opts.vars)
	if err != nil {
		return nil, err
	}
	layers = append(layers, assigned)
	return contexts.Merge(layers...), nil
}

// errorColor returns the color used for diagnostics on w. Color is only
// emitted when w is a terminal.
func errorColor(w io.Writer) *color.Color {
	c := color.New(color.FgRed, color.Bold)
	if isTerminal(w) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
