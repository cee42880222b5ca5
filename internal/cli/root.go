// Package cli defines the cobra command tree. Commands stay thin: load
// config, build the app Runner, call one workflow entry point.
package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opsforge/deployctl/internal/app"
)

// Execute runs the root command with the provided context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the deployctl command tree.
func NewRootCommand() *cobra.Command {
	var (
		logLevel  string
		logFormat string
		workDir   string
		dryRun    bool
	)

	root := &cobra.Command{
		Use:           "deployctl",
		Short:         "Automate remote deploy pipelines and scripted branch merges",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	root.PersistentFlags().StringVar(&workDir, "work-dir", "", "git repository the merge workflow runs in")
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log git mutations instead of executing them")

	loadConfig := func() (app.Config, error) {
		cfg, err := app.LoadConfig()
		if err != nil {
			return app.Config{}, err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if workDir != "" {
			cfg.WorkDir = workDir
		}
		if dryRun {
			cfg.DryRun = true
		}
		return cfg, nil
	}

	withRunner := func(cmd *cobra.Command, fn func(ctx context.Context, runner *app.Runner) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		runner, err := app.NewRunner(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer runner.Close()
		return fn(cmd.Context(), runner)
	}

	var noWait bool
	deployCmd := &cobra.Command{
		Use:   "deploy [keyword]",
		Short: "Search a project, start its deploy pipeline and poll to completion",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := ""
			if len(args) > 0 {
				keyword = args[0]
			}
			return withRunner(cmd, func(ctx context.Context, runner *app.Runner) error {
				return runner.Deploy(ctx, keyword, !noWait)
			})
		},
	}
	deployCmd.Flags().BoolVar(&noWait, "no-wait", false, "return immediately after the pipeline starts")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "List tracked deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, runner *app.Runner) error {
				return runner.Status(ctx)
			})
		},
	}

	abortCmd := &cobra.Command{
		Use:   "abort <build-id>",
		Short: "Abort a running pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("build id must be numeric: %w", err)
			}
			return withRunner(cmd, func(ctx context.Context, runner *app.Runner) error {
				return runner.Abort(ctx, buildID)
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <build-id>",
		Short: "Drop a finished deployment from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buildID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("build id must be numeric: %w", err)
			}
			return withRunner(cmd, func(ctx context.Context, runner *app.Runner) error {
				return runner.Remove(ctx, buildID)
			})
		},
	}

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a selected branch through dev and sit and push both",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(ctx context.Context, runner *app.Runner) error {
				return runner.Merge(ctx)
			})
		},
	}

	root.AddCommand(deployCmd, statusCmd, abortCmd, removeCmd, mergeCmd)
	return root
}
