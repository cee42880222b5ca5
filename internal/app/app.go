// Package app wires configuration, logging, the API client and the two
// orchestrators into a Runner the CLI commands call into.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opsforge/deployctl/internal/api"
	"github.com/opsforge/deployctl/internal/git"
	"github.com/opsforge/deployctl/internal/merge"
	"github.com/opsforge/deployctl/internal/pipeline"
	"github.com/opsforge/deployctl/internal/term"
)

// Runner glues together the orchestrators and supporting services.
type Runner struct {
	cfg     Config
	ui      term.UI
	deploys *pipeline.Orchestrator
	merges  *merge.Orchestrator
}

// NewRunner constructs a Runner with the supplied configuration, prompting
// for a missing credential on the way.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	ui := term.NewConsole(os.Stdout)
	if err := cfg.EnsureToken(ui); err != nil {
		return nil, err
	}

	apiClient, err := api.NewHTTPClient(ctx, api.ClientConfig{
		Routes:  cfg.Routes,
		Token:   cfg.Token,
		Timeout: cfg.APITimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("configure api client: %w", err)
	}

	var gitRunner git.Runner
	if cfg.DryRun {
		gitRunner = git.NewNoopRunner()
	} else {
		shell := git.NewShellRunner(cfg.WorkDir)
		shell.CommandTimeout = cfg.GitTimeout
		gitRunner = shell
	}

	return &Runner{
		cfg:     cfg,
		ui:      ui,
		deploys: pipeline.New(pipeline.Config{PollInterval: cfg.PollInterval}, apiClient, ui, logger),
		merges:  merge.New(gitRunner, ui, logger),
	}, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for
// testing.
func NewRunnerWithDeps(cfg Config, ui term.UI, deploys *pipeline.Orchestrator, merges *merge.Orchestrator) *Runner {
	return &Runner{cfg: cfg, ui: ui, deploys: deploys, merges: merges}
}

// Close tears down the deploy orchestrator's polling loop.
func (r *Runner) Close() {
	if r.deploys != nil {
		r.deploys.Close()
	}
}

// Deploy runs the interactive deploy flow: search, select, resolve, start,
// and optionally wait for a terminal status.
func (r *Runner) Deploy(ctx context.Context, keyword string, wait bool) error {
	projects := r.deploys.SearchProjects(ctx, keyword)
	if len(projects) == 0 {
		r.ui.Notify(term.LevelWarn, "no projects matched")
		return nil
	}

	options := make([]string, 0, len(projects))
	byLabel := make(map[string]pipeline.ProjectDescriptor, len(projects))
	for _, p := range projects {
		label := p.Name
		if label == "" {
			label = p.ID
		}
		if p.ID != "" && p.Name != "" {
			label = fmt.Sprintf("%s (%s)", p.Name, p.ID)
		}
		options = append(options, label)
		byLabel[label] = p
	}

	selected, err := r.ui.Select("Select a project", options, "")
	if err != nil {
		r.ui.Notify(term.LevelInfo, "deploy canceled")
		return nil
	}
	project := byLabel[selected]

	code, ok := r.deploys.ResolveApplicationCode(ctx, project.ID)
	if !ok {
		r.ui.Notify(term.LevelWarn, fmt.Sprintf("no front-end application found for %s", project.Name))
		return nil
	}

	confirmed, err := r.ui.Confirm(fmt.Sprintf("Start a deploy pipeline for %s?", code))
	if err != nil || !confirmed {
		r.ui.Notify(term.LevelInfo, "deploy canceled")
		return nil
	}

	started, err := r.deploys.StartPipeline(ctx, code)
	if err != nil || !started {
		return err
	}
	if !wait {
		return nil
	}
	return r.waitForBuild(ctx, code)
}

// waitForBuild blocks until the tracked run for the application reaches a
// terminal status; the background polling loop does the actual work.
func (r *Runner) waitForBuild(ctx context.Context, application string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		for _, rec := range r.deploys.Records() {
			if rec.ApplicationName != application || !rec.Terminal() {
				continue
			}
			if *rec.Status == pipeline.StatusDone {
				return nil
			}
			return fmt.Errorf("deployment ended with status %s", rec.Status)
		}
	}
}

// Status prints the tracked deployment records.
func (r *Runner) Status(_ context.Context) error {
	records := r.deploys.Records()
	if len(records) == 0 {
		r.ui.Log("no tracked deployments")
		return nil
	}

	for _, rec := range records {
		status := "pending"
		if rec.Status != nil {
			status = rec.Status.String()
		}
		line := fmt.Sprintf("build %d  %-20s  %s", rec.BuildID, rec.ApplicationName, status)
		if rec.StartTime != "" {
			line += "  started " + rec.StartTime
		}
		if rec.Loading {
			line += "  (aborting)"
		}
		r.ui.Log(strings.TrimRight(line, " "))
	}
	return nil
}

// Abort requests a remote abort for one tracked build.
func (r *Runner) Abort(ctx context.Context, buildID int) error {
	_, err := r.deploys.AbortPipeline(ctx, buildID)
	return err
}

// Remove drops a terminal record from the registry.
func (r *Runner) Remove(_ context.Context, buildID int) error {
	if err := r.deploys.RemoveRecord(buildID); err != nil {
		r.ui.Notify(term.LevelWarn, fmt.Sprintf("cannot remove build %d: %v", buildID, err))
		return err
	}
	r.ui.Log(fmt.Sprintf("removed build %d", buildID))
	return nil
}

// Merge runs the branch merge workflow.
func (r *Runner) Merge(ctx context.Context) error {
	return r.merges.Run(ctx)
}
