// Package merge implements the scripted multi-branch merge-and-push
// workflow: a user-selected source branch is merged into dev, dev into sit,
// each hop gated by a conflict checkpoint, and each result pushed.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opsforge/deployctl/internal/git"
	"github.com/opsforge/deployctl/internal/term"
)

const (
	branchDev = "dev"
	branchSIT = "sit"

	// Choices offered when the working tree is dirty. Only an explicit
	// ChoiceProceed continues the workflow.
	ChoiceInspect = "Show the changes first"
	ChoiceProceed = "Continue anyway"
	ChoiceCancel  = "Cancel"
)

var (
	// ErrNotARepository reports that the working directory is not a git
	// repository.
	ErrNotARepository = errors.New("not a git repository")

	// ErrDirtyTree reports that the user declined to continue with
	// uncommitted changes.
	ErrDirtyTree = errors.New("working tree has uncommitted changes")

	// ErrMergeConflict reports a conflict checkpoint failure. The
	// repository is intentionally left in the conflicted state for manual
	// resolution.
	ErrMergeConflict = errors.New("merge conflict")
)

// Orchestrator runs the merge workflow. It assumes a single invocation in
// flight at a time; serialization is the caller's responsibility.
type Orchestrator struct {
	git git.Runner
	ui  term.UI
	log *slog.Logger
}

// New returns a configured merge Orchestrator.
func New(runner git.Runner, ui term.UI, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{git: runner, ui: ui, log: logger}
}

// hop is one merge-and-push step. The sit hop is driven from dev; only its
// push targets sit.
type hop struct {
	checkout string
	source   string
	push     string
}

// Run executes the whole workflow: preconditions, source selection,
// confirmation, then the merge sequence. A failure anywhere aborts the
// remaining steps; the original branch is restored only on the happy path.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.git.Run(ctx, "rev-parse", "--git-dir"); err != nil {
		o.ui.Notify(term.LevelError, "the working directory is not a git repository")
		return ErrNotARepository
	}

	status, err := o.git.Run(ctx, "status", "--porcelain")
	if err != nil {
		return o.fail("inspect working tree", err)
	}
	if strings.TrimSpace(status) != "" {
		choice, chooseErr := o.ui.Choose("Uncommitted changes detected", []string{ChoiceInspect, ChoiceProceed, ChoiceCancel})
		if chooseErr != nil || choice != ChoiceProceed {
			if choice == ChoiceInspect {
				o.ui.Log(status)
			}
			o.ui.Notify(term.LevelInfo, "merge canceled, commit or stash your changes first")
			return ErrDirtyTree
		}
	}

	currentOut, err := o.git.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return o.fail("resolve current branch", err)
	}
	current := strings.TrimSpace(currentOut)

	rawBranches, err := o.git.Run(ctx, "branch", "-a")
	if err != nil {
		return o.fail("list branches", err)
	}
	branches := ParseBranches(rawBranches)
	if len(branches) == 0 {
		o.ui.Notify(term.LevelError, "no branches found in this repository")
		return fmt.Errorf("no branches found")
	}

	source, err := o.ui.Select("Select the branch to merge", branches, current)
	if err != nil {
		o.ui.Notify(term.LevelInfo, "merge canceled")
		return nil
	}

	for i, line := range o.plan(source, current) {
		o.ui.Log(fmt.Sprintf("%d. %s", i+1, line))
	}
	confirmed, err := o.ui.Confirm(fmt.Sprintf("Merge %s into dev and sit, then push?", source))
	if err != nil || !confirmed {
		o.ui.Notify(term.LevelInfo, "merge canceled")
		return nil
	}

	return o.execute(ctx, source, current)
}

func (o *Orchestrator) plan(source, current string) []string {
	return []string{
		fmt.Sprintf("checkout %s and pull origin %s", source, source),
		fmt.Sprintf("merge %s into dev, then push origin dev:dev", source),
		"merge dev into sit, then push origin sit:sit",
		fmt.Sprintf("checkout %s", current),
	}
}

func (o *Orchestrator) execute(ctx context.Context, source, current string) error {
	progress := o.ui.Progress(fmt.Sprintf("Merging %s into dev and sit", source))
	defer progress.Done()

	progress.Step(5, "checkout "+source)
	if _, err := o.git.Run(ctx, "checkout", source); err != nil {
		return o.fail("checkout "+source, err)
	}
	progress.Step(15, "pull origin "+source)
	if _, err := o.git.Run(ctx, "pull", "origin", source); err != nil {
		return o.fail("pull "+source, err)
	}

	hops := []hop{
		{checkout: branchDev, source: source, push: branchDev},
		{checkout: branchDev, source: branchDev, push: branchSIT},
	}

	pct := 25
	for _, h := range hops {
		if err := o.mergeAndPush(ctx, h, progress, &pct); err != nil {
			return err
		}
	}

	// Restored only here; an earlier failure leaves the repository where
	// it stopped, which is what manual conflict resolution needs.
	progress.Step(95, "checkout "+current)
	if _, err := o.git.Run(ctx, "checkout", current); err != nil {
		return o.fail("restore original branch", err)
	}

	progress.Step(100, "done")
	o.ui.Notify(term.LevelInfo, fmt.Sprintf("%s merged into dev and sit, both pushed", source))
	o.log.Info("merge workflow completed", "source", source, "restored", current)
	return nil
}

func (o *Orchestrator) mergeAndPush(ctx context.Context, h hop, progress term.Progress, pct *int) error {
	step := func(message string) {
		*pct += 8
		progress.Step(*pct, message)
	}

	step("checkout " + h.checkout)
	if _, err := o.git.Run(ctx, "checkout", h.checkout); err != nil {
		return o.fail("checkout "+h.checkout, err)
	}
	step("pull origin " + h.checkout)
	if _, err := o.git.Run(ctx, "pull", "origin", h.checkout); err != nil {
		return o.fail("pull "+h.checkout, err)
	}
	step("merge " + h.source)
	if _, err := o.git.Run(ctx, "merge", h.source); err != nil {
		return o.fail("merge "+h.source, err)
	}

	status, err := o.git.Run(ctx, "status", "--porcelain")
	if err != nil {
		return o.fail("inspect merge result", err)
	}
	if HasConflicts(status) {
		o.ui.Notify(term.LevelError,
			fmt.Sprintf("merge conflict while merging %s into %s, resolve it manually and push", h.source, h.push))
		return ErrMergeConflict
	}

	refspec := h.push + ":" + h.push
	step("push origin " + refspec)
	if _, err := o.git.Run(ctx, "push", "origin", refspec); err != nil {
		return o.fail("push "+h.push, err)
	}
	return nil
}

func (o *Orchestrator) fail(what string, err error) error {
	o.ui.Notify(term.LevelError, fmt.Sprintf("%s: %v", what, err))
	return fmt.Errorf("%s: %w", what, err)
}
