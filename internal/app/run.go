package app

import (
	"context"
	"fmt"
	"os"

	"github.com/barrulus/Hesiod/internal/ctxlog"
	"github.com/barrulus/Hesiod/internal/project"
	"github.com/barrulus/Hesiod/internal/scheduler"
)

// Run executes the loaded graph and blocks until the run settles. When a
// save path is configured, the graph is written back out as a project
// document afterwards.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	scope := scheduler.ScopeFull
	if a.config.Scope == "dirty" {
		scope = scheduler.ScopeDirty
	}

	run, err := a.engine.Submit(ctx, a.graph, scope)
	if err != nil {
		return fmt.Errorf("submitting run: %w", err)
	}
	a.logger.Info("Run submitted.", "run_id", run.ID(), "nodes", len(run.Nodes()))

	for ev := range run.Progress() {
		a.logger.Debug("Node settled.",
			"node", ev.Node,
			"status", ev.Status,
			"percent", fmt.Sprintf("%.0f", ev.Percent),
		)
	}
	<-run.Done()

	counts := make(map[scheduler.NodeStatus]int)
	for _, id := range run.Nodes() {
		if st, ok := run.NodeStatus(id); ok {
			counts[st]++
		}
	}
	a.logger.Info("Run settled.",
		"run_id", run.ID(),
		"state", run.State(),
		"done", counts[scheduler.StatusDone],
		"cached", counts[scheduler.StatusCached],
		"failed", counts[scheduler.StatusFailed],
		"skipped", counts[scheduler.StatusSkipped],
	)

	if err := run.Err(); err != nil {
		return err
	}
	switch run.State() {
	case scheduler.StateFailed:
		return fmt.Errorf("run failed: %d node(s) failed, %d skipped",
			counts[scheduler.StatusFailed]+counts[scheduler.StatusTimedOut],
			counts[scheduler.StatusSkipped])
	case scheduler.StateCancelled:
		return context.Canceled
	}

	if a.config.SavePath != "" {
		if err := a.save(); err != nil {
			return err
		}
		a.logger.Info("Project document written.", "path", a.config.SavePath)
	}
	return nil
}

func (a *App) save() error {
	doc, err := project.Snapshot(a.graph, a.registry)
	if err != nil {
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.config.SavePath, data, 0o644); err != nil {
		return fmt.Errorf("writing project document: %w", err)
	}
	return nil
}
