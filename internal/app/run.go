package app

import (
	"context"
	"fmt"

	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/generator"
	"github.com/masonbuild/mason/internal/graph"
	"github.com/masonbuild/mason/internal/hcl"
	"github.com/masonbuild/mason/internal/model"
	"github.com/masonbuild/mason/internal/orchestrator"
	"github.com/masonbuild/mason/internal/resolve"
	"github.com/masonbuild/mason/internal/toolchain"
	"github.com/masonbuild/mason/internal/watch"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	tc, err := a.loadToolchain()
	if err != nil {
		return fmt.Errorf("failed to load toolchain: %w", err)
	}
	a.logger.Debug("Toolchain configured.", "toolchain", tc.Name())

	gens, err := generator.NewExecutor()
	if err != nil {
		return err
	}

	if a.config.Watch {
		return a.watchLoop(ctx, tc, gens)
	}

	result, err := a.buildOnce(ctx, tc, gens)
	if werr := a.writeReport(result); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if result != nil && result.Counts.TestsFailed > 0 {
		return testsFailedError(result.Counts.TestsFailed)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// testsFailedError wraps ErrTestFailure so callers can tell a failing test
// run apart from a failing build.
func testsFailedError(count int) error {
	return fmt.Errorf("%w: %d test(s) failed", model.ErrTestFailure, count)
}

// buildOnce resolves the project from disk, assembles the dependency graph
// and executes it. Declarations are re-read on every call so watch mode
// picks up edits to the project files themselves.
func (a *App) buildOnce(ctx context.Context, tc toolchain.Toolchain, gens *generator.Executor) (*orchestrator.BuildResult, error) {
	project, err := resolve.NewResolver(hcl.NewLoader()).Resolve(ctx, a.config.ProjectDir, a.config.BuildDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	a.logger.Debug("Building dependency graph from project model...")
	g, err := graph.Build(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(g.Nodes))

	if len(g.Nodes) == 0 {
		a.logger.Warn("No nodes found in graph, execution not required.")
		return nil, nil
	}

	a.logger.Info("🚀 Starting concurrent build...")
	orch := orchestrator.New(g, tc, gens, orchestrator.Options{
		Workers:   a.config.WorkerCount,
		KeepGoing: a.config.KeepGoing,
		SkipTests: a.config.SkipTests,
		Tests:     project.Tests(),
	})
	result, err := orch.Execute(ctx)
	if err != nil {
		return result, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Build finished.", "elapsed", result.Elapsed)
	return result, nil
}

// watchLoop builds once, then rebuilds after every debounced change under
// the project directory. Build failures are logged, never fatal: the next
// edit gets another chance.
func (a *App) watchLoop(ctx context.Context, tc toolchain.Toolchain, gens *generator.Executor) error {
	rebuild := func(ctx context.Context) error {
		result, err := a.buildOnce(ctx, tc, gens)
		if werr := a.writeReport(result); werr != nil && err == nil {
			err = werr
		}
		if err == nil && result != nil && result.Counts.TestsFailed > 0 {
			err = testsFailedError(result.Counts.TestsFailed)
		}
		return err
	}

	if err := rebuild(ctx); err != nil {
		a.logger.Error("Initial build failed.", "error", err)
	}
	return watch.New(rebuild, 0).Watch(ctx, []string{a.config.ProjectDir}, a.config.BuildDir)
}

// loadToolchain builds the toolchain from the configured spec file, or the
// host default when none was given.
func (a *App) loadToolchain() (toolchain.Toolchain, error) {
	if a.config.ToolchainFile == "" {
		return toolchain.NewDefault(), nil
	}
	spec, err := toolchain.Load(a.config.ToolchainFile)
	if err != nil {
		return nil, err
	}
	return toolchain.New(spec), nil
}

// writeReport serializes the run result when a report path is configured.
// A nil result (nothing was executed) writes nothing.
func (a *App) writeReport(result *orchestrator.BuildResult) error {
	if result == nil || a.config.ReportPath == "" {
		return nil
	}
	if err := result.WriteYAML(a.config.ReportPath); err != nil {
		a.logger.Error("Failed to write build report.", "path", a.config.ReportPath, "error", err)
		return fmt.Errorf("failed to write build report: %w", err)
	}
	a.logger.Info("Build report written.", "path", a.config.ReportPath)
	return nil
}
