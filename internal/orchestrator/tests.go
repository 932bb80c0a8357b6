package orchestrator

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/graph"
	"github.com/masonbuild/mason/internal/model"
)

// runTests executes the test phase: every case runs its target executable,
// limited to the configured worker count. Cases whose target never built
// are recorded as skipped. Failures land in the result, never in an error.
func (o *Orchestrator) runTests(ctx context.Context, result *BuildResult) {
	if o.opts.SkipTests || len(o.opts.Tests) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Running tests.", "count", len(o.opts.Tests))

	outcomes := make([]TestOutcome, len(o.opts.Tests))
	eg := new(errgroup.Group)
	eg.SetLimit(o.opts.Workers)
	for i, tc := range o.opts.Tests {
		i, tc := i, tc // per-iteration copies; go.mod predates the Go 1.22 loop scoping
		eg.Go(func() error {
			outcomes[i] = o.runTest(ctx, tc)
			return nil
		})
	}
	_ = eg.Wait() // Closures never return an error.
	result.Tests = outcomes
}

func (o *Orchestrator) runTest(ctx context.Context, tc *model.TestCase) TestOutcome {
	logger := ctxlog.FromContext(ctx)
	outcome := TestOutcome{ID: tc.ID(), Target: tc.TargetID}

	node := o.graph.Nodes[tc.TargetID]
	if node == nil || node.GetState() != graph.Done {
		logger.Warn("Skipping test, its target was not built.", "test", tc.ID(), "target", tc.TargetID)
		outcome.Status = statusSkipped
		outcome.Output = "target was not built"
		return outcome
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, node.Target.OutputPath, tc.Args...)
	cmd.Dir = node.ScopeDir
	cmd.Env = testEnv(tc.Env)
	cmd.WaitDelay = 10 * time.Second
	out, err := cmd.CombinedOutput()
	outcome.DurationMS = time.Since(started).Milliseconds()
	outcome.Output = strings.TrimSpace(string(out))

	if err != nil {
		outcome.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		}
		outcome.Status = statusFailed
		logger.Warn("Test failed.", "test", tc.ID(), "exit_code", outcome.ExitCode)
		return outcome
	}
	outcome.Status = statusPassed
	return outcome
}

// testEnv extends the parent environment with the case's declared variables.
func testEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
