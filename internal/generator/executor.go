// Package generator runs custom build steps: external programs that
// transform one declared input file into declared outputs under the scope's
// build directory. Runs whose outputs are provably up to date are skipped.
package generator

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/fsutil"
	"github.com/masonbuild/mason/internal/model"
)

// digestCacheSize bounds the content-hash memo. Entries are keyed by path,
// mtime and size, so an edited file never reuses a stale digest.
const digestCacheSize = 512

// killGracePeriod is how long a canceled generator gets to release its
// output pipes before the run is abandoned.
const killGracePeriod = 10 * time.Second

// Executor runs generator programs and tracks their staleness stamps.
type Executor struct {
	digests *lru.Cache[string, string]
}

// NewExecutor creates an executor with an empty digest memo.
func NewExecutor() (*Executor, error) {
	digests, err := lru.New[string, string](digestCacheSize)
	if err != nil {
		return nil, err
	}
	return &Executor{digests: digests}, nil
}

// Invocation is one generator run with every path already resolved during
// graph construction.
type Invocation struct {
	Step      *model.GeneratorStep
	ScopeDir  string
	BuildDir  string
	InputPath string
	Outputs   []string
}

// Run executes the generator unless its outputs are up to date. The program
// runs with the scope directory as its working directory; a run that exits
// non-zero or leaves a declared output missing fails the invocation.
func (e *Executor) Run(ctx context.Context, inv Invocation) error {
	logger := ctxlog.FromContext(ctx)

	fresh, err := e.Check(inv)
	if err != nil {
		return err
	}
	if fresh.Fresh {
		logger.Debug("Generator outputs up to date, skipping run.", "generator", inv.Step.ID())
		return nil
	}
	logger.Debug("Running generator.", "generator", inv.Step.ID(), "reason", fresh.Reason)

	for _, out := range inv.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, programPath(inv), substituteArgs(inv)...)
	cmd.Dir = inv.ScopeDir
	cmd.Env = mergedEnv(inv.Step.Env)
	cmd.WaitDelay = killGracePeriod
	out, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return model.NewGeneratorExecutionFailedError(inv.Step.ID(), code, strings.TrimSpace(string(out)), err)
	}

	var missing []string
	for _, path := range inv.Outputs {
		if !fsutil.FileExists(path) {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return model.NewGeneratorOutputMissingError(inv.Step.ID(), missing)
	}

	if err := e.writeStamp(inv); err != nil {
		return err
	}
	logger.Debug("Generator finished.", "generator", inv.Step.ID(), "outputs", len(inv.Outputs))
	return nil
}

// substituteArgs expands the input and output-directory placeholders in the
// declared argument list.
func substituteArgs(inv Invocation) []string {
	args := make([]string, len(inv.Step.Args))
	for i, arg := range inv.Step.Args {
		arg = strings.ReplaceAll(arg, model.PlaceholderInput, inv.InputPath)
		arg = strings.ReplaceAll(arg, model.PlaceholderOutDir, inv.BuildDir)
		args[i] = arg
	}
	return args
}

// programPath resolves a scope-relative program path. exec resolves relative
// paths against the parent's working directory, not cmd.Dir, so the scope
// directory has to be joined in explicitly. Bare names keep PATH lookup.
func programPath(inv Invocation) string {
	prog := inv.Step.Program
	if filepath.IsAbs(prog) || !strings.ContainsRune(prog, '/') {
		return prog
	}
	return filepath.Join(inv.ScopeDir, prog)
}

// mergedEnv extends the parent environment with the step's declared
// variables, in sorted order.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	return append(env, sortedEnv(extra)...)
}

// sortedEnv renders an env map as sorted KEY=VALUE pairs.
func sortedEnv(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+extra[k])
	}
	return pairs
}
