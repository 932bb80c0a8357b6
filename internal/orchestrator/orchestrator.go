// Package orchestrator executes a build graph. A worker pool drains the
// ready set as dependency counters hit zero; a failure skips the dependent
// subtree and, unless keep-going is set, cancels everything else in flight.
// Tests run as a separate phase once all nodes settle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/generator"
	"github.com/masonbuild/mason/internal/graph"
	"github.com/masonbuild/mason/internal/model"
	"github.com/masonbuild/mason/internal/toolchain"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 8

// Options tunes one Execute run.
type Options struct {
	// Workers is the worker pool size, defaulting to DefaultWorkers.
	Workers int
	// KeepGoing lets subtrees unaffected by a failure finish instead of
	// canceling the whole run.
	KeepGoing bool
	// SkipTests disables the test phase.
	SkipTests bool
	// Tests are the cases to run once every node settles.
	Tests []*model.TestCase
}

// Orchestrator drives one build of a constructed graph.
type Orchestrator struct {
	graph *graph.Graph
	tc    toolchain.Toolchain
	gens  *generator.Executor
	opts  Options

	wg sync.WaitGroup

	mu        sync.Mutex
	durations map[string]time.Duration
}

// New creates an orchestrator for one run of the graph.
func New(g *graph.Graph, tc toolchain.Toolchain, gens *generator.Executor, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Orchestrator{
		graph:     g,
		tc:        tc,
		gens:      gens,
		opts:      opts,
		durations: make(map[string]time.Duration),
	}
}

// errSkipped marks nodes abandoned after an upstream failure. It is a
// symptom, not a cause: root-cause reporting ignores it.
var errSkipped = errors.New("skipped after upstream failure")

type skippedError struct {
	upstream string
}

func (e *skippedError) Error() string {
	return "skipped after upstream failure of " + e.upstream
}

func (e *skippedError) Is(err error) bool {
	return err == errSkipped
}

// Execute runs the graph and then the test phase. The returned BuildResult
// is complete even when the build failed; the error carries the first root
// cause.
func (o *Orchestrator) Execute(ctx context.Context) (*BuildResult, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()
	result := newBuildResult(o.tc.Name())

	readyChan := make(chan *graph.Node, len(o.graph.Nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, node := range o.graph.Nodes {
		if node.DepCount() == 0 {
			readyChan <- node
			rootCount++
		}
	}
	logger.Debug("Execute: Found root nodes.", "count", rootCount)

	o.wg.Add(len(o.graph.Nodes))

	logger.Debug("Execute: Starting worker pool.", "workers", o.opts.Workers)
	for i := 0; i < o.opts.Workers; i++ {
		go o.worker(runCtx, readyChan, cancel, i)
	}
	o.wg.Wait()
	close(readyChan)

	var failed []string
	var rootCause error
	for _, id := range sortedGraphIDs(o.graph) {
		node := o.graph.Nodes[id]
		outcome := NodeOutcome{
			ID:         node.ID,
			Kind:       node.Type.String(),
			Status:     nodeStatus(node),
			DurationMS: o.duration(node.ID).Milliseconds(),
		}
		if node.Error != nil {
			outcome.Error = node.Error.Error()
		}
		result.Nodes = append(result.Nodes, outcome)

		if outcome.Status != statusFailed {
			continue
		}
		logger.Error("Node failed execution.", "node", node.ID, "error", node.Error)
		failed = append(failed, node.ID)
		if rootCause == nil {
			rootCause = node.Error
		}
	}

	o.runTests(ctx, result)
	result.finalize(time.Since(started))

	if rootCause != nil {
		return result, fmt.Errorf("build failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return result, nil
}

// worker is the processing loop of a single concurrent worker.
func (o *Orchestrator) worker(ctx context.Context, readyChan chan *graph.Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "worker", workerID)

	for node := range readyChan {
		workerLogger := logger.With("worker", workerID, "node", node.ID)

		if ctx.Err() != nil {
			if node.Skip(ctx.Err(), &o.wg) {
				workerLogger.Warn("Context canceled, skipping node execution.")
			}
			continue
		}

		workerLogger.Debug("Worker picked up node for execution.")
		node.SetState(graph.Running)
		started := time.Now()
		err := o.runNode(ctx, node)
		o.recordDuration(node.ID, time.Since(started))

		if err != nil {
			workerLogger.Error("Node execution failed.", "error", err)
			node.SetState(graph.Failed)
			node.Error = err
			if !o.opts.KeepGoing {
				cancel()
			}
			o.skipDependents(ctx, node)
			o.wg.Done()
			continue
		}

		workerLogger.Debug("Node execution succeeded.")
		node.SetState(graph.Done)

		for _, dependent := range node.Dependents {
			if dependent.DecrementDepCount() == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependent", dependent.ID)
				readyChan <- dependent
			}
		}
		o.wg.Done()
	}
	logger.Debug("Worker finished.", "worker", workerID)
}

// skipDependents recursively marks all downstream nodes failed.
func (o *Orchestrator) skipDependents(ctx context.Context, node *graph.Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		if dependent.Skip(&skippedError{upstream: node.ID}, &o.wg) {
			logger.Warn("Skipping dependent node due to upstream failure.",
				"node", dependent.ID, "dependency", node.ID)
			o.skipDependents(ctx, dependent)
		}
	}
}

func (o *Orchestrator) recordDuration(id string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.durations[id] = d
}

func (o *Orchestrator) duration(id string) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durations[id]
}

// nodeStatus folds a node's final state and error into a report status.
// Victims of an upstream failure or cancellation count as skipped, not
// failed.
func nodeStatus(node *graph.Node) string {
	state := node.GetState()
	if state != graph.Failed {
		return state.String()
	}
	if errors.Is(node.Error, errSkipped) || errors.Is(node.Error, context.Canceled) ||
		errors.Is(node.Error, context.DeadlineExceeded) {
		return statusSkipped
	}
	return statusFailed
}

func sortedGraphIDs(g *graph.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
