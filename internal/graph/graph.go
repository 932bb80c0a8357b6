package graph

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/masonbuild/mason/internal/model"
)

// Graph is the dependency DAG for one build. Warnings collects non-fatal
// findings from construction, currently only duplicate generator outputs.
type Graph struct {
	Nodes    map[string]*Node
	Warnings []*model.DuplicateOutputError
}

// Node is a single vertex in the build graph: one generator invocation or
// one compile-and-archive/link unit. Path fields are absolute, resolved
// during graph construction.
type Node struct {
	ID    string
	Type  NodeType
	Scope string

	// Generator is set for generator nodes, Target for library and
	// executable nodes.
	Generator *model.GeneratorStep
	Target    *model.Target

	// ScopeDir and BuildDir are the owning scope's source and build
	// directories.
	ScopeDir string
	BuildDir string

	// InputPath is the generator's resolved input file.
	InputPath string
	// OutputPaths are the generator's outputs under the scope build dir.
	OutputPaths []string

	// Sources are the target's resolved source files after generated
	// references were rewritten into the build directory.
	Sources []string
	// Includes are the target's resolved include directories.
	Includes []string
	// ObjDir is where the target's object files go.
	ObjDir string
	// LinkArtifacts are library archives on the link line, direct links
	// first, transitive closure appended.
	LinkArtifacts []string
	// SystemLinks are prebuilt system libraries on the link line.
	SystemLinks []model.LinkDep

	Deps       map[string]*Node
	Dependents map[string]*Node

	// Error stores the failure that stopped this node, if any.
	Error error

	depCount atomic.Int32
	state    atomic.Int32
	skipOnce sync.Once
}

func newNode(id string, typ NodeType, scope string) *Node {
	return &Node{
		ID:         id,
		Type:       typ,
		Scope:      scope,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
}

// addEdge records that n depends on producer.
func (n *Node) addEdge(producer *Node) {
	if _, exists := n.Deps[producer.ID]; exists {
		return
	}
	n.Deps[producer.ID] = producer
	producer.Dependents[n.ID] = n
}

// SetInitialCounters primes the unmet-dependency counter before execution.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// DepCount atomically returns the current number of unmet dependencies.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDepCount atomically decrements the dependency counter and returns
// the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// GetState atomically retrieves the node's execution state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

// Skip marks the node failed exactly once, recording err and signaling wg.
// It returns true the first time the node is skipped.
func (n *Node) Skip(err error, wg *sync.WaitGroup) bool {
	var wasSkipped bool
	n.skipOnce.Do(func() {
		n.SetState(Failed)
		n.Error = err
		wg.Done()
		wasSkipped = true
	})
	return wasSkipped
}

// sortedIDs returns all node IDs in lexical order for deterministic walks.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// detectCycles runs a depth-first walk over every node, tracking the
// recursion stack so a detected cycle can be reported as its full path.
func (g *Graph) detectCycles() error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var stack []string

	var visit func(node *Node) error
	visit = func(node *Node) error {
		visiting[node.ID] = true
		stack = append(stack, node.ID)

		for _, depID := range sortedNodeIDs(node.Deps) {
			dep := node.Deps[depID]
			if visiting[dep.ID] {
				return model.NewCyclicDependencyError(cyclePath(stack, dep.ID))
			}
			if !visited[dep.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(visiting, node.ID)
		visited[node.ID] = true
		return nil
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if err := visit(g.Nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// cyclePath trims the recursion stack to the segment forming the cycle and
// closes it by repeating the entry node.
func cyclePath(stack []string, entry string) []string {
	start := 0
	for i, id := range stack {
		if id == entry {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	path = append(path, stack[start:]...)
	path = append(path, entry)
	return path
}

// TopoOrder returns the nodes in a topological order respecting every edge.
// Ties break lexically so the order is stable. The graph is cycle-free by
// construction, so an order always exists.
func (g *Graph) TopoOrder() []*Node {
	remaining := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		remaining[id] = len(n.Deps)
	}

	var ready []string
	for id, count := range remaining {
		if count == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]*Node, 0, len(g.Nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		node := g.Nodes[id]
		order = append(order, node)

		var unlocked []string
		for _, dependent := range node.Dependents {
			remaining[dependent.ID]--
			if remaining[dependent.ID] == 0 {
				unlocked = append(unlocked, dependent.ID)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}
	return order
}

// sortedNodeIDs returns a node map's keys in lexical order.
func sortedNodeIDs(nodes map[string]*Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
