package graph

import (
	"context"
	"path/filepath"

	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/fsutil"
	"github.com/masonbuild/mason/internal/model"
)

// outputIndex maps scope → cleaned output path → producing generator node.
type outputIndex map[string]map[string]*Node

// Build constructs a complete, validated dependency graph from a resolved
// project. All construction errors surface here, before any execution.
func Build(ctx context.Context, p *model.Project) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	g := &Graph{Nodes: make(map[string]*Node)}

	// First pass: create all nodes and index generator outputs.
	outputs := createNodes(ctx, p, g)
	logger.Debug("Build: Node creation complete.", "node_count", len(g.Nodes))

	// Second pass: link dependencies.
	if err := linkNodes(p, g, outputs); err != nil {
		return nil, err
	}
	logger.Debug("Build: Node linking complete.")

	// Third pass: initialize counters.
	for _, node := range g.Nodes {
		node.SetInitialCounters()
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Graph construction successful.")
	return g, nil
}

// createNodes performs the first pass of graph creation. Two generators
// declaring the same output within a scope is non-fatal: the later
// declaration wins and the collision is recorded as a warning.
func createNodes(ctx context.Context, p *model.Project, g *Graph) outputIndex {
	logger := ctxlog.FromContext(ctx)
	idx := make(outputIndex)

	for _, gen := range p.Generators() {
		dir, buildDir, _ := p.ScopeDirs(gen.Scope)
		node := newNode(gen.ID(), GeneratorNode, gen.Scope)
		node.Generator = gen
		node.ScopeDir = dir
		node.BuildDir = buildDir
		for _, out := range gen.Outputs {
			node.OutputPaths = append(node.OutputPaths, filepath.Join(buildDir, filepath.Clean(out)))
		}
		g.Nodes[node.ID] = node

		scopeIdx := idx[gen.Scope]
		if scopeIdx == nil {
			scopeIdx = make(map[string]*Node)
			idx[gen.Scope] = scopeIdx
		}
		for _, out := range gen.Outputs {
			cleaned := filepath.Clean(out)
			if earlier, exists := scopeIdx[cleaned]; exists {
				logger.Warn("Duplicate generator output found, later declaration wins.",
					"output", out, "earlier", earlier.ID, "later", node.ID)
				g.Warnings = append(g.Warnings, model.NewDuplicateOutputError(out, earlier.ID, node.ID))
			}
			scopeIdx[cleaned] = node
		}
	}

	for _, t := range p.Targets() {
		dir, buildDir, _ := p.ScopeDirs(t.Scope)
		typ := ExecutableNode
		if t.Kind == model.KindLibrary {
			typ = LibraryNode
		}
		node := newNode(t.ID(), typ, t.Scope)
		node.Target = t
		node.ScopeDir = dir
		node.BuildDir = buildDir
		node.ObjDir = filepath.Join(buildDir, "obj", t.Name)
		g.Nodes[node.ID] = node
	}

	return idx
}

// linkNodes performs the second pass, wiring every node to the producers of
// its inputs in declaration order.
func linkNodes(p *model.Project, g *Graph, outputs outputIndex) error {
	for _, gen := range p.Generators() {
		if err := linkGeneratorInput(g.Nodes[gen.ID()], outputs); err != nil {
			return err
		}
	}
	for _, t := range p.Targets() {
		if err := linkTarget(p, g, g.Nodes[t.ID()], outputs); err != nil {
			return err
		}
	}
	return nil
}

// linkGeneratorInput resolves a generator's input file: either another
// generator's declared output (an edge, input read from the build dir) or a
// plain file that must exist in the scope directory.
func linkGeneratorInput(node *Node, outputs outputIndex) error {
	gen := node.Generator
	cleaned := filepath.Clean(gen.Input)

	if producer, ok := outputs[node.Scope][cleaned]; ok {
		if producer == node {
			return model.NewCyclicDependencyError([]string{node.ID, node.ID})
		}
		node.addEdge(producer)
		node.InputPath = filepath.Join(node.BuildDir, cleaned)
		return nil
	}

	path := cleaned
	if !filepath.IsAbs(path) {
		path = filepath.Join(node.ScopeDir, cleaned)
	}
	if !fsutil.FileExists(path) {
		return model.NewUnresolvedReferenceError(node.ID, gen.Input)
	}
	node.InputPath = path
	return nil
}

// linkTarget resolves a target's sources, includes, links and explicit deps.
func linkTarget(p *model.Project, g *Graph, node *Node, outputs outputIndex) error {
	t := node.Target

	for _, src := range t.Sources {
		cleaned := filepath.Clean(src)
		if producer, ok := outputs[node.Scope][cleaned]; ok {
			node.addEdge(producer)
			node.Sources = append(node.Sources, filepath.Join(node.BuildDir, cleaned))
			continue
		}
		path := cleaned
		if !filepath.IsAbs(path) {
			path = filepath.Join(node.ScopeDir, cleaned)
		}
		if !fsutil.FileExists(path) {
			return model.NewUnresolvedReferenceError(node.ID, src)
		}
		node.Sources = append(node.Sources, path)
	}

	for _, inc := range t.Includes {
		if filepath.IsAbs(inc) {
			node.Includes = append(node.Includes, inc)
			continue
		}
		node.Includes = append(node.Includes, filepath.Join(node.ScopeDir, inc))
	}

	if err := linkLibraries(p, g, node); err != nil {
		return err
	}

	for _, depName := range t.DependsOn {
		if err := linkExplicitDep(p, g, node, depName); err != nil {
			return err
		}
	}
	return nil
}

// linkLibraries wires link dependencies. Library targets only gain edges;
// executables additionally collect the link line: direct library artifacts
// in declared order, then the transitive closure, since static archives do
// not carry their own dependencies into the final link.
func linkLibraries(p *model.Project, g *Graph, node *Node) error {
	queue := make([]model.LinkDep, 0, len(node.Target.Links))
	for _, link := range node.Target.Links {
		switch link.Kind {
		case model.LinkSystem:
			node.SystemLinks = appendSystemLink(node.SystemLinks, link)
		case model.LinkTarget:
			queue = append(queue, link)
		}
	}

	seen := make(map[string]bool)
	for len(queue) > 0 {
		link := queue[0]
		queue = queue[1:]
		if seen[link.TargetID] {
			continue
		}
		seen[link.TargetID] = true

		lib, ok := p.TargetByID(link.TargetID)
		if !ok || lib.Kind != model.KindLibrary {
			return model.NewUnresolvedReferenceError(node.ID, link.TargetID)
		}
		producer, ok := g.Nodes[link.TargetID]
		if !ok {
			return model.NewUnresolvedReferenceError(node.ID, link.TargetID)
		}
		node.addEdge(producer)

		if node.Type != ExecutableNode {
			continue
		}
		artifact := link.Path
		if artifact == "" {
			artifact = lib.OutputPath
		}
		node.LinkArtifacts = append(node.LinkArtifacts, artifact)
		for _, transitive := range lib.Links {
			switch transitive.Kind {
			case model.LinkTarget:
				queue = append(queue, transitive)
			case model.LinkSystem:
				node.SystemLinks = appendSystemLink(node.SystemLinks, transitive)
			}
		}
	}
	return nil
}

// linkExplicitDep wires a depends_on entry, which names a target or
// generator in the same scope.
func linkExplicitDep(p *model.Project, g *Graph, node *Node, name string) error {
	if t, ok := p.Target(node.Scope, name); ok {
		node.addEdge(g.Nodes[t.ID()])
		return nil
	}
	if gen, ok := p.Generator(node.Scope, name); ok {
		node.addEdge(g.Nodes[gen.ID()])
		return nil
	}
	return model.NewUnresolvedReferenceError(node.ID, name)
}

// appendSystemLink appends a system library once, preserving first-seen
// order.
func appendSystemLink(links []model.LinkDep, link model.LinkDep) []model.LinkDep {
	for _, existing := range links {
		if existing.Name == link.Name && existing.Path == link.Path {
			return links
		}
	}
	return append(links, link)
}
