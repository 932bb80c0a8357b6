package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/masonbuild/mason/internal/generator"
	"github.com/masonbuild/mason/internal/graph"
	"github.com/masonbuild/mason/internal/model"
	"github.com/masonbuild/mason/internal/toolchain"
)

// compileExtensions are the source kinds handed to the compiler. Anything
// else in a sources list (headers, data files) contributes dependency edges
// only.
var compileExtensions = map[string]bool{
	".c":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
}

func (o *Orchestrator) runNode(ctx context.Context, node *graph.Node) error {
	switch node.Type {
	case graph.GeneratorNode:
		return o.runGenerator(ctx, node)
	case graph.LibraryNode:
		return o.buildTarget(ctx, node, false)
	case graph.ExecutableNode:
		return o.buildTarget(ctx, node, true)
	default:
		return fmt.Errorf("unknown node type %v for %s", node.Type, node.ID)
	}
}

func (o *Orchestrator) runGenerator(ctx context.Context, node *graph.Node) error {
	return o.gens.Run(ctx, generator.Invocation{
		Step:      node.Generator,
		ScopeDir:  node.ScopeDir,
		BuildDir:  node.BuildDir,
		InputPath: node.InputPath,
		Outputs:   node.OutputPaths,
	})
}

// buildTarget compiles every compilable source to an object, then archives
// a library or links an executable.
func (o *Orchestrator) buildTarget(ctx context.Context, node *graph.Node, link bool) error {
	t := node.Target
	sources := compilableSources(node)
	if len(sources) == 0 {
		return model.NewInvalidDeclarationError(node.ID, "no compilable sources")
	}

	if err := os.MkdirAll(node.ObjDir, 0o755); err != nil {
		return err
	}
	objects := make([]string, 0, len(sources))
	for _, src := range sources {
		obj := filepath.Join(node.ObjDir, objectName(node, src))
		if err := o.tc.Compile(ctx, toolchain.CompileRequest{
			Label:    node.ID,
			Source:   src,
			Object:   obj,
			Includes: node.Includes,
			Flags:    t.CompileFlags,
		}); err != nil {
			return err
		}
		objects = append(objects, obj)
	}

	if err := os.MkdirAll(filepath.Dir(t.OutputPath), 0o755); err != nil {
		return err
	}
	if !link {
		return o.tc.Archive(ctx, toolchain.ArchiveRequest{
			Label:   node.ID,
			Objects: objects,
			Output:  t.OutputPath,
		})
	}
	return o.tc.Link(ctx, toolchain.LinkRequest{
		Label:      node.ID,
		Objects:    objects,
		Archives:   node.LinkArtifacts,
		SystemLibs: systemLibs(node),
		Flags:      t.LinkFlags,
		Output:     t.OutputPath,
	})
}

func compilableSources(node *graph.Node) []string {
	var sources []string
	for _, src := range node.Sources {
		if compileExtensions[strings.ToLower(filepath.Ext(src))] {
			sources = append(sources, src)
		}
	}
	return sources
}

// objectName flattens a source's scope-relative path into a unique object
// file name, so same-named sources in different directories cannot collide.
func objectName(node *graph.Node, src string) string {
	rel, err := filepath.Rel(node.ScopeDir, src)
	if err != nil || strings.HasPrefix(rel, "..") {
		if built, berr := filepath.Rel(node.BuildDir, src); berr == nil && !strings.HasPrefix(built, "..") {
			rel = built
		} else {
			rel = filepath.Base(src)
		}
	}
	flat := strings.ReplaceAll(rel, string(filepath.Separator), "_")
	return strings.TrimSuffix(flat, filepath.Ext(flat)) + ".o"
}

func systemLibs(node *graph.Node) []toolchain.SystemLib {
	libs := make([]toolchain.SystemLib, 0, len(node.SystemLinks))
	for _, link := range node.SystemLinks {
		libs = append(libs, toolchain.SystemLib{Name: link.Name, Path: link.Path})
	}
	return libs
}
