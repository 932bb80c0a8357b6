// Package resolve turns decoded project files into a populated model.Project.
// It resolves subprojects recursively in isolated scopes, validates published
// variables at load time, and evaluates target expressions against the scope's
// reference surface (generator.*, library.*, executable.*, dependency.*,
// subproject.*).
package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/fsutil"
	"github.com/masonbuild/mason/internal/model"
	"github.com/masonbuild/mason/internal/schema"
)

// Loader reads one project directory into a merged schema file. The concrete
// implementation lives in the hcl package; the indirection keeps this package
// clear of the syntax layer.
type Loader interface {
	LoadDir(ctx context.Context, dir string) (*schema.File, error)
}

// Resolver loads project directories into a single flattened model.Project.
type Resolver struct {
	loader Loader
}

// NewResolver creates a resolver reading project files through loader.
func NewResolver(loader Loader) *Resolver {
	return &Resolver{loader: loader}
}

// Resolve loads the project at dir and every subproject it declares,
// returning the fully populated project scope. Builds are out-of-source:
// buildDir must not be the project directory itself.
func (r *Resolver) Resolve(ctx context.Context, dir, buildDir string) (*model.Project, error) {
	logger := ctxlog.FromContext(ctx)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory: %w", err)
	}
	absBuild, err := filepath.Abs(buildDir)
	if err != nil {
		return nil, fmt.Errorf("resolving build directory: %w", err)
	}
	if absDir == absBuild {
		return nil, fmt.Errorf("build directory %s must differ from the project directory", absBuild)
	}

	file, err := r.loader.LoadDir(ctx, absDir)
	if err != nil {
		return nil, err
	}

	p := model.NewProject(file.Project.Name, absDir, absBuild)
	if err := r.populateScope(ctx, p, file, "", absDir, absBuild, nil); err != nil {
		return nil, err
	}

	logger.Debug("Project resolved.",
		"project", p.Name,
		"targets", len(p.Targets()),
		"generators", len(p.Generators()),
		"tests", len(p.Tests()),
		"subprojects", len(p.Subprojects()),
	)
	return p, nil
}

// populateScope registers one scope's declarations into the shared project,
// recursing into subprojects before the scope's own targets are filled so
// their published variables are available to the scope's expressions.
func (r *Resolver) populateScope(ctx context.Context, p *model.Project, file *schema.File, scope, dir, buildDir string, sub *model.Subproject) error {
	logger := ctxlog.FromContext(ctx)

	for _, blk := range file.Generators {
		gen := &model.GeneratorStep{
			Name:    blk.Name,
			Scope:   scope,
			Program: blk.Program,
			Input:   blk.Input,
			Outputs: blk.Outputs,
			Args:    blk.Args,
			Env:     blk.Env,
		}
		if err := p.AddGenerator(gen); err != nil {
			return err
		}
	}

	for _, blk := range file.Dependencies {
		dep := &model.ExternalDep{
			Name:     blk.Name,
			Scope:    scope,
			Link:     blk.Link,
			Probe:    blk.Path,
			Required: blk.Required == nil || *blk.Required,
		}
		if dep.Link == "" {
			dep.Link = dep.Name
		}
		if dep.Probe != "" && !fsutil.FileExists(dep.Probe) {
			if dep.Required {
				return model.NewUnresolvedReferenceError(dep.ID(), dep.Probe)
			}
			dep.Absent = true
			logger.Debug("Optional dependency not found.", "dependency", dep.ID(), "probe", dep.Probe)
		}
		if err := p.AddExternalDep(dep); err != nil {
			return err
		}
	}

	for _, blk := range file.Subprojects {
		if err := r.resolveSubproject(ctx, p, blk, scope, dir, buildDir); err != nil {
			return err
		}
	}

	// Register target skeletons first so expressions may reference any
	// target in the scope regardless of declaration order.
	type targetFill struct {
		target *model.Target
		block  *schema.TargetBlock
	}
	var fills []targetFill

	for _, blk := range file.Libraries {
		t := &model.Target{
			Name:         blk.Name,
			Scope:        scope,
			CompileFlags: blk.CompileFlags,
			LinkFlags:    blk.LinkFlags,
			DependsOn:    blk.DependsOn,
			OutputPath:   filepath.Join(buildDir, "lib"+blk.Name+".a"),
		}
		if err := p.AddLibrary(t); err != nil {
			return err
		}
		fills = append(fills, targetFill{t, blk})
	}
	for _, blk := range file.Executables {
		t := &model.Target{
			Name:         blk.Name,
			Scope:        scope,
			CompileFlags: blk.CompileFlags,
			LinkFlags:    blk.LinkFlags,
			DependsOn:    blk.DependsOn,
			OutputPath:   filepath.Join(buildDir, blk.Name),
		}
		if err := p.AddExecutable(t); err != nil {
			return err
		}
		fills = append(fills, targetFill{t, blk})
	}

	evalCtx := scopeContext(p, scope)

	for _, f := range fills {
		id := f.target.ID()

		if err := validateRefs(p, scope, id, f.block.Sources); err != nil {
			return err
		}
		v, diags := f.block.Sources.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("evaluating sources for %s: %w", id, diags)
		}
		sources, err := flattenSources(id, v)
		if err != nil {
			return err
		}
		f.target.Sources = sources

		if f.block.Includes != nil {
			if err := validateRefs(p, scope, id, f.block.Includes); err != nil {
				return err
			}
			v, diags := f.block.Includes.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("evaluating includes for %s: %w", id, diags)
			}
			includes, err := flattenIncludes(id, v)
			if err != nil {
				return err
			}
			f.target.Includes = includes
		}

		if f.block.Links != nil {
			if err := validateRefs(p, scope, id, f.block.Links); err != nil {
				return err
			}
			v, diags := f.block.Links.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("evaluating links for %s: %w", id, diags)
			}
			links, err := flattenLinks(id, v)
			if err != nil {
				return err
			}
			f.target.Links = links
		}
	}

	for _, blk := range file.Tests {
		id := model.EntityID("test", scope, blk.Name)
		if err := validateRefs(p, scope, id, blk.Target); err != nil {
			return err
		}
		v, diags := blk.Target.Value(evalCtx)
		if diags.HasErrors() {
			return fmt.Errorf("evaluating target for %s: %w", id, diags)
		}
		targetID, err := testTargetID(id, v)
		if err != nil {
			return err
		}
		tc := &model.TestCase{
			Name:     blk.Name,
			Scope:    scope,
			TargetID: targetID,
			Args:     blk.Args,
			Env:      blk.Env,
		}
		if err := p.AddTest(tc); err != nil {
			return err
		}
	}

	return r.publishVariables(ctx, p, file, scope, evalCtx, sub)
}

// resolveSubproject locates, loads and recursively populates one subproject.
// Optional subprojects whose directory is missing register as the absent
// sentinel instead of failing.
func (r *Resolver) resolveSubproject(ctx context.Context, p *model.Project, blk *schema.SubprojectBlock, scope, dir, buildDir string) error {
	logger := ctxlog.FromContext(ctx)

	subDir := blk.Path
	if subDir == "" {
		subDir = filepath.Join(dir, "subprojects", blk.Name)
	} else if !filepath.IsAbs(subDir) {
		subDir = filepath.Join(dir, subDir)
	}
	required := blk.Required == nil || *blk.Required

	if !fsutil.DirExists(subDir) {
		if required {
			return model.NewSubprojectNotFoundError(blk.Name, subDir)
		}
		logger.Warn("Optional subproject not found, continuing without it.", "subproject", blk.Name, "dir", subDir)
		return p.AddSubproject(&model.Subproject{
			Name:       blk.Name,
			DeclaredIn: scope,
			Required:   false,
			Absent:     true,
		})
	}

	subFile, err := r.loader.LoadDir(ctx, subDir)
	if err != nil {
		return fmt.Errorf("loading subproject %q: %w", blk.Name, err)
	}

	s := &model.Subproject{
		Name:       blk.Name,
		DeclaredIn: scope,
		Dir:        subDir,
		BuildDir:   filepath.Join(buildDir, "subprojects", blk.Name),
		Required:   required,
	}
	if err := p.AddSubproject(s); err != nil {
		return err
	}
	logger.Debug("Resolving subproject.", "subproject", blk.Name, "dir", subDir)
	return r.populateScope(ctx, p, subFile, blk.Name, subDir, s.BuildDir, s)
}

// publishVariables validates and records the scope's publish blocks. Each
// published value must resolve to a library handle, an include directory
// list, or a string; every variant is checked here, at load time.
func (r *Resolver) publishVariables(ctx context.Context, p *model.Project, file *schema.File, scope string, evalCtx *hcl.EvalContext, sub *model.Subproject) error {
	logger := ctxlog.FromContext(ctx)

	if len(file.Publishes) == 0 {
		return nil
	}
	if sub == nil {
		logger.Warn("Ignoring publish block outside a subproject.", "project", p.Name)
		return nil
	}

	for _, blk := range file.Publishes {
		attrs, diags := blk.Body.JustAttributes()
		if diags.HasErrors() {
			return fmt.Errorf("reading publish block in subproject %q: %w", sub.Name, diags)
		}

		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			attr := attrs[name]
			publishID := model.EntityID("publish", scope, name)
			if err := validateRefs(p, scope, publishID, attr.Expr); err != nil {
				return err
			}
			v, diags := attr.Expr.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("evaluating published variable %q in subproject %q: %w", name, sub.Name, diags)
			}
			variable, err := publishValue(sub, publishID, v)
			if err != nil {
				return err
			}
			if err := sub.Publish(name, variable); err != nil {
				return err
			}
		}
	}
	return nil
}
