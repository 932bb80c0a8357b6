// Package hcl is the syntax layer: it discovers a project directory's *.hcl
// files and decodes them into schema structs. Reference resolution happens
// later, against the fully merged scope.
package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/masonbuild/mason/internal/ctxlog"
	"github.com/masonbuild/mason/internal/fsutil"
	"github.com/masonbuild/mason/internal/schema"
)

// Loader parses project directories into merged schema files.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a new project file loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// LoadDir parses every .hcl file directly inside dir (non-recursive;
// subprojects load their own directories) and merges the declarations into a
// single schema.File. Exactly one project block must appear across the
// directory's files.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*schema.File, error) {
	logger := ctxlog.FromContext(ctx)

	paths, err := fsutil.ProjectFiles(dir, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("discovering project files in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .hcl project files found in %s", dir)
	}
	logger.Debug("Discovered project files.", "dir", dir, "count", len(paths))

	merged := &schema.File{}
	projectFile := ""

	for _, path := range paths {
		hclFile, diags := l.parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %w", path, diags)
		}

		var file schema.File
		diags = gohcl.DecodeBody(hclFile.Body, nil, &file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode %s: %w", path, diags)
		}

		if file.Project != nil {
			if merged.Project != nil {
				return nil, fmt.Errorf("multiple project blocks: %s and %s both declare one", projectFile, path)
			}
			merged.Project = file.Project
			projectFile = path
		}
		merged.Generators = append(merged.Generators, file.Generators...)
		merged.Executables = append(merged.Executables, file.Executables...)
		merged.Libraries = append(merged.Libraries, file.Libraries...)
		merged.Tests = append(merged.Tests, file.Tests...)
		merged.Subprojects = append(merged.Subprojects, file.Subprojects...)
		merged.Dependencies = append(merged.Dependencies, file.Dependencies...)
		merged.Publishes = append(merged.Publishes, file.Publishes...)
	}

	if merged.Project == nil {
		return nil, fmt.Errorf("no project block found in %s", dir)
	}

	logger.Debug("Project directory loaded.",
		"project", merged.Project.Name,
		"generators", len(merged.Generators),
		"executables", len(merged.Executables),
		"libraries", len(merged.Libraries),
		"tests", len(merged.Tests),
		"subprojects", len(merged.Subprojects),
	)
	return merged, nil
}
