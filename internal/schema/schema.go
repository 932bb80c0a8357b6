package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Project Declaration Structures ---

// ProjectBlock represents the `project` block naming the scope. Exactly one
// is allowed per project directory.
type ProjectBlock struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version,optional"`
}

// GeneratorBlock represents a `generator` block: an external program that
// materializes the declared outputs from a single input file.
type GeneratorBlock struct {
	Name    string            `hcl:"name,label"`
	Program string            `hcl:"program"`
	Input   string            `hcl:"input"`
	Outputs []string          `hcl:"outputs"`
	Args    []string          `hcl:"args,optional"`
	Env     map[string]string `hcl:"env,optional"`
}

// TargetBlock represents an `executable` or `library` block. Sources,
// includes and links are kept as raw expressions so references like
// generator.<name>.outputs or subproject.<name>.<var> can be resolved against
// the full scope after every file has been decoded.
type TargetBlock struct {
	Name         string         `hcl:"name,label"`
	Sources      hcl.Expression `hcl:"sources"`
	Includes     hcl.Expression `hcl:"includes,optional"`
	Links        hcl.Expression `hcl:"links,optional"`
	CompileFlags []string       `hcl:"compile_flags,optional"`
	LinkFlags    []string       `hcl:"link_flags,optional"`
	DependsOn    []string       `hcl:"depends_on,optional"`
}

// TestBlock represents a `test` block running one built executable.
type TestBlock struct {
	Name   string            `hcl:"name,label"`
	Target hcl.Expression    `hcl:"target"`
	Args   []string          `hcl:"args,optional"`
	Env    map[string]string `hcl:"env,optional"`
}

// SubprojectBlock represents a `subproject` block. Path defaults to
// subprojects/<name> under the declaring project directory; a nil Required
// defaults to true.
type SubprojectBlock struct {
	Name     string `hcl:"name,label"`
	Path     string `hcl:"path,optional"`
	Required *bool  `hcl:"required,optional"`
}

// DependencyBlock represents a `dependency` block: a prebuilt external
// library. Link defaults to the block name; Path is an optional probe file
// deciding presence; a nil Required defaults to true.
type DependencyBlock struct {
	Name     string `hcl:"name,label"`
	Link     string `hcl:"link,optional"`
	Path     string `hcl:"path,optional"`
	Required *bool  `hcl:"required,optional"`
}

// PublishBlock represents a `publish` block. Its attributes are the
// variables a subproject exposes to its parent; names and values are free
// form here and validated during resolution.
type PublishBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// --- File Structure ---

// File represents the decoded content of one project file. A project
// directory may split its declarations across several files; the loader
// merges them into a single File per scope.
type File struct {
	Project      *ProjectBlock      `hcl:"project,block"`
	Generators   []*GeneratorBlock  `hcl:"generator,block"`
	Executables  []*TargetBlock     `hcl:"executable,block"`
	Libraries    []*TargetBlock     `hcl:"library,block"`
	Tests        []*TestBlock       `hcl:"test,block"`
	Subprojects  []*SubprojectBlock `hcl:"subproject,block"`
	Dependencies []*DependencyBlock `hcl:"dependency,block"`
	Publishes    []*PublishBlock    `hcl:"publish,block"`
}
