package model

import "fmt"

// TargetKind distinguishes the buildable target flavors.
type TargetKind string

const (
	// KindExecutable targets compile their sources and link a binary.
	KindExecutable TargetKind = "executable"
	// KindLibrary targets compile their sources and archive a static library.
	KindLibrary TargetKind = "library"
)

// LinkKind distinguishes how a link dependency is satisfied.
type LinkKind string

const (
	// LinkTarget links against a library target built by this project.
	LinkTarget LinkKind = "target"
	// LinkSystem links against a prebuilt system library by name.
	LinkSystem LinkKind = "system"
)

// LinkDep is a single entry in a target's link set.
type LinkDep struct {
	Kind LinkKind

	// TargetID names the producing library node for LinkTarget entries.
	TargetID string

	// Name is the linker-facing library name for LinkSystem entries.
	Name string

	// Path is the artifact path when one is known: the produced archive for
	// LinkTarget entries, or an explicit file for probed system libraries.
	Path string
}

// Target is the format-agnostic representation of an `executable` or
// `library` block. Sources and includes are kept as declared; the graph
// builder resolves generated references and verifies plain files exist.
type Target struct {
	Name  string
	Kind  TargetKind
	Scope string

	Sources      []string
	Includes     []string
	Links        []LinkDep
	CompileFlags []string
	LinkFlags    []string

	// DependsOn lists explicit target names in the same scope that must
	// complete first, independent of any data flow between them.
	DependsOn []string

	// OutputPath is the artifact location under the scope's build
	// directory, filled in during resolution.
	OutputPath string
}

// ID returns the target's unique node identifier.
func (t *Target) ID() string {
	return EntityID(string(t.Kind), t.Scope, t.Name)
}

// EntityID builds the canonical identifier for a named entity. Root-scope
// entities are "kind.name"; subproject entities are "kind.scope/name".
func EntityID(kind, scope, name string) string {
	if scope == "" {
		return fmt.Sprintf("%s.%s", kind, name)
	}
	return fmt.Sprintf("%s.%s/%s", kind, scope, name)
}
