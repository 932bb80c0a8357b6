// Package toolchain abstracts the compiler, archiver and linker a build
// invokes. Tools are opaque commands: the build hands them resolved paths
// and flags, then judges success by exit status and the artifact appearing
// on disk.
package toolchain

import "context"

// CompileRequest describes one source-to-object compilation.
type CompileRequest struct {
	// Label attributes failures, typically the node ID being built.
	Label    string
	Source   string
	Object   string
	Includes []string
	Flags    []string
}

// ArchiveRequest bundles compiled objects into a static library.
type ArchiveRequest struct {
	Label   string
	Objects []string
	Output  string
}

// SystemLib is a prebuilt library on the link line. Path wins over Name
// when both are set.
type SystemLib struct {
	Name string
	Path string
}

// LinkRequest links objects and libraries into an executable. Archives are
// ordered direct dependencies first, transitive closure after.
type LinkRequest struct {
	Label      string
	Objects    []string
	Archives   []string
	SystemLibs []SystemLib
	Flags      []string
	Output     string
}

// Toolchain runs the three build stages.
type Toolchain interface {
	Name() string
	Compile(ctx context.Context, req CompileRequest) error
	Archive(ctx context.Context, req ArchiveRequest) error
	Link(ctx context.Context, req LinkRequest) error
}
