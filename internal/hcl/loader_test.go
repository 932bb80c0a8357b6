package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mason.hcl", `
project "demo" {
  version = "0.1.0"
}

generator "srcgen" {
  program = "./gen.sh"
  input   = "data2.dat"
  outputs = ["source2.h", "source2.cpp"]
  args    = ["@INPUT@", "@OUTDIR@"]
}

executable "prog" {
  sources  = ["main.cpp", "source2.cpp"]
  includes = ["include"]
}

test "check" {
  target = executable.prog
}
`)

	file, err := NewLoader().LoadDir(context.Background(), dir)
	require.NoError(t, err)

	require.NotNil(t, file.Project)
	assert.Equal(t, "demo", file.Project.Name)
	assert.Equal(t, "0.1.0", file.Project.Version)

	require.Len(t, file.Generators, 1)
	gen := file.Generators[0]
	assert.Equal(t, "srcgen", gen.Name)
	assert.Equal(t, "./gen.sh", gen.Program)
	assert.Equal(t, "data2.dat", gen.Input)
	assert.Equal(t, []string{"source2.h", "source2.cpp"}, gen.Outputs)
	assert.Equal(t, []string{"@INPUT@", "@OUTDIR@"}, gen.Args)

	require.Len(t, file.Executables, 1)
	exe := file.Executables[0]
	assert.Equal(t, "prog", exe.Name)
	require.NotNil(t, exe.Sources)
	assert.Nil(t, exe.Links, "absent optional expression stays nil")

	require.Len(t, file.Tests, 1)
	assert.Equal(t, "check", file.Tests[0].Name)
}

func TestLoadDir_MergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mason.hcl", `
project "demo" {}

library "core" {
  sources = ["core.cpp"]
}
`)
	writeFile(t, dir, "tests.hcl", `
executable "prog" {
  sources = ["main.cpp"]
  links   = [library.core]
}

test "check" {
  target = executable.prog
}
`)

	file, err := NewLoader().LoadDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, file.Libraries, 1)
	assert.Len(t, file.Executables, 1)
	assert.Len(t, file.Tests, 1)
}

func TestLoadDir_SubprojectAndDependencyBlocks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mason.hcl", `
project "demo" {}

subproject "sqlite" {
  required = false
}

dependency "zlib" {
  link     = "z"
  path     = "/no/such/libz.a"
  required = false
}

executable "prog" {
  sources = ["main.cpp"]
  links   = [subproject.sqlite.sqlib, dependency.zlib]
}
`)

	file, err := NewLoader().LoadDir(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, file.Subprojects, 1)
	sub := file.Subprojects[0]
	assert.Equal(t, "sqlite", sub.Name)
	require.NotNil(t, sub.Required)
	assert.False(t, *sub.Required)

	require.Len(t, file.Dependencies, 1)
	dep := file.Dependencies[0]
	assert.Equal(t, "zlib", dep.Name)
	assert.Equal(t, "z", dep.Link)
	assert.Equal(t, "/no/such/libz.a", dep.Path)
}

func TestLoadDir_PublishBlock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "mason.hcl", `
project "sqlite" {}

library "sq" {
  sources = ["sq.cpp"]
}

publish {
  sqinc = ["include"]
  sqlib = library.sq
}
`)

	file, err := NewLoader().LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, file.Publishes, 1)

	attrs, diags := file.Publishes[0].Body.JustAttributes()
	require.False(t, diags.HasErrors())
	assert.Len(t, attrs, 2)
	assert.Contains(t, attrs, "sqinc")
	assert.Contains(t, attrs, "sqlib")
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := NewLoader().LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("no project files", func(t *testing.T) {
		_, err := NewLoader().LoadDir(context.Background(), t.TempDir())
		assert.ErrorContains(t, err, "no .hcl project files")
	})

	t.Run("no project block", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "mason.hcl", `
executable "prog" {
  sources = ["main.cpp"]
}
`)
		_, err := NewLoader().LoadDir(context.Background(), dir)
		assert.ErrorContains(t, err, "no project block")
	})

	t.Run("duplicate project blocks", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.hcl", `project "one" {}`)
		writeFile(t, dir, "b.hcl", `project "two" {}`)

		_, err := NewLoader().LoadDir(context.Background(), dir)
		assert.ErrorContains(t, err, "multiple project blocks")
	})

	t.Run("malformed syntax", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "mason.hcl", `project "demo" {`)

		_, err := NewLoader().LoadDir(context.Background(), dir)
		assert.ErrorContains(t, err, "failed to parse")
	})

	t.Run("unknown attribute", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "mason.hcl", `
project "demo" {}

generator "g" {
  program  = "./gen.sh"
  input    = "in"
  outputs  = ["out"]
  commandz = ["typo"]
}
`)
		_, err := NewLoader().LoadDir(context.Background(), dir)
		assert.ErrorContains(t, err, "failed to decode")
	})
}
