package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masonbuild/mason/internal/model"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeSpec builds a toolchain from shell scripts: the compiler copies its
// source to the object, the archiver and linker concatenate inputs.
func fakeSpec(t *testing.T) Spec {
	t.Helper()
	dir := t.TempDir()
	cc := writeScript(t, dir, "cc.sh", "#!/bin/sh\ncp \"$1\" \"$2\"\n")
	ar := writeScript(t, dir, "ar.sh", "#!/bin/sh\nout=$1\nshift\ncat \"$@\" > \"$out\"\n")
	return Spec{
		Name:     "fake",
		Compiler: []string{cc, PlaceholderSource, PlaceholderObject, "-I" + PlaceholderIncludes, PlaceholderFlags},
		Archiver: []string{ar, PlaceholderOutput, PlaceholderObjects},
		Linker:   []string{ar, PlaceholderOutput, PlaceholderObjects, PlaceholderArchives, PlaceholderLibs},
	}
}

func TestExpand(t *testing.T) {
	t.Run("exact list placeholder splices", func(t *testing.T) {
		argv := expand([]string{"ar", "rcs", "@OUTPUT@", "@OBJECTS@"},
			map[string]string{"@OUTPUT@": "lib.a"},
			map[string][]string{"@OBJECTS@": {"a.o", "b.o"}})
		assert.Equal(t, []string{"ar", "rcs", "lib.a", "a.o", "b.o"}, argv)
	})

	t.Run("empty list vanishes", func(t *testing.T) {
		argv := expand([]string{"g++", "@FLAGS@", "-o", "out"},
			nil,
			map[string][]string{"@FLAGS@": nil})
		assert.Equal(t, []string{"g++", "-o", "out"}, argv)
	})

	t.Run("embedded list placeholder repeats the argument", func(t *testing.T) {
		argv := expand([]string{"-I@INCLUDES@"},
			nil,
			map[string][]string{"@INCLUDES@": {"/a", "/b"}})
		assert.Equal(t, []string{"-I/a", "-I/b"}, argv)
	})

	t.Run("scalar substitutes inside a larger argument", func(t *testing.T) {
		argv := expand([]string{"--out=@OUTPUT@"},
			map[string]string{"@OUTPUT@": "bin"},
			nil)
		assert.Equal(t, []string{"--out=bin"}, argv)
	})
}

func TestRenderSystemLibs(t *testing.T) {
	args := renderSystemLibs([]SystemLib{
		{Name: "m"},
		{Name: "sq", Path: "/opt/libsq.a"},
	})
	assert.Equal(t, []string{"-lm", "/opt/libsq.a"}, args)
}

func TestDefaultSpec(t *testing.T) {
	spec := DefaultSpec()
	assert.Equal(t, "g++", spec.Name)
	assert.NoError(t, spec.validate())
}

func TestLoadSpec(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "clang.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
compile: [clang++, -c, "@SOURCE@", "-I@INCLUDES@", "@FLAGS@", -o, "@OBJECT@"]
archive: [llvm-ar, rcs, "@OUTPUT@", "@OBJECTS@"]
link: [clang++, "@OBJECTS@", "@ARCHIVES@", "@LIBS@", "@FLAGS@", -o, "@OUTPUT@"]
`), 0o644))

		spec, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "clang++", spec.Name) // Defaults to the compiler.
		assert.Equal(t, "llvm-ar", spec.Archiver[0])
	})

	t.Run("explicit name wins", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "tc.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
name: my-cross
compile: [cc, -c, "@SOURCE@", -o, "@OBJECT@"]
archive: [ar, rcs, "@OUTPUT@", "@OBJECTS@"]
link: [cc, "@OBJECTS@", -o, "@OUTPUT@"]
`), 0o644))

		spec, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "my-cross", spec.Name)
	})

	t.Run("missing placeholder is rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
compile: [cc, -c, "@SOURCE@"]
archive: [ar, rcs, "@OUTPUT@", "@OBJECTS@"]
link: [cc, "@OBJECTS@", -o, "@OUTPUT@"]
`), 0o644))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "never uses @OBJECT@")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mangled.yaml")
		require.NoError(t, os.WriteFile(path, []byte("compile: [unterminated"), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestCommandToolchainStages(t *testing.T) {
	tc := New(fakeSpec(t))
	work := t.TempDir()
	ctx := context.Background()

	src := filepath.Join(work, "main.cpp")
	require.NoError(t, os.WriteFile(src, []byte("int main() {}\n"), 0o644))

	obj := filepath.Join(work, "main.o")
	require.NoError(t, tc.Compile(ctx, CompileRequest{
		Label:    "executable.app",
		Source:   src,
		Object:   obj,
		Includes: []string{filepath.Join(work, "include")},
		Flags:    []string{"-O2"},
	}))
	content, err := os.ReadFile(obj)
	require.NoError(t, err)
	assert.Equal(t, "int main() {}\n", string(content))

	lib := filepath.Join(work, "libcore.a")
	require.NoError(t, tc.Archive(ctx, ArchiveRequest{
		Label:   "library.core",
		Objects: []string{obj},
		Output:  lib,
	}))
	assert.FileExists(t, lib)

	prebuilt := filepath.Join(work, "libsys.a")
	require.NoError(t, os.WriteFile(prebuilt, []byte("sys"), 0o644))
	bin := filepath.Join(work, "app")
	require.NoError(t, tc.Link(ctx, LinkRequest{
		Label:      "executable.app",
		Objects:    []string{obj},
		Archives:   []string{lib},
		SystemLibs: []SystemLib{{Name: "sys", Path: prebuilt}},
		Output:     bin,
	}))
	linked, err := os.ReadFile(bin)
	require.NoError(t, err)
	assert.Equal(t, "int main() {}\nint main() {}\nsys", string(linked))
}

func TestToolchainFailures(t *testing.T) {
	dir := t.TempDir()
	failing := writeScript(t, dir, "fail.sh", "#!/bin/sh\necho broken tool >&2\nexit 1\n")
	silent := writeScript(t, dir, "silent.sh", "#!/bin/sh\nexit 0\n")

	t.Run("non-zero exit becomes a typed failure", func(t *testing.T) {
		tc := New(Spec{
			Name:     "fail",
			Compiler: []string{failing, PlaceholderSource, PlaceholderObject},
		})
		err := tc.Compile(context.Background(), CompileRequest{
			Label:  "library.core",
			Source: "a.cpp",
			Object: "a.o",
		})
		require.Error(t, err)
		assert.True(t, model.IsToolchainFailure(err))

		var failure *model.ToolchainFailureError
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "library.core", failure.TargetID)
		assert.Equal(t, "compile", failure.Stage)
		assert.Contains(t, failure.Output, "broken tool")
	})

	t.Run("missing artifact after success fails", func(t *testing.T) {
		tc := New(Spec{
			Name:     "silent",
			Archiver: []string{silent, PlaceholderOutput, PlaceholderObjects},
		})
		err := tc.Archive(context.Background(), ArchiveRequest{
			Label:   "library.core",
			Objects: []string{"a.o"},
			Output:  filepath.Join(dir, "lib.a"),
		})
		require.Error(t, err)
		assert.True(t, model.IsToolchainFailure(err))
		assert.ErrorContains(t, err, "produced no")
	})
}
