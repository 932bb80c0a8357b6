package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masonbuild/mason/internal/generator"
	"github.com/masonbuild/mason/internal/graph"
	"github.com/masonbuild/mason/internal/model"
	"github.com/masonbuild/mason/internal/toolchain"
)

// fakeToolchain records stage calls and fabricates artifacts. Linked
// executables become shell scripts so the test phase can run them.
type fakeToolchain struct {
	mu         sync.Mutex
	calls      []string
	failLabels map[string]bool
	linkScript string
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		failLabels: make(map[string]bool),
		linkScript: "#!/bin/sh\nexit 0\n",
	}
}

func (f *fakeToolchain) Name() string { return "fake" }

func (f *fakeToolchain) record(stage, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stage+" "+label)
}

func (f *fakeToolchain) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeToolchain) Compile(ctx context.Context, req toolchain.CompileRequest) error {
	f.record("compile", req.Label)
	if f.failLabels[req.Label] {
		return model.NewToolchainFailureError(req.Label, "compile", "fake compile error", errors.New("exit status 1"))
	}
	return os.WriteFile(req.Object, []byte("obj\n"), 0o644)
}

func (f *fakeToolchain) Archive(ctx context.Context, req toolchain.ArchiveRequest) error {
	f.record("archive", req.Label)
	return os.WriteFile(req.Output, []byte("archive\n"), 0o644)
}

func (f *fakeToolchain) Link(ctx context.Context, req toolchain.LinkRequest) error {
	f.record("link", req.Label)
	return os.WriteFile(req.Output, []byte(f.linkScript), 0o755)
}

func testGeneratorExecutor(t *testing.T) *generator.Executor {
	t.Helper()
	e, err := generator.NewExecutor()
	require.NoError(t, err)
	return e
}

func buildProject(t *testing.T, p *model.Project) *graph.Graph {
	t.Helper()
	g, err := graph.Build(context.Background(), p)
	require.NoError(t, err)
	return g
}

func newTestProject(t *testing.T) *model.Project {
	t.Helper()
	dir := t.TempDir()
	return model.NewProject("demo", dir, filepath.Join(dir, "build"))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func firstIndex(calls []string, prefix string) int {
	for i, call := range calls {
		if strings.HasPrefix(call, prefix) {
			return i
		}
	}
	return -1
}

func lastIndex(calls []string, prefix string) int {
	last := -1
	for i, call := range calls {
		if strings.HasPrefix(call, prefix) {
			last = i
		}
	}
	return last
}

func TestExecuteBuildsAllNodes(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	writeFile(t, p.Dir, "core.cpp", "void core() {}\n")
	writeFile(t, p.Dir, "data.txt", "payload\n")
	require.NoError(t, p.AddGenerator(&model.GeneratorStep{
		Name:    "gen",
		Program: "/bin/sh",
		Input:   "data.txt",
		Outputs: []string{"gen.cpp"},
		Args:    []string{"-c", "mkdir -p @OUTDIR@ && cp @INPUT@ @OUTDIR@/gen.cpp"},
	}))
	require.NoError(t, p.AddLibrary(&model.Target{
		Name:       "core",
		Sources:    []string{"core.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "libcore.a"),
	}))
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp", "gen.cpp"},
		Links:      []model.LinkDep{{Kind: model.LinkTarget, TargetID: "library.core"}},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))

	g := buildProject(t, p)
	tc := newFakeToolchain()
	o := New(g, tc, testGeneratorExecutor(t), Options{Workers: 4})

	result, err := o.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.OK())
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Counts.Succeeded)
	assert.Zero(t, result.Counts.Failed)

	assert.FileExists(t, filepath.Join(p.BuildDir, "gen.cpp"))
	assert.FileExists(t, filepath.Join(p.BuildDir, "libcore.a"))
	assert.FileExists(t, filepath.Join(p.BuildDir, "app"))

	// The executable only starts after both of its producers completed.
	calls := tc.recorded()
	appStart := firstIndex(calls, "compile executable.app")
	require.GreaterOrEqual(t, appStart, 0)
	assert.Less(t, lastIndex(calls, "archive library.core"), appStart)
	assert.Greater(t, firstIndex(calls, "link executable.app"), appStart)
}

func TestExecuteFailFastSkipsDependents(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	writeFile(t, p.Dir, "core.cpp", "void core() {}\n")
	require.NoError(t, p.AddLibrary(&model.Target{
		Name:       "core",
		Sources:    []string{"core.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "libcore.a"),
	}))
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp"},
		Links:      []model.LinkDep{{Kind: model.LinkTarget, TargetID: "library.core"}},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))

	g := buildProject(t, p)
	tc := newFakeToolchain()
	tc.failLabels["library.core"] = true
	o := New(g, tc, testGeneratorExecutor(t), Options{Workers: 2})

	result, err := o.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "library.core")
	assert.True(t, model.IsToolchainFailure(err))

	require.NotNil(t, result)
	assert.Equal(t, 1, result.Counts.Failed)
	assert.Equal(t, 1, result.Counts.Skipped)
	assert.False(t, result.OK())

	// The dependent was never linked.
	assert.Equal(t, -1, firstIndex(tc.recorded(), "link executable.app"))

	var appOutcome *NodeOutcome
	for i := range result.Nodes {
		if result.Nodes[i].ID == "executable.app" {
			appOutcome = &result.Nodes[i]
		}
	}
	require.NotNil(t, appOutcome)
	assert.Equal(t, statusSkipped, appOutcome.Status)
	assert.Contains(t, appOutcome.Error, "library.core")
}

func TestExecuteKeepGoingFinishesUnrelatedSubtrees(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "bad.cpp", "void bad() {}\n")
	writeFile(t, p.Dir, "good.cpp", "void good() {}\n")
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	require.NoError(t, p.AddLibrary(&model.Target{
		Name:       "bad",
		Sources:    []string{"bad.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "libbad.a"),
	}))
	require.NoError(t, p.AddLibrary(&model.Target{
		Name:       "good",
		Sources:    []string{"good.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "libgood.a"),
	}))
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp"},
		Links:      []model.LinkDep{{Kind: model.LinkTarget, TargetID: "library.good"}},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))

	g := buildProject(t, p)
	tc := newFakeToolchain()
	tc.failLabels["library.bad"] = true
	o := New(g, tc, testGeneratorExecutor(t), Options{Workers: 2, KeepGoing: true})

	result, err := o.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "library.bad")

	// The unrelated chain still finished.
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Counts.Succeeded)
	assert.Equal(t, 1, result.Counts.Failed)
	assert.Zero(t, result.Counts.Skipped)
	assert.FileExists(t, filepath.Join(p.BuildDir, "app"))
}

func TestExecuteRunsTests(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))
	require.NoError(t, p.AddTest(&model.TestCase{Name: "smoke", TargetID: "executable.app"}))
	require.NoError(t, p.AddTest(&model.TestCase{Name: "regress", TargetID: "executable.app", Args: []string{"7"}}))

	g := buildProject(t, p)
	tc := newFakeToolchain()
	tc.linkScript = "#!/bin/sh\necho checking\nexit ${1:-0}\n"
	o := New(g, tc, testGeneratorExecutor(t), Options{Workers: 2, Tests: p.Tests()})

	result, err := o.Execute(context.Background())
	require.NoError(t, err) // Test failures never abort the build.
	require.Len(t, result.Tests, 2)

	byID := make(map[string]TestOutcome, len(result.Tests))
	for _, outcome := range result.Tests {
		byID[outcome.ID] = outcome
	}

	smoke := byID["test.smoke"]
	assert.Equal(t, statusPassed, smoke.Status)
	assert.Equal(t, 0, smoke.ExitCode)
	assert.Contains(t, smoke.Output, "checking")

	regress := byID["test.regress"]
	assert.Equal(t, statusFailed, regress.Status)
	assert.Equal(t, 7, regress.ExitCode)

	assert.Equal(t, 1, result.Counts.TestsPassed)
	assert.Equal(t, 1, result.Counts.TestsFailed)
	assert.False(t, result.OK())
}

func TestExecuteSkipsTestsWhenTargetFailed(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))
	require.NoError(t, p.AddTest(&model.TestCase{Name: "smoke", TargetID: "executable.app"}))

	g := buildProject(t, p)
	tc := newFakeToolchain()
	tc.failLabels["executable.app"] = true
	o := New(g, tc, testGeneratorExecutor(t), Options{Tests: p.Tests()})

	result, err := o.Execute(context.Background())
	require.Error(t, err)
	require.Len(t, result.Tests, 1)
	assert.Equal(t, statusSkipped, result.Tests[0].Status)
	assert.Equal(t, "target was not built", result.Tests[0].Output)
	assert.Equal(t, 1, result.Counts.TestsSkipped)
}

func TestExecuteSkipTestsOption(t *testing.T) {
	p := newTestProject(t)
	writeFile(t, p.Dir, "main.cpp", "int main() {}\n")
	require.NoError(t, p.AddExecutable(&model.Target{
		Name:       "app",
		Sources:    []string{"main.cpp"},
		OutputPath: filepath.Join(p.BuildDir, "app"),
	}))
	require.NoError(t, p.AddTest(&model.TestCase{Name: "smoke", TargetID: "executable.app"}))

	g := buildProject(t, p)
	o := New(g, newFakeToolchain(), testGeneratorExecutor(t), Options{SkipTests: true, Tests: p.Tests()})

	result, err := o.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Tests)
}

func TestNodeStatusMapping(t *testing.T) {
	run := func(state graph.State, err error) string {
		n := &graph.Node{}
		n.SetState(state)
		n.Error = err
		return nodeStatus(n)
	}

	assert.Equal(t, "done", run(graph.Done, nil))
	assert.Equal(t, statusFailed, run(graph.Failed, errors.New("compiler exploded")))
	assert.Equal(t, statusSkipped, run(graph.Failed, &skippedError{upstream: "library.core"}))
	assert.Equal(t, statusSkipped, run(graph.Failed, context.Canceled))
}

func TestResultWriteYAML(t *testing.T) {
	result := newBuildResult("fake")
	result.Nodes = []NodeOutcome{{ID: "library.core", Kind: "library", Status: statusDone, DurationMS: 12}}
	result.finalize(0)

	path := filepath.Join(t.TempDir(), "reports", "build.yaml")
	require.NoError(t, result.WriteYAML(path))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(buf)
	assert.Contains(t, content, "run_id: "+result.RunID)
	assert.Contains(t, content, "library.core")
	assert.Contains(t, content, "succeeded: 1")
}
