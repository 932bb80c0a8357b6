// Package testutil provides the integration test harness: a temp project
// tree, a fake shell toolchain, and a captured log stream around app.Run.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/masonbuild/mason/internal/app"
	"github.com/masonbuild/mason/internal/orchestrator"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput  string
	Err        error
	ProjectDir string
	BuildDir   string
	ReportPath string
}

// RunBuild runs a full build of the given project files with a default
// background context. Keys in files are paths relative to the project
// directory; subdirectories are created as needed.
func RunBuild(t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()
	return RunBuildWithConfig(context.Background(), t, files, nil)
}

// RunBuildWithConfig is RunBuild with a caller-provided context and an
// optional hook to adjust the configuration before the run.
func RunBuildWithConfig(ctx context.Context, t *testing.T, files map[string]string, adjust func(*app.Config)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project")
	buildDir := filepath.Join(tmpDir, "build")
	reportPath := filepath.Join(tmpDir, "report.yaml")
	require.NoError(t, os.Mkdir(projectDir, 0o755))

	for name, content := range files {
		filePath := filepath.Join(projectDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		// Shell scripts double as generator programs and need the exec bit.
		mode := os.FileMode(0o644)
		if strings.HasSuffix(name, ".sh") {
			mode = 0o755
		}
		require.NoError(t, os.WriteFile(filePath, []byte(content), mode))
	}

	cfg := app.Config{
		ProjectDir:    projectDir,
		BuildDir:      buildDir,
		ToolchainFile: WriteFakeToolchain(t, tmpDir),
		ReportPath:    reportPath,
		LogLevel:      "debug",
		LogFormat:     "text",
		WorkerCount:   4,
	}
	if adjust != nil {
		adjust(&cfg)
	}
	config, err := app.NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	runErr := app.New(logBuffer, config).Run(ctx)

	if os.Getenv("MASON_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput:  logBuffer.String(),
		Err:        runErr,
		ProjectDir: config.ProjectDir,
		BuildDir:   config.BuildDir,
		ReportPath: config.ReportPath,
	}
}

// WriteFakeToolchain writes shell stand-ins for the compile, archive and
// link stages plus a toolchain spec wired to them, and returns the spec
// path. The compiler copies its source to the object, the archiver
// concatenates objects, and the linker emits a runnable script that exits
// with its first argument and lists every linked input in trailing comment
// lines. Object and archive files therefore carry their source text, which
// lets tests assert on artifact contents instead of mocking the stages.
func WriteFakeToolchain(t *testing.T, dir string) string {
	t.Helper()

	binDir := filepath.Join(dir, "toolchain")
	require.NoError(t, os.MkdirAll(binDir, 0o755))

	writeScript := func(name, body string) string {
		path := filepath.Join(binDir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
		return path
	}

	cc := writeScript("cc.sh", "#!/bin/sh\ncp \"$1\" \"$2\"\n")
	ar := writeScript("ar.sh", "#!/bin/sh\nout=\"$1\"; shift\ncat \"$@\" > \"$out\"\n")
	ld := writeScript("ld.sh", `#!/bin/sh
out="$1"; shift
{
  printf '#!/bin/sh\nexit "${1:-0}"\n'
  for f in "$@"; do printf '# %s\n' "$f"; done
} > "$out"
chmod +x "$out"
`)

	spec := fmt.Sprintf(`name: fake-sh
compile:
  - %s
  - "@SOURCE@"
  - "@OBJECT@"
archive:
  - %s
  - "@OUTPUT@"
  - "@OBJECTS@"
link:
  - %s
  - "@OUTPUT@"
  - "@OBJECTS@"
  - "@ARCHIVES@"
  - "@LIBS@"
`, cc, ar, ld)

	specPath := filepath.Join(binDir, "toolchain.yaml")
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o644))
	return specPath
}

// ReadReport parses the YAML build report written by a harness run.
func ReadReport(t *testing.T, path string) *orchestrator.BuildResult {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	var result orchestrator.BuildResult
	require.NoError(t, yaml.Unmarshal(buf, &result))
	return &result
}
