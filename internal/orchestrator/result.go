package orchestrator

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Report statuses for nodes and tests.
const (
	statusDone    = "done"
	statusFailed  = "failed"
	statusSkipped = "skipped"
	statusPassed  = "passed"
)

// NodeOutcome is the final state of one graph node.
type NodeOutcome struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	Status     string `yaml:"status"`
	DurationMS int64  `yaml:"duration_ms"`
	Error      string `yaml:"error,omitempty"`
}

// TestOutcome is the result of one test case.
type TestOutcome struct {
	ID         string `yaml:"id"`
	Target     string `yaml:"target"`
	Status     string `yaml:"status"`
	ExitCode   int    `yaml:"exit_code"`
	DurationMS int64  `yaml:"duration_ms"`
	Output     string `yaml:"output,omitempty"`
}

// Summary are the run's aggregate counts.
type Summary struct {
	Succeeded    int `yaml:"succeeded"`
	Failed       int `yaml:"failed"`
	Skipped      int `yaml:"skipped"`
	TestsPassed  int `yaml:"tests_passed"`
	TestsFailed  int `yaml:"tests_failed"`
	TestsSkipped int `yaml:"tests_skipped"`
}

// BuildResult summarizes one orchestrated run. It serializes to YAML for
// the report file.
type BuildResult struct {
	RunID     string        `yaml:"run_id"`
	Toolchain string        `yaml:"toolchain"`
	StartedAt time.Time     `yaml:"started_at"`
	Elapsed   string        `yaml:"elapsed"`
	Nodes     []NodeOutcome `yaml:"nodes"`
	Tests     []TestOutcome `yaml:"tests,omitempty"`
	Counts    Summary       `yaml:"summary"`
}

func newBuildResult(toolchainName string) *BuildResult {
	return &BuildResult{
		RunID:     uuid.NewString(),
		Toolchain: toolchainName,
		StartedAt: time.Now().UTC(),
	}
}

// finalize fills the aggregate counts once all outcomes are recorded.
func (r *BuildResult) finalize(elapsed time.Duration) {
	r.Elapsed = elapsed.Round(time.Millisecond).String()
	for _, node := range r.Nodes {
		switch node.Status {
		case statusDone:
			r.Counts.Succeeded++
		case statusFailed:
			r.Counts.Failed++
		case statusSkipped:
			r.Counts.Skipped++
		}
	}
	for _, test := range r.Tests {
		switch test.Status {
		case statusPassed:
			r.Counts.TestsPassed++
		case statusFailed:
			r.Counts.TestsFailed++
		case statusSkipped:
			r.Counts.TestsSkipped++
		}
	}
}

// OK reports whether every node built and every test passed.
func (r *BuildResult) OK() bool {
	return r.Counts.Failed == 0 && r.Counts.Skipped == 0 && r.Counts.TestsFailed == 0
}

// WriteYAML writes the serialized result to path, creating parent
// directories as needed.
func (r *BuildResult) WriteYAML(path string) error {
	buf, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf, 0o644)
}
