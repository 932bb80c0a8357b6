package toolchain

import (
	"context"
	"os/exec"
	"sort"
	"strings"

	"github.com/masonbuild/mason/internal/fsutil"
	"github.com/masonbuild/mason/internal/model"
)

// Scalar and list placeholders recognized in command templates. An argument
// equal to a list placeholder splices the list's elements; an argument
// containing one is repeated per element, substituted each time.
const (
	PlaceholderSource   = "@SOURCE@"
	PlaceholderObject   = "@OBJECT@"
	PlaceholderOutput   = "@OUTPUT@"
	PlaceholderIncludes = "@INCLUDES@"
	PlaceholderFlags    = "@FLAGS@"
	PlaceholderObjects  = "@OBJECTS@"
	PlaceholderArchives = "@ARCHIVES@"
	PlaceholderLibs     = "@LIBS@"
)

// Spec declares the command line for each stage as an argv template.
type Spec struct {
	Name     string   `yaml:"name"`
	Compiler []string `yaml:"compile"`
	Archiver []string `yaml:"archive"`
	Linker   []string `yaml:"link"`
}

// DefaultSpec is the GNU toolchain used when no toolchain file is given.
func DefaultSpec() Spec {
	return Spec{
		Name:     "g++",
		Compiler: []string{"g++", "-c", PlaceholderSource, "-I" + PlaceholderIncludes, PlaceholderFlags, "-o", PlaceholderObject},
		Archiver: []string{"ar", "rcs", PlaceholderOutput, PlaceholderObjects},
		Linker:   []string{"g++", PlaceholderObjects, PlaceholderArchives, PlaceholderLibs, PlaceholderFlags, "-o", PlaceholderOutput},
	}
}

// CommandToolchain renders a Spec's templates and shells out.
type CommandToolchain struct {
	spec Spec
}

// New wraps a spec. Callers validate specs loaded from files via Load.
func New(spec Spec) *CommandToolchain {
	return &CommandToolchain{spec: spec}
}

// NewDefault returns the default GNU toolchain.
func NewDefault() *CommandToolchain {
	return New(DefaultSpec())
}

// Name returns the toolchain's display name.
func (t *CommandToolchain) Name() string {
	return t.spec.Name
}

// Compile compiles one source file into an object file.
func (t *CommandToolchain) Compile(ctx context.Context, req CompileRequest) error {
	argv := expand(t.spec.Compiler,
		map[string]string{
			PlaceholderSource: req.Source,
			PlaceholderObject: req.Object,
		},
		map[string][]string{
			PlaceholderIncludes: req.Includes,
			PlaceholderFlags:    req.Flags,
		})
	return t.run(ctx, req.Label, "compile", req.Object, argv)
}

// Archive bundles objects into a static library.
func (t *CommandToolchain) Archive(ctx context.Context, req ArchiveRequest) error {
	argv := expand(t.spec.Archiver,
		map[string]string{
			PlaceholderOutput: req.Output,
		},
		map[string][]string{
			PlaceholderObjects: req.Objects,
		})
	return t.run(ctx, req.Label, "archive", req.Output, argv)
}

// Link links objects and libraries into an executable.
func (t *CommandToolchain) Link(ctx context.Context, req LinkRequest) error {
	argv := expand(t.spec.Linker,
		map[string]string{
			PlaceholderOutput: req.Output,
		},
		map[string][]string{
			PlaceholderObjects:  req.Objects,
			PlaceholderArchives: req.Archives,
			PlaceholderLibs:     renderSystemLibs(req.SystemLibs),
			PlaceholderFlags:    req.Flags,
		})
	return t.run(ctx, req.Label, "link", req.Output, argv)
}

// run executes one rendered command and verifies the expected artifact.
func (t *CommandToolchain) run(ctx context.Context, label, stage, artifact string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return model.NewToolchainFailureError(label, stage, strings.TrimSpace(string(out)), err)
	}
	if artifact != "" && !fsutil.FileExists(artifact) {
		return model.NewToolchainFailureError(label, stage, strings.TrimSpace(string(out)),
			&missingArtifactError{artifact: artifact})
	}
	return nil
}

type missingArtifactError struct {
	artifact string
}

func (e *missingArtifactError) Error() string {
	return "tool exited successfully but produced no " + e.artifact
}

// renderSystemLibs turns system links into linker arguments: a probed path
// verbatim, otherwise the conventional -l name.
func renderSystemLibs(libs []SystemLib) []string {
	args := make([]string, 0, len(libs))
	for _, lib := range libs {
		if lib.Path != "" {
			args = append(args, lib.Path)
			continue
		}
		args = append(args, "-l"+lib.Name)
	}
	return args
}

// expand renders an argv template against scalar and list placeholders.
func expand(template []string, scalars map[string]string, lists map[string][]string) []string {
	placeholders := make([]string, 0, len(lists))
	for ph := range lists {
		placeholders = append(placeholders, ph)
	}
	sort.Strings(placeholders)

	argv := make([]string, 0, len(template))
	for _, arg := range template {
		if values, ok := lists[arg]; ok {
			argv = append(argv, values...)
			continue
		}
		repeated := false
		for _, ph := range placeholders {
			if !strings.Contains(arg, ph) {
				continue
			}
			for _, v := range lists[ph] {
				argv = append(argv, strings.ReplaceAll(arg, ph, v))
			}
			repeated = true
			break
		}
		if repeated {
			continue
		}
		for ph, v := range scalars {
			arg = strings.ReplaceAll(arg, ph, v)
		}
		argv = append(argv, arg)
	}
	return argv
}
