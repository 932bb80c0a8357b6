package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/masonbuild/mason/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("mason", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
mason - a build-graph driven builder for compiled projects.

Usage:
  mason [options] [PROJECT_DIR]

Arguments:
  PROJECT_DIR
    Directory containing *.hcl project files. Defaults to the current
    directory.

Options:
`)
		flagSet.PrintDefaults()
	}

	projectFlag := flagSet.String("project", "", "Path to the project directory.")
	pFlag := flagSet.String("p", "", "Path to the project directory (shorthand).")
	buildDirFlag := flagSet.String("build-dir", "", "Artifact output directory. Defaults to PROJECT_DIR/build.")
	toolchainFlag := flagSet.String("toolchain", "", "Path to a YAML toolchain description. Defaults to the host g++/ar toolchain.")
	reportFlag := flagSet.String("report", "", "Write a YAML build report to this path.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 8, "Number of concurrent workers for the build.")
	keepGoingFlag := flagSet.Bool("keep-going", false, "Keep building unaffected targets after a failure.")
	skipTestsFlag := flagSet.Bool("skip-tests", false, "Build only, do not run declared tests.")
	watchFlag := flagSet.Bool("watch", false, "Rebuild whenever project files change.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *projectFlag != "" {
		path = *projectFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		path = "."
	}
	slog.Debug("Project directory determined.", "path", path)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ProjectDir:    path,
		BuildDir:      *buildDirFlag,
		ToolchainFile: *toolchainFlag,
		ReportPath:    *reportFlag,
		LogFormat:     logFormat,
		LogLevel:      logLevel,
		WorkerCount:   *workersFlag,
		KeepGoing:     *keepGoingFlag,
		SkipTests:     *skipTestsFlag,
		Watch:         *watchFlag,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
