package app

import (
	"errors"
	"path/filepath"
)

// Config holds all the configuration an App instance needs to run builds.
type Config struct {
	ProjectDir    string // directory with *.hcl project files
	BuildDir      string // out-of-source artifact tree
	ToolchainFile string // optional YAML toolchain description
	ReportPath    string // optional YAML build report destination

	LogFormat   string
	LogLevel    string
	WorkerCount int
	KeepGoing   bool
	SkipTests   bool
	Watch       bool
}

// NewConfig validates and normalizes a configuration. Both directories come
// out absolute; the build directory defaults to build/ inside the project.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectDir == "" {
		return nil, errors.New("ProjectDir is a required configuration field and cannot be empty")
	}
	abs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}
	cfg.ProjectDir = abs

	if cfg.BuildDir == "" {
		cfg.BuildDir = filepath.Join(cfg.ProjectDir, "build")
	} else if cfg.BuildDir, err = filepath.Abs(cfg.BuildDir); err != nil {
		return nil, err
	}

	// Builds are out-of-source: artifacts never land next to declarations.
	if cfg.BuildDir == cfg.ProjectDir {
		return nil, errors.New("BuildDir must not be the same directory as ProjectDir")
	}
	return &cfg, nil
}
