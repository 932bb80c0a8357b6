package toolchain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a toolchain spec from a YAML file and validates that every
// stage template carries the placeholders the build substitutes.
func Load(path string) (Spec, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	var spec Spec
	if err := yaml.Unmarshal(buf, &spec); err != nil {
		return Spec{}, fmt.Errorf("parse toolchain file %s: %w", path, err)
	}
	if err := spec.validate(); err != nil {
		return Spec{}, fmt.Errorf("toolchain file %s: %w", path, err)
	}
	if spec.Name == "" {
		spec.Name = spec.Compiler[0]
	}
	return spec, nil
}

func (s Spec) validate() error {
	stages := []struct {
		name     string
		template []string
		required []string
	}{
		{"compile", s.Compiler, []string{PlaceholderSource, PlaceholderObject}},
		{"archive", s.Archiver, []string{PlaceholderOutput, PlaceholderObjects}},
		{"link", s.Linker, []string{PlaceholderOutput, PlaceholderObjects}},
	}
	for _, stage := range stages {
		if len(stage.template) == 0 {
			return fmt.Errorf("%s command is empty", stage.name)
		}
		joined := strings.Join(stage.template, " ")
		for _, ph := range stage.required {
			if !strings.Contains(joined, ph) {
				return fmt.Errorf("%s command never uses %s", stage.name, ph)
			}
		}
	}
	return nil
}
