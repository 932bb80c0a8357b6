package model

// Placeholders recognized in generator argument lists. Unknown @...@ tokens
// pass through to the program untouched.
const (
	// PlaceholderInput expands to the step's input file path.
	PlaceholderInput = "@INPUT@"
	// PlaceholderOutDir expands to the scope's build directory.
	PlaceholderOutDir = "@OUTDIR@"
)

// GeneratorStep is the representation of a `generator` block: one external
// program invocation that materializes the declared output files.
type GeneratorStep struct {
	Name  string
	Scope string

	// Program is the executable to invoke, resolved via PATH or as a path
	// relative to the scope directory.
	Program string

	// Input is the single input file, relative to the scope directory.
	Input string

	// Outputs are the files the program must create, relative to the
	// scope's build directory. Never empty for a registered step.
	Outputs []string

	// Args is the argument list with placeholders still in place.
	Args []string

	// Env holds extra environment variables for the subprocess.
	Env map[string]string
}

// ID returns the step's unique node identifier.
func (g *GeneratorStep) ID() string {
	return EntityID("generator", g.Scope, g.Name)
}
