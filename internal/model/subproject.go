package model

// VariableKind enumerates the closed set of value kinds a subproject may
// publish. Values are validated at subproject-load time, not at first use.
type VariableKind string

const (
	// VariableLibrary is a handle to a library target built by the
	// subproject.
	VariableLibrary VariableKind = "library"
	// VariableIncludeDirs is an ordered set of include directories.
	VariableIncludeDirs VariableKind = "include_dirs"
	// VariableString is a plain string value.
	VariableString VariableKind = "string"
	// VariableAbsent marks a value published by a subproject that could not
	// be resolved. Consumers omit the corresponding link or include edge.
	VariableAbsent VariableKind = "absent"
)

// Variable is one published subproject value. Exactly the field matching
// Kind is meaningful; variables are immutable once published.
type Variable struct {
	Kind VariableKind

	// TargetID and Path identify the producing library target and its
	// artifact for VariableLibrary values.
	TargetID string
	Path     string

	// Dirs holds VariableIncludeDirs values.
	Dirs []string

	// Str holds VariableString values.
	Str string
}

// AbsentVariable is the sentinel published for values that resolved to
// nothing, such as every variable of an absent optional subproject.
func AbsentVariable() Variable {
	return Variable{Kind: VariableAbsent}
}

// Subproject is a nested, independently resolved project. Only the variables
// named in its `publish` block are visible to the parent.
type Subproject struct {
	Name string

	// DeclaredIn is the scope whose files declared the subproject block.
	// Only that scope may reference the subproject's variables.
	DeclaredIn string

	// Dir and BuildDir are the subproject's source and build directories.
	// Both are empty when the subproject is absent.
	Dir      string
	BuildDir string

	// Required marks whether resolution must fail when the subproject
	// directory is missing.
	Required bool

	// Absent is set when an optional subproject's directory was not found.
	// Every variable lookup on an absent subproject yields the absent
	// sentinel.
	Absent bool

	vars map[string]Variable
}

// Publish records a named variable. Publishing the same name twice returns a
// DuplicateIdentifierError; published values never change.
func (s *Subproject) Publish(name string, v Variable) error {
	if s.vars == nil {
		s.vars = make(map[string]Variable)
	}
	if _, exists := s.vars[name]; exists {
		return NewDuplicateIdentifierError(s.Name, name, "variable")
	}
	s.vars[name] = v
	return nil
}

// Var looks up a published variable by name. Absent subprojects answer every
// lookup with the absent sentinel; otherwise unknown names fail with
// UndefinedVariableError.
func (s *Subproject) Var(name string) (Variable, error) {
	if s.Absent {
		return AbsentVariable(), nil
	}
	v, ok := s.vars[name]
	if !ok {
		return Variable{}, NewUndefinedVariableError(s.Name, name)
	}
	return v, nil
}

// VarNames returns the names of all published variables.
func (s *Subproject) VarNames() []string {
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	return names
}

// ExternalDep is the representation of a `dependency` block: a prebuilt
// library outside the project, probed for presence rather than built.
type ExternalDep struct {
	Name  string
	Scope string

	// Link is the linker-facing library name.
	Link string

	// Probe is an optional file path whose presence decides availability.
	// An empty probe means the dependency is assumed present.
	Probe string

	// Required marks whether a failed probe aborts resolution.
	Required bool

	// Absent is set during resolution when an optional probe fails.
	Absent bool
}

// ID returns the dependency's unique identifier.
func (d *ExternalDep) ID() string {
	return EntityID("dependency", d.Scope, d.Name)
}
