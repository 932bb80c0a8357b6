package model

// Project is the explicit scope object every declaration registers into.
// One Project covers the root scope plus the flattened entities of every
// resolved subproject, namespaced by their scope name.
type Project struct {
	Name     string
	Dir      string
	BuildDir string

	// names is the shared per-scope namespace covering executables,
	// libraries, generators and tests, mapping scoped name to entity kind.
	names map[string]string

	targets    map[string]*Target
	generators map[string]*GeneratorStep
	tests      map[string]*TestCase
	subs       map[string]*Subproject
	externals  map[string]*ExternalDep

	targetList []*Target
	genList    []*GeneratorStep
	testList   []*TestCase
	subList    []*Subproject
	extList    []*ExternalDep
}

// NewProject creates an empty project scope rooted at dir, writing build
// artifacts under buildDir.
func NewProject(name, dir, buildDir string) *Project {
	return &Project{
		Name:       name,
		Dir:        dir,
		BuildDir:   buildDir,
		names:      make(map[string]string),
		targets:    make(map[string]*Target),
		generators: make(map[string]*GeneratorStep),
		tests:      make(map[string]*TestCase),
		subs:       make(map[string]*Subproject),
		externals:  make(map[string]*ExternalDep),
	}
}

func scopedKey(scope, name string) string {
	return scope + "\x00" + name
}

// claim reserves name in scope's shared namespace.
func (p *Project) claim(scope, name, kind string) error {
	key := scopedKey(scope, name)
	if prev, exists := p.names[key]; exists {
		return NewDuplicateIdentifierError(scope, name, prev)
	}
	p.names[key] = kind
	return nil
}

// AddExecutable registers an executable target in its scope.
func (p *Project) AddExecutable(t *Target) error {
	t.Kind = KindExecutable
	return p.addTarget(t)
}

// AddLibrary registers a static library target in its scope.
func (p *Project) AddLibrary(t *Target) error {
	t.Kind = KindLibrary
	return p.addTarget(t)
}

func (p *Project) addTarget(t *Target) error {
	if err := p.claim(t.Scope, t.Name, string(t.Kind)); err != nil {
		return err
	}
	p.targets[scopedKey(t.Scope, t.Name)] = t
	p.targetList = append(p.targetList, t)
	return nil
}

// AddGenerator registers a generator step in its scope. Steps must declare
// at least one output.
func (p *Project) AddGenerator(g *GeneratorStep) error {
	if len(g.Outputs) == 0 {
		return NewInvalidDeclarationError(g.ID(), "generator declares no outputs")
	}
	if err := p.claim(g.Scope, g.Name, "generator"); err != nil {
		return err
	}
	p.generators[scopedKey(g.Scope, g.Name)] = g
	p.genList = append(p.genList, g)
	return nil
}

// AddTest registers a test case in its scope.
func (p *Project) AddTest(tc *TestCase) error {
	if err := p.claim(tc.Scope, tc.Name, "test"); err != nil {
		return err
	}
	p.tests[scopedKey(tc.Scope, tc.Name)] = tc
	p.testList = append(p.testList, tc)
	return nil
}

// AddSubproject registers a resolved subproject. Subproject names are unique
// across the whole project tree.
func (p *Project) AddSubproject(s *Subproject) error {
	if _, exists := p.subs[s.Name]; exists {
		return NewDuplicateIdentifierError("", s.Name, "subproject")
	}
	p.subs[s.Name] = s
	p.subList = append(p.subList, s)
	return nil
}

// AddExternalDep registers an external dependency in its scope.
func (p *Project) AddExternalDep(d *ExternalDep) error {
	key := scopedKey(d.Scope, d.Name)
	if _, exists := p.externals[key]; exists {
		return NewDuplicateIdentifierError(d.Scope, d.Name, "dependency")
	}
	p.externals[key] = d
	p.extList = append(p.extList, d)
	return nil
}

// Target looks up a target by scope and name.
func (p *Project) Target(scope, name string) (*Target, bool) {
	t, ok := p.targets[scopedKey(scope, name)]
	return t, ok
}

// TargetByID looks up a target by its node identifier.
func (p *Project) TargetByID(id string) (*Target, bool) {
	for _, t := range p.targetList {
		if t.ID() == id {
			return t, true
		}
	}
	return nil, false
}

// Generator looks up a generator step by scope and name.
func (p *Project) Generator(scope, name string) (*GeneratorStep, bool) {
	g, ok := p.generators[scopedKey(scope, name)]
	return g, ok
}

// Test looks up a test case by scope and name.
func (p *Project) Test(scope, name string) (*TestCase, bool) {
	tc, ok := p.tests[scopedKey(scope, name)]
	return tc, ok
}

// Subproject looks up a subproject by name.
func (p *Project) Subproject(name string) (*Subproject, bool) {
	s, ok := p.subs[name]
	return s, ok
}

// ExternalDep looks up an external dependency by scope and name.
func (p *Project) ExternalDep(scope, name string) (*ExternalDep, bool) {
	d, ok := p.externals[scopedKey(scope, name)]
	return d, ok
}

// Targets returns all registered targets in declaration order.
func (p *Project) Targets() []*Target { return p.targetList }

// Generators returns all registered generator steps in declaration order.
func (p *Project) Generators() []*GeneratorStep { return p.genList }

// Tests returns all registered test cases in declaration order.
func (p *Project) Tests() []*TestCase { return p.testList }

// Subprojects returns all registered subprojects in declaration order.
func (p *Project) Subprojects() []*Subproject { return p.subList }

// ExternalDeps returns all registered external dependencies in declaration
// order.
func (p *Project) ExternalDeps() []*ExternalDep { return p.extList }

// ScopeDirs returns the source and build directories for a scope. The empty
// scope is the project root; any other scope must name a present subproject.
func (p *Project) ScopeDirs(scope string) (dir, buildDir string, ok bool) {
	if scope == "" {
		return p.Dir, p.BuildDir, true
	}
	s, found := p.subs[scope]
	if !found || s.Absent {
		return "", "", false
	}
	return s.Dir, s.BuildDir, true
}
