package model

// TestCase is the representation of a `test` block. Tests are not graph
// nodes; the orchestrator runs them in a dedicated phase after every target
// has settled.
type TestCase struct {
	Name  string
	Scope string

	// TargetID names the executable target the test runs.
	TargetID string

	Args []string
	Env  map[string]string
}

// ID returns the test's unique identifier.
func (tc *TestCase) ID() string {
	return EntityID("test", tc.Scope, tc.Name)
}
