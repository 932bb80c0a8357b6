package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the build taxonomy. Typed errors below match these
// through errors.Is so callers can branch on category without holding the
// concrete type.
var (
	// ErrDuplicateIdentifier is returned when a name is declared twice in
	// the same scope.
	ErrDuplicateIdentifier = errors.New("mason: duplicate identifier")

	// ErrUnresolvedReference is returned when a declaration references a
	// file, output or target that exists in no visible scope.
	ErrUnresolvedReference = errors.New("mason: unresolved reference")

	// ErrCyclicDependency is returned when the dependency graph contains a
	// cycle.
	ErrCyclicDependency = errors.New("mason: cyclic dependency")

	// ErrDuplicateOutput is returned when two generators declare the same
	// output path.
	ErrDuplicateOutput = errors.New("mason: duplicate generator output")

	// ErrGeneratorOutputMissing is returned when a generator exits
	// successfully without creating every declared output.
	ErrGeneratorOutputMissing = errors.New("mason: generator output missing")

	// ErrGeneratorExecutionFailed is returned when a generator subprocess
	// exits non-zero.
	ErrGeneratorExecutionFailed = errors.New("mason: generator execution failed")

	// ErrSubprojectNotFound is returned when a required subproject
	// directory is missing, or a reference names an undeclared subproject.
	ErrSubprojectNotFound = errors.New("mason: subproject not found")

	// ErrUndefinedVariable is returned when a parent requests a variable
	// the subproject never published.
	ErrUndefinedVariable = errors.New("mason: undefined subproject variable")

	// ErrToolchainFailure is returned when an external compile, archive or
	// link command fails.
	ErrToolchainFailure = errors.New("mason: toolchain failure")

	// ErrTestFailure is returned when a test executable exits non-zero.
	ErrTestFailure = errors.New("mason: test failure")
)

// DuplicateIdentifierError reports a name already registered in a scope.
type DuplicateIdentifierError struct {
	Scope string // "" for the root scope
	Name  string
	Prev  string // kind of the earlier registration
}

// Error returns the error string.
func (e *DuplicateIdentifierError) Error() string {
	where := "root scope"
	if e.Scope != "" {
		where = fmt.Sprintf("scope %q", e.Scope)
	}
	return fmt.Sprintf("mason: identifier %q already declared as %s in %s", e.Name, e.Prev, where)
}

// Is reports whether the target matches ErrDuplicateIdentifier.
func (e *DuplicateIdentifierError) Is(err error) bool {
	return err == ErrDuplicateIdentifier
}

// NewDuplicateIdentifierError returns a new DuplicateIdentifierError.
func NewDuplicateIdentifierError(scope, name, prev string) *DuplicateIdentifierError {
	return &DuplicateIdentifierError{Scope: scope, Name: name, Prev: prev}
}

// IsDuplicateIdentifier returns true if the error is a DuplicateIdentifierError.
func IsDuplicateIdentifier(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateIdentifierError
	return errors.As(err, &e) || errors.Is(err, ErrDuplicateIdentifier)
}

// UnresolvedReferenceError reports a reference with no producer in any
// visible scope.
type UnresolvedReferenceError struct {
	Consumer string // ID of the referencing entity
	Ref      string // the reference as written
}

// Error returns the error string.
func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("mason: %s references %q which no visible scope provides", e.Consumer, e.Ref)
}

// Is reports whether the target matches ErrUnresolvedReference.
func (e *UnresolvedReferenceError) Is(err error) bool {
	return err == ErrUnresolvedReference
}

// NewUnresolvedReferenceError returns a new UnresolvedReferenceError.
func NewUnresolvedReferenceError(consumer, ref string) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{Consumer: consumer, Ref: ref}
}

// IsUnresolvedReference returns true if the error is an UnresolvedReferenceError.
func IsUnresolvedReference(err error) bool {
	if err == nil {
		return false
	}
	var e *UnresolvedReferenceError
	return errors.As(err, &e) || errors.Is(err, ErrUnresolvedReference)
}

// CyclicDependencyError reports a dependency cycle by its node path.
type CyclicDependencyError struct {
	Cycle []string // node IDs, first repeated last
}

// Error returns the error string naming the full cycle path.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("mason: cyclic dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Is reports whether the target matches ErrCyclicDependency.
func (e *CyclicDependencyError) Is(err error) bool {
	return err == ErrCyclicDependency
}

// NewCyclicDependencyError returns a new CyclicDependencyError.
func NewCyclicDependencyError(cycle []string) *CyclicDependencyError {
	return &CyclicDependencyError{Cycle: cycle}
}

// IsCyclicDependency returns true if the error is a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	if err == nil {
		return false
	}
	var e *CyclicDependencyError
	return errors.As(err, &e) || errors.Is(err, ErrCyclicDependency)
}

// DuplicateOutputError reports two generators declaring the same output
// path. The policy is non-fatal: the later declaration wins and this error
// is surfaced as a warning.
type DuplicateOutputError struct {
	Output  string // output path as declared
	Earlier string // generator ID whose output is overridden
	Later   string // generator ID that wins
}

// Error returns the error string.
func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("mason: output %q declared by both %s and %s; later declaration %s wins",
		e.Output, e.Earlier, e.Later, e.Later)
}

// Is reports whether the target matches ErrDuplicateOutput.
func (e *DuplicateOutputError) Is(err error) bool {
	return err == ErrDuplicateOutput
}

// NewDuplicateOutputError returns a new DuplicateOutputError.
func NewDuplicateOutputError(output, earlier, later string) *DuplicateOutputError {
	return &DuplicateOutputError{Output: output, Earlier: earlier, Later: later}
}

// IsDuplicateOutput returns true if the error is a DuplicateOutputError.
func IsDuplicateOutput(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateOutputError
	return errors.As(err, &e) || errors.Is(err, ErrDuplicateOutput)
}

// GeneratorOutputMissingError reports declared outputs absent after a
// successful generator run.
type GeneratorOutputMissingError struct {
	Generator string   // generator ID
	Missing   []string // declared outputs not found on disk
}

// Error returns the error string listing every missing file.
func (e *GeneratorOutputMissingError) Error() string {
	return fmt.Sprintf("mason: %s exited successfully but did not create: %s",
		e.Generator, strings.Join(e.Missing, ", "))
}

// Is reports whether the target matches ErrGeneratorOutputMissing.
func (e *GeneratorOutputMissingError) Is(err error) bool {
	return err == ErrGeneratorOutputMissing
}

// NewGeneratorOutputMissingError returns a new GeneratorOutputMissingError.
func NewGeneratorOutputMissingError(generator string, missing []string) *GeneratorOutputMissingError {
	return &GeneratorOutputMissingError{Generator: generator, Missing: missing}
}

// IsGeneratorOutputMissing returns true if the error is a GeneratorOutputMissingError.
func IsGeneratorOutputMissing(err error) bool {
	if err == nil {
		return false
	}
	var e *GeneratorOutputMissingError
	return errors.As(err, &e) || errors.Is(err, ErrGeneratorOutputMissing)
}

// GeneratorExecutionFailedError wraps a generator subprocess's non-zero exit.
type GeneratorExecutionFailedError struct {
	Generator string // generator ID
	ExitCode  int    // -1 when the process never ran or was signaled
	Output    string // captured combined stdout and stderr
	Err       error  // underlying exec error
}

// Error returns the error string.
func (e *GeneratorExecutionFailedError) Error() string {
	return fmt.Sprintf("mason: %s failed with exit code %d: %v", e.Generator, e.ExitCode, e.Err)
}

// Unwrap returns the underlying error.
func (e *GeneratorExecutionFailedError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrGeneratorExecutionFailed.
func (e *GeneratorExecutionFailedError) Is(err error) bool {
	return err == ErrGeneratorExecutionFailed
}

// NewGeneratorExecutionFailedError returns a new GeneratorExecutionFailedError.
func NewGeneratorExecutionFailedError(generator string, exitCode int, output string, err error) *GeneratorExecutionFailedError {
	return &GeneratorExecutionFailedError{Generator: generator, ExitCode: exitCode, Output: output, Err: err}
}

// IsGeneratorExecutionFailed returns true if the error is a GeneratorExecutionFailedError.
func IsGeneratorExecutionFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *GeneratorExecutionFailedError
	return errors.As(err, &e) || errors.Is(err, ErrGeneratorExecutionFailed)
}

// SubprojectNotFoundError reports a missing subproject directory or a
// reference to an undeclared subproject.
type SubprojectNotFoundError struct {
	Name string
	Dir  string // probed directory, "" for pure reference errors
}

// Error returns the error string.
func (e *SubprojectNotFoundError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("mason: subproject %q not found at %s", e.Name, e.Dir)
	}
	return fmt.Sprintf("mason: subproject %q is not declared", e.Name)
}

// Is reports whether the target matches ErrSubprojectNotFound.
func (e *SubprojectNotFoundError) Is(err error) bool {
	return err == ErrSubprojectNotFound
}

// NewSubprojectNotFoundError returns a new SubprojectNotFoundError.
func NewSubprojectNotFoundError(name, dir string) *SubprojectNotFoundError {
	return &SubprojectNotFoundError{Name: name, Dir: dir}
}

// IsSubprojectNotFound returns true if the error is a SubprojectNotFoundError.
func IsSubprojectNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *SubprojectNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrSubprojectNotFound)
}

// UndefinedVariableError reports a lookup of a variable the subproject never
// published.
type UndefinedVariableError struct {
	Subproject string
	Variable   string
}

// Error returns the error string.
func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("mason: subproject %q does not publish variable %q", e.Subproject, e.Variable)
}

// Is reports whether the target matches ErrUndefinedVariable.
func (e *UndefinedVariableError) Is(err error) bool {
	return err == ErrUndefinedVariable
}

// NewUndefinedVariableError returns a new UndefinedVariableError.
func NewUndefinedVariableError(subproject, variable string) *UndefinedVariableError {
	return &UndefinedVariableError{Subproject: subproject, Variable: variable}
}

// IsUndefinedVariable returns true if the error is an UndefinedVariableError.
func IsUndefinedVariable(err error) bool {
	if err == nil {
		return false
	}
	var e *UndefinedVariableError
	return errors.As(err, &e) || errors.Is(err, ErrUndefinedVariable)
}

// ToolchainFailureError wraps a failed external compile, archive or link
// command.
type ToolchainFailureError struct {
	TargetID string
	Stage    string // "compile", "archive" or "link"
	Output   string // captured combined stdout and stderr
	Err      error  // underlying exec error
}

// Error returns the error string.
func (e *ToolchainFailureError) Error() string {
	return fmt.Sprintf("mason: %s stage for %s failed: %v", e.Stage, e.TargetID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ToolchainFailureError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrToolchainFailure.
func (e *ToolchainFailureError) Is(err error) bool {
	return err == ErrToolchainFailure
}

// NewToolchainFailureError returns a new ToolchainFailureError.
func NewToolchainFailureError(targetID, stage, output string, err error) *ToolchainFailureError {
	return &ToolchainFailureError{TargetID: targetID, Stage: stage, Output: output, Err: err}
}

// IsToolchainFailure returns true if the error is a ToolchainFailureError.
func IsToolchainFailure(err error) bool {
	if err == nil {
		return false
	}
	var e *ToolchainFailureError
	return errors.As(err, &e) || errors.Is(err, ErrToolchainFailure)
}

// TestFailureError reports a test executable exiting non-zero. Test failures
// never abort the build; they surface in the run summary.
type TestFailureError struct {
	Test     string // test ID
	ExitCode int
	Output   string // captured combined stdout and stderr
}

// Error returns the error string.
func (e *TestFailureError) Error() string {
	return fmt.Sprintf("mason: %s failed with exit code %d", e.Test, e.ExitCode)
}

// Is reports whether the target matches ErrTestFailure.
func (e *TestFailureError) Is(err error) bool {
	return err == ErrTestFailure
}

// NewTestFailureError returns a new TestFailureError.
func NewTestFailureError(test string, exitCode int, output string) *TestFailureError {
	return &TestFailureError{Test: test, ExitCode: exitCode, Output: output}
}

// IsTestFailure returns true if the error is a TestFailureError.
func IsTestFailure(err error) bool {
	if err == nil {
		return false
	}
	var e *TestFailureError
	return errors.As(err, &e) || errors.Is(err, ErrTestFailure)
}

// InvalidDeclarationError reports a declaration that violates a model
// invariant, such as a generator with an empty output list.
type InvalidDeclarationError struct {
	Entity string // entity ID
	Reason string
}

// Error returns the error string.
func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("mason: invalid declaration %s: %s", e.Entity, e.Reason)
}

// NewInvalidDeclarationError returns a new InvalidDeclarationError.
func NewInvalidDeclarationError(entity, reason string) *InvalidDeclarationError {
	return &InvalidDeclarationError{Entity: entity, Reason: reason}
}

// IsInvalidDeclaration returns true if the error is an InvalidDeclarationError.
func IsInvalidDeclaration(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidDeclarationError
	return errors.As(err, &e)
}
