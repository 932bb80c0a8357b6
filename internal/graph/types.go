package graph

// NodeType distinguishes the kinds of work a node represents.
type NodeType int

const (
	// GeneratorNode runs an external program producing declared outputs.
	GeneratorNode NodeType = iota
	// LibraryNode compiles its sources and archives a static library.
	LibraryNode
	// ExecutableNode compiles its sources and links a binary.
	ExecutableNode
)

// String returns the node type's name.
func (t NodeType) String() string {
	switch t {
	case GeneratorNode:
		return "generator"
	case LibraryNode:
		return "library"
	case ExecutableNode:
		return "executable"
	default:
		return "unknown"
	}
}

// State represents the execution state of a node.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies.
	Pending State = iota
	// Running indicates a worker is currently executing the node.
	Running
	// Done indicates the node completed successfully.
	Done
	// Failed indicates the node failed or was skipped after an upstream
	// failure.
	Failed
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
