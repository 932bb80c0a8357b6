// Package graph builds the dependency DAG for a resolved project. Each
// generator, library and executable becomes a node; edges point from
// consumers to the producers of their inputs. Construction validates every
// reference, applies the duplicate-output policy, and rejects cycles before
// any execution starts.
package graph
