// Package model holds the in-memory representation of a build project: its
// targets, generator steps, tests, subprojects and external dependencies. A
// Project is an explicit scope object passed by reference into each
// declaration call; there is no process-wide registry. The model stays
// declarative: resolving references and ordering work belongs to the graph
// and orchestrator layers.
package model
