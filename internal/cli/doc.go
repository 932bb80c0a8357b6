// Package cli parses command-line arguments, validates user input, and
// handles process-level concerns like exit codes. It translates CLI flags
// into the application's build configuration.
package cli
