// Package executor implements the command-execution lifecycle engine:
// variable substitution, single-attempt dispatch to a backend primitive,
// result classification against error/loop predicates, and bounded retry.
package executor

// Result is the outcome of one command attempt. Backends return it from
// ExecCommand; the engine redacts its output in place before publishing.
// A command that has not run yet is a nil *Result.
type Result struct {
	Stdout     string `json:"stdout"`
	Returncode int    `json:"returncode"`
}
