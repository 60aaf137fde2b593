// Package expression defines the Expression Engine interface: the single
// seam through which the Test Session Driver evaluates branchRule
// conditions, preConditions, and templateDefaults/templateProcessing rules.
// The engine's core never implements the expression language itself — that
// is an external collaborator — but this package also ships one concrete,
// swappable implementation (expr-lang/expr, see exprengine.go) for tests
// and the demo CLI to use.
package expression

import "github.com/qti-engine/session-engine/internal/qtimodel"

// Expression is an opaque, engine-specific expression handle. The driver
// never interprets it; it only ever hands it to an Engine's Evaluate.
// Concrete engines define their own underlying representation (e.g. a
// compiled AST or, for the reference implementation, a source string).
type Expression interface{}

// Context is the minimal view of a test session an Engine needs to resolve
// variable references while evaluating an Expression. The Test Session
// Driver implements this directly, avoiding an import cycle between
// internal/testsession and internal/expression.
type Context interface {
	// Get resolves id (global outcome, "prefix.name" item variable, or
	// "prefix.N.name" item variable) to its current value, or a null Value
	// if unbound.
	Get(id string) (*qtimodel.Value, error)
}

// Engine evaluates a rule's Expression against ctx, returning the resulting
// value or a null Value — never both a value and an error for a
// successfully-evaluated expression.
type Engine interface {
	Evaluate(expr Expression, ctx Context) (*qtimodel.Value, error)
}
