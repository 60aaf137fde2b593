package expression

import (
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/qti-engine/session-engine/internal/qtimodel"
)

// ErrNotSource indicates an Expression handed to ExprEngine was not a
// string (the only representation this implementation understands).
var ErrNotSource = errors.New("exprengine: expression is not a source string")

// ExprEngine is a reference Engine implementation backed by
// github.com/expr-lang/expr. Expression values are plain Go strings of
// expr-lang syntax; a variable reference resolves through the helper
// function V("identifier") exposed in the evaluation environment, e.g.
// `V("RESPONSE") == "ChoiceA"` or `V("Q1.1.SCORE") > 0.5`.
//
// This is demo/test scaffolding, not a full QTI expression language
// implementation (QTI's response/outcome processing operator set, e.g.
// match, sum, customOperator, is out of scope here).
type ExprEngine struct {
	mu      sync.Mutex
	program map[string]*vm.Program
}

// NewExprEngine returns a ready-to-use ExprEngine with an empty compile
// cache.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{program: make(map[string]*vm.Program)}
}

// Evaluate compiles (caching by source text) and runs expr against ctx,
// converting the resulting Go value into a qtimodel.Value by its dynamic
// type. A nil result maps to a null Value.
func (e *ExprEngine) Evaluate(source Expression, ctx Context) (*qtimodel.Value, error) {
	code, ok := source.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotSource, source)
	}

	program, err := e.compile(code)
	if err != nil {
		return nil, fmt.Errorf("exprengine: compile %q: %w", code, err)
	}

	env := e.environment(ctx)

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("exprengine: run %q: %w", code, err)
	}

	return toValue(result), nil
}

func (e *ExprEngine) compile(code string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.program[code]; ok {
		return program, nil
	}

	program, err := expr.Compile(code)
	if err != nil {
		return nil, err
	}

	e.program[code] = program

	return program, nil
}

// environment builds the expr-lang env map: a single V(id) lookup function
// backed by ctx, unwrapping each qtimodel.Value to its raw Go scalar so
// ordinary expr-lang operators (==, >, &&, ...) work directly against it.
func (e *ExprEngine) environment(ctx Context) map[string]interface{} {
	return map[string]interface{}{
		"V": func(id string) interface{} {
			v, err := ctx.Get(id)
			if err != nil || v == nil || v.IsNull {
				return nil
			}

			switch v.Cardinality {
			case qtimodel.CardinalitySingle:
				return v.Single
			case qtimodel.CardinalityMultiple, qtimodel.CardinalityOrdered:
				return v.Container
			default:
				return v.Record
			}
		},
	}
}

// toValue infers a qtimodel.Value from an expr-lang result's dynamic type.
func toValue(result interface{}) *qtimodel.Value {
	switch v := result.(type) {
	case nil:
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString)
	case bool:
		return qtimodel.SingleValue(qtimodel.BaseTypeBoolean, v)
	case int:
		return qtimodel.SingleValue(qtimodel.BaseTypeInteger, v)
	case float64:
		return qtimodel.SingleValue(qtimodel.BaseTypeFloat, v)
	case string:
		return qtimodel.SingleValue(qtimodel.BaseTypeIdentifier, v)
	default:
		return qtimodel.SingleValue(qtimodel.BaseTypeString, fmt.Sprintf("%v", v))
	}
}
