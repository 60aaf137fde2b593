package fixture

import (
	"fmt"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/testsession"
)

// rule is a compiled ruleDoc: set is assigned expr's result whenever when
// evaluates truthy (or always, if when is empty).
type rule struct {
	set  string
	when expression.Expression // nil means unconditional
	expr expression.Expression
}

// compileRules turns every rule's source strings into opaque Expression
// handles (github.com/expr-lang/expr's ExprEngine just stores the source
// text itself and compiles lazily on first Evaluate, see
// internal/expression/exprengine.go) and validates set/expr are both
// present.
func compileRules(docs []ruleDoc) ([]rule, error) {
	rules := make([]rule, 0, len(docs))

	for _, d := range docs {
		if d.Set == "" {
			return nil, fmt.Errorf("rule missing 'set'")
		}

		if d.Expr == "" {
			return nil, fmt.Errorf("rule %q missing 'expr'", d.Set)
		}

		r := rule{set: d.Set, expr: d.Expr}
		if d.When != "" {
			r.when = d.When
		}

		rules = append(rules, r)
	}

	return rules, nil
}

// itemScopedContext adapts an itemsession.ItemSession's own Variables to
// expression.Context, so response/templateProcessing rules address their
// own item's variables unprefixed (e.g. "RESPONSE", not "q1.RESPONSE").
type itemScopedContext struct {
	session *itemsession.ItemSession
}

func (c itemScopedContext) Get(id string) (*qtimodel.Value, error) {
	v, err := c.session.Variables.GetVariable(id)
	if err != nil {
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString), nil
	}

	return v.Value, nil
}

// runRules evaluates each rule against ctx in order, skipping one whose
// guard (when) evaluates to null or false, and writing the rest via set.
func runRules(rules []rule, ctx expression.Context, engine expression.Engine, set func(id string, v *qtimodel.Value) error) error {
	for _, r := range rules {
		if r.when != nil {
			guard, err := engine.Evaluate(r.when, ctx)
			if err != nil {
				return fmt.Errorf("evaluate guard for %s: %w", r.set, err)
			}

			if !truthy(guard) {
				continue
			}
		}

		result, err := engine.Evaluate(r.expr, ctx)
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", r.set, err)
		}

		if err := set(r.set, result); err != nil {
			return fmt.Errorf("set %s: %w", r.set, err)
		}
	}

	return nil
}

// truthy reports whether v counts as a passing guard: non-null, and either
// a true boolean or any other non-null scalar/container.
func truthy(v *qtimodel.Value) bool {
	if v == nil || v.IsNull {
		return false
	}

	if v.Cardinality == qtimodel.CardinalitySingle {
		if b, ok := v.Single.(bool); ok {
			return b
		}
	}

	return true
}

// itemResponseProcessingFunc adapts a compiled rule set into the
// itemsession.ResponseProcessingFunc shape EndAttempt calls.
func itemResponseProcessingFunc(rules []rule, engine expression.Engine) testsession.ResponseProcessingFunc {
	return func(session *itemsession.ItemSession) error {
		ctx := itemScopedContext{session: session}

		return runRules(rules, ctx, engine, func(id string, v *qtimodel.Value) error {
			return session.Variables.SetVariable(id, v)
		})
	}
}

// itemTemplateProcessingFunc adapts a compiled rule set into Model's
// TemplateProcessingFunc shape.
func itemTemplateProcessingFunc(rules []rule) testsession.TemplateProcessingFunc {
	return func(session *itemsession.ItemSession, engine expression.Engine) error {
		ctx := itemScopedContext{session: session}

		return runRules(rules, ctx, engine, func(id string, v *qtimodel.Value) error {
			return session.Variables.SetVariable(id, v)
		})
	}
}

// testOutcomeProcessingFunc adapts a compiled rule set into Model's
// OutcomeProcessingFunc shape, addressing variables the way TestSession.Get/
// Set already do ("q1.SCORE" for item-scoped, "TOTAL" for global).
func testOutcomeProcessingFunc(rules []rule, engine expression.Engine) testsession.OutcomeProcessingFunc {
	return func(ts *testsession.TestSession) error {
		return runRules(rules, ts, engine, ts.Set)
	}
}
