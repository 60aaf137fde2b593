package fixture

import (
	"testing"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
	"github.com/qti-engine/session-engine/internal/testsession"
)

const sampleYAML = `
identifier: demo-test
testPartOrder: [part-1]
testParts:
  - identifier: part-1
    navigationMode: linear
    submissionMode: individual
outcomeDeclarations:
  - identifier: TOTAL
    kind: outcome
    cardinality: single
    baseType: float
    default: 0.0
outcomeProcessing:
  - set: TOTAL
    expr: "V(\"q1.SCORE\")"
items:
  - itemRef: q1
    testPart: part-1
    sections: [section-1]
    itemSessionControl:
      maxAttempts: 1
      allowSkipping: true
    declarations:
      - identifier: RESPONSE
        kind: response
        cardinality: single
        baseType: identifier
      - identifier: SCORE
        kind: outcome
        cardinality: single
        baseType: float
        default: 0.0
    responseProcessing:
      - set: SCORE
        expr: "V(\"RESPONSE\") == \"ChoiceA\" ? 1.0 : 0.0"
`

func TestParseBuildsModelAndItems(t *testing.T) {
	fx, err := Parse([]byte(sampleYAML), expression.NewExprEngine())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fx.Model.Identifier != "demo-test" {
		t.Fatalf("Identifier = %q, want demo-test", fx.Model.Identifier)
	}

	if len(fx.Items) != 1 || fx.Items[0].ItemRefIdentifier != "q1" {
		t.Fatalf("Items = %+v, want one RouteItem for q1", fx.Items)
	}

	if fx.Items[0].ItemSessionControl.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", fx.Items[0].ItemSessionControl.MaxAttempts)
	}

	if _, ok := fx.Model.ResponseProcessing["q1"]; !ok {
		t.Fatal("expected q1 responseProcessing to be wired")
	}

	if fx.Model.OutcomeProcessing == nil {
		t.Fatal("expected outcomeProcessing to be wired")
	}
}

// TestLoadedFixtureDrivesASession exercises the parsed Model end-to-end
// through a real TestSession, confirming the compiled rules actually run.
func TestLoadedFixtureDrivesASession(t *testing.T) {
	fx, err := Parse([]byte(sampleYAML), expression.NewExprEngine())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ts := testsession.New("sess-1", fx.Model, route.NewRoute(fx.Items), fx.Engine, 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.BeginAttempt(false); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}

	responses := qtimodel.NewState()
	_ = responses.Declare(&qtimodel.Variable{
		Identifier:  "RESPONSE",
		Kind:        qtimodel.KindResponse,
		Cardinality: qtimodel.CardinalitySingle,
		BaseType:    qtimodel.BaseTypeIdentifier,
		Value:       qtimodel.SingleValue(qtimodel.BaseTypeIdentifier, "ChoiceA"),
	})

	if err := ts.EndAttempt(responses, false); err != nil {
		t.Fatalf("EndAttempt: %v", err)
	}

	if err := ts.EndTestSession(); err != nil {
		t.Fatalf("EndTestSession: %v", err)
	}

	total, err := ts.GlobalOutcomes.GetVariable("TOTAL")
	if err != nil {
		t.Fatalf("GetVariable(TOTAL): %v", err)
	}

	if total.Value.IsNull || total.Value.Single != 1.0 {
		t.Fatalf("TOTAL = %+v, want 1.0", total.Value)
	}
}

func TestParseRejectsNilEngine(t *testing.T) {
	if _, err := Parse([]byte(sampleYAML), nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}
