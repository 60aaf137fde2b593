package sessionservice

import (
	"context"
	"testing"

	"github.com/qti-engine/session-engine/internal/eventlog"
	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/fixture"
	"github.com/qti-engine/session-engine/internal/persistence"
	"github.com/qti-engine/session-engine/internal/qtimodel"
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

func newTestCatalog(t *testing.T) MapCatalog {
	t.Helper()

	engine := expression.NewExprEngine()

	fx, err := fixture.Parse([]byte(sampleYAML), engine)
	if err != nil {
		t.Fatalf("fixture.Parse: %v", err)
	}

	return MapCatalog{
		fx.Model.Identifier: {Model: fx.Model, Items: fx.Items, Engine: fx.Engine},
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	return New(newTestCatalog(t), persistence.NewInMemorySnapshotStore(), eventlog.NoopPublisher{}, qtimodel.Config(0))
}

func TestCreateSessionBeginsInteracting(t *testing.T) {
	svc := newTestService(t)

	view, err := svc.CreateSession(context.Background(), "demo-test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if view.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	if view.CurrentItemRef != "q1" {
		t.Fatalf("CurrentItemRef = %q, want q1", view.CurrentItemRef)
	}

	if view.State != qtimodel.TestSessionStateInteracting {
		t.Fatalf("State = %v, want Interacting", view.State)
	}
}

func TestUnknownTestIdentifierFails(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.CreateSession(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an unknown test identifier")
	}
}

func TestEndToEndAttemptRoundTripsThroughPersistence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	view, err := svc.CreateSession(ctx, "demo-test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	view, err = svc.BeginAttempt(ctx, view.SessionID, false)
	if err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}

	responses := qtimodel.NewState()

	if err := responses.Declare(&qtimodel.Variable{
		Identifier:  "RESPONSE",
		Kind:        qtimodel.KindResponse,
		Cardinality: qtimodel.CardinalitySingle,
		BaseType:    qtimodel.BaseTypeIdentifier,
		Value: &qtimodel.Value{
			Cardinality: qtimodel.CardinalitySingle,
			BaseType:    qtimodel.BaseTypeIdentifier,
			Single:      "ChoiceA",
		},
	}); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	view, err = svc.EndAttempt(ctx, view.SessionID, responses, false)
	if err != nil {
		t.Fatalf("EndAttempt: %v", err)
	}

	view, err = svc.EndTestSession(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("EndTestSession: %v", err)
	}

	if !view.Completed {
		t.Fatalf("expected session to be completed, got state %v", view.State)
	}

	outcomes, err := svc.Outcomes(ctx, view.SessionID)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}

	total, ok := outcomes["TOTAL"]
	if !ok {
		t.Fatal("expected TOTAL outcome to be present")
	}

	if total.Single != 1.0 {
		t.Fatalf("TOTAL = %v, want 1.0", total.Single)
	}
}

func TestGetSessionReturnsCurrentStateWithoutMutating(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	created, err := svc.CreateSession(ctx, "demo-test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	fetched, err := svc.GetSession(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	if fetched.Position != created.Position || fetched.CurrentItemRef != created.CurrentItemRef {
		t.Fatalf("GetSession view diverged from CreateSession view: %+v vs %+v", fetched, created)
	}
}

func TestGetSessionUnknownSessionFails(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.GetSession(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected ErrSessionNotFound")
	}
}
