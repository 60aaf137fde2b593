package testsession

import (
	"errors"
	"testing"
	"time"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

const scoreID = "SCORE"
const responseID = "RESPONSE"
const totalID = "TOTAL"

func itemDeclarations() []qtimodel.Declaration {
	return []qtimodel.Declaration{
		{Identifier: responseID, Kind: qtimodel.KindResponse, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeIdentifier},
		{Identifier: scoreID, Kind: qtimodel.KindOutcome, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeFloat, Default: qtimodel.SingleValue(qtimodel.BaseTypeFloat, 0.0)},
	}
}

// noopResponseProcessing leaves SCORE at its default; tests that need a
// non-zero SCORE set it directly via responsesWith/ts.Set instead.
func noopResponseProcessing(_ *itemsession.ItemSession) error { return nil }

func sumOutcomeProcessing(itemRefs []string) OutcomeProcessingFunc {
	return func(ts *TestSession) error {
		total := 0.0

		for _, ref := range itemRefs {
			v, err := ts.Get(ref + "." + scoreID)
			if err != nil {
				return err
			}

			if !v.IsNull {
				if f, ok := v.Single.(float64); ok {
					total += f
				}
			}
		}

		return ts.Set(totalID, qtimodel.SingleValue(qtimodel.BaseTypeFloat, total))
	}
}

// buildRouteItems lays out one item per entry in itemRefs, all in a single
// testPart, each a distinct occurrence 0.
func buildRouteItems(tpID string, itemRefs []string) []route.RouteItem {
	items := make([]route.RouteItem, 0, len(itemRefs))

	for _, ref := range itemRefs {
		items = append(items, route.RouteItem{
			ItemRefIdentifier:  ref,
			Occurrence:         0,
			TestPartIdentifier: tpID,
			SectionIdentifiers: []string{"sec1"},
			ItemSessionControl: route.ItemSessionControl{AllowSkipping: true},
		})
	}

	return items
}

func buildModel(tpID string, tp TestPartModel, itemRefs []string) *Model {
	itemDecls := make(map[string][]qtimodel.Declaration, len(itemRefs))
	responseProcessing := make(map[string]ResponseProcessingFunc, len(itemRefs))

	for _, ref := range itemRefs {
		itemDecls[ref] = itemDeclarations()
		responseProcessing[ref] = noopResponseProcessing
	}

	return &Model{
		Identifier: "test1",
		OutcomeDeclarations: []qtimodel.Declaration{
			{Identifier: totalID, Kind: qtimodel.KindOutcome, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeFloat, Default: qtimodel.SingleValue(qtimodel.BaseTypeFloat, 0.0)},
		},
		ItemDeclarations:   itemDecls,
		TestParts:          map[string]TestPartModel{tpID: tp},
		ResponseProcessing: responseProcessing,
		OutcomeProcessing:  sumOutcomeProcessing(itemRefs),
		TestPartOrder:      []string{tpID},
	}
}

func responsesWith(value string) *qtimodel.State {
	s := qtimodel.NewState()
	_ = s.Declare(&qtimodel.Variable{Identifier: responseID, Kind: qtimodel.KindResponse, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeIdentifier, Value: qtimodel.SingleValue(qtimodel.BaseTypeIdentifier, value)})

	return s
}

func TestBeginTestSessionInitializesNonAdaptiveRoute(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2"})
	model := buildModel("tp1", tp, []string{"q1", "q2"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if ts.State != qtimodel.TestSessionStateInteracting {
		t.Fatalf("expected Interacting, got %s", ts.State)
	}

	if ts.Items.Len() != 2 {
		t.Fatalf("expected both items initialized for non-adaptive route, got %d", ts.Items.Len())
	}

	if !ts.VisitedTestParts["tp1"] {
		t.Fatal("expected tp1 marked visited")
	}
}

func TestBeginAttemptRequiresInteracting(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1"})
	model := buildModel("tp1", tp, []string{"q1"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	err := ts.BeginAttempt(false)
	if !errors.Is(err, ErrStateViolation) {
		t.Fatalf("expected ErrStateViolation, got %v", err)
	}
}

func TestEndTestSessionTwiceViolatesState(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1"})
	model := buildModel("tp1", tp, []string{"q1"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.EndTestSession(); err != nil {
		t.Fatalf("EndTestSession: %v", err)
	}

	if err := ts.EndTestSession(); !errors.Is(err, ErrStateViolation) {
		t.Fatalf("expected ErrStateViolation on second close, got %v", err)
	}
}

func TestIndividualModeFullLifecycleEndsSession(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2"})
	model := buildModel("tp1", tp, []string{"q1", "q2"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := ts.BeginAttempt(false); err != nil {
			t.Fatalf("BeginAttempt[%d]: %v", i, err)
		}

		if err := ts.EndAttempt(responsesWith("correct"), false); err != nil {
			t.Fatalf("EndAttempt[%d]: %v", i, err)
		}

		if err := ts.MoveNext(); err != nil {
			t.Fatalf("MoveNext[%d]: %v", i, err)
		}
	}

	if ts.State != qtimodel.TestSessionStateClosed {
		t.Fatalf("expected Closed after route exhausted, got %s", ts.State)
	}
}

func TestBranchingJumpsOverSkippedItem(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2", "q3"})
	items[0].BranchRules = []route.BranchRule{{Target: "q3", Condition: "true"}}

	model := buildModel("tp1", tp, []string{"q1", "q2", "q3"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.MoveNext(); err != nil {
		t.Fatalf("MoveNext: %v", err)
	}

	cur, ok := ts.Route.Current()
	if !ok || cur.ItemRefIdentifier != "q3" {
		t.Fatalf("expected cursor at q3 after branch, got %+v ok=%v", cur, ok)
	}
}

func TestPreconditionSkipsItem(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2", "q3"})
	items[1].PreConditions = []route.PreCondition{{Condition: "false"}}

	model := buildModel("tp1", tp, []string{"q1", "q2", "q3"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.MoveNext(); err != nil {
		t.Fatalf("MoveNext: %v", err)
	}

	cur, ok := ts.Route.Current()
	if !ok || cur.ItemRefIdentifier != "q3" {
		t.Fatalf("expected cursor at q3 after skipping q2's failed precondition, got %+v ok=%v", cur, ok)
	}
}

func TestSetTimeEndsTestSessionOnOverflow(t *testing.T) {
	maxTime := time.Minute
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1"})
	model := buildModel("tp1", tp, []string{"q1"})
	model.TestTimeLimits = route.TimeLimits{MaxTime: &maxTime}

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	start := time.Unix(1000, 0)
	if err := ts.SetTime(start); err != nil {
		t.Fatalf("SetTime(start): %v", err)
	}

	if err := ts.SetTime(start.Add(2 * time.Minute)); err != nil {
		t.Fatalf("SetTime(+2m): %v", err)
	}

	if ts.State != qtimodel.TestSessionStateClosed {
		t.Fatalf("expected Closed after exceeding test maxTime, got %s", ts.State)
	}

	if got := ts.Duration.Get("test1"); got != maxTime {
		t.Fatalf("expected duration clamped to %s, got %s", maxTime, got)
	}
}

func TestNonlinearJumpAndMoveBackWithPathTracking(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeNonLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2", "q3"})
	model := buildModel("tp1", tp, []string{"q1", "q2", "q3"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), ConfigPathTracking)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.JumpTo(2); err != nil {
		t.Fatalf("JumpTo(2): %v", err)
	}

	if ts.Route.Position() != 2 {
		t.Fatalf("expected position 2, got %d", ts.Route.Position())
	}

	if err := ts.MoveBack(); err != nil {
		t.Fatalf("MoveBack: %v", err)
	}

	if ts.Route.Position() != 0 {
		t.Fatalf("expected MoveBack to pop path back to 0, got %d", ts.Route.Position())
	}
}

func TestSimultaneousModeDefersResponseProcessingToTestPartExit(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeSimultaneous}
	itemRefs := []string{"q1", "q2", "q3"}
	items := buildRouteItems("tp1", itemRefs)
	model := buildModel("tp1", tp, itemRefs)

	counts := map[string]int{}
	for _, ref := range itemRefs {
		ref := ref
		model.ResponseProcessing[ref] = func(_ *itemsession.ItemSession) error {
			counts[ref]++

			return nil
		}
	}

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	for i := 0; i < len(itemRefs); i++ {
		if err := ts.BeginAttempt(false); err != nil {
			t.Fatalf("BeginAttempt[%d]: %v", i, err)
		}

		if err := ts.EndAttempt(responsesWith("correct"), false); err != nil {
			t.Fatalf("EndAttempt[%d]: %v", i, err)
		}

		// staged, not yet processed
		for _, ref := range itemRefs[:i+1] {
			if counts[ref] != 0 {
				t.Fatalf("responseProcessing for %s ran before the testPart exited, count=%d", ref, counts[ref])
			}
		}

		if i < len(itemRefs)-1 {
			if err := ts.MoveNext(); err != nil {
				t.Fatalf("MoveNext[%d]: %v", i, err)
			}
		}
	}

	if ts.Pending.Len() != len(itemRefs) {
		t.Fatalf("expected %d pending entries queued before testPart exit, got %d", len(itemRefs), ts.Pending.Len())
	}

	if err := ts.MoveNext(); err != nil {
		t.Fatalf("final MoveNext (testPart exit): %v", err)
	}

	for _, ref := range itemRefs {
		if counts[ref] != 1 {
			t.Errorf("responseProcessing for %s ran %d times, want exactly 1", ref, counts[ref])
		}
	}

	if ts.Pending.Len() != 0 {
		t.Errorf("expected pending queue cleared after deferred processing, got %d entries", ts.Pending.Len())
	}

	if ts.State != qtimodel.TestSessionStateClosed {
		t.Fatalf("expected Closed after the sole testPart's route is exhausted, got %s", ts.State)
	}
}

func TestJumpToRejectedUnderLinearNavigation(t *testing.T) {
	tp := TestPartModel{Identifier: "tp1", NavigationMode: qtimodel.NavigationModeLinear, SubmissionMode: qtimodel.SubmissionModeIndividual}
	items := buildRouteItems("tp1", []string{"q1", "q2"})
	model := buildModel("tp1", tp, []string{"q1", "q2"})

	ts := New("", model, route.NewRoute(items), expression.NewExprEngine(), 0)

	if err := ts.BeginTestSession(); err != nil {
		t.Fatalf("BeginTestSession: %v", err)
	}

	if err := ts.JumpTo(1); !errors.Is(err, ErrNavigationModeViolation) {
		t.Fatalf("expected ErrNavigationModeViolation, got %v", err)
	}
}
