package itemsession

import (
	"errors"
	"testing"
	"time"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

func declarations() []qtimodel.Declaration {
	return []qtimodel.Declaration{
		{Identifier: "RESPONSE", Kind: qtimodel.KindResponse, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeIdentifier},
		{Identifier: "SCORE", Kind: qtimodel.KindOutcome, Cardinality: qtimodel.CardinalitySingle, BaseType: qtimodel.BaseTypeFloat,
			Default: qtimodel.SingleValue(qtimodel.BaseTypeFloat, 0.0)},
	}
}

func newTestSession(control route.ItemSessionControl) *ItemSession {
	return NewItemSession("Q1", 0, declarations(), control, route.TimeLimits{})
}

func responsesWith(id string, bt qtimodel.BaseType, v interface{}) *qtimodel.State {
	s := qtimodel.NewState()
	_ = s.Declare(&qtimodel.Variable{Identifier: id, Kind: qtimodel.KindResponse, Cardinality: qtimodel.CardinalitySingle, BaseType: bt, Value: qtimodel.SingleValue(bt, v)})

	return s
}

func TestBeginItemSessionAppliesDefaults(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1, AllowSkipping: true})

	if err := s.BeginItemSession(); err != nil {
		t.Fatalf("BeginItemSession() unexpected error: %v", err)
	}

	if s.State != qtimodel.ItemSessionStateInitial {
		t.Errorf("State = %v, want Initial", s.State)
	}

	score, err := s.Variables.GetVariable("SCORE")
	if err != nil {
		t.Fatalf("GetVariable(SCORE): %v", err)
	}

	if score.Value.IsNull || score.Value.Single.(float64) != 0.0 {
		t.Errorf("SCORE default not applied: %+v", score.Value)
	}
}

func TestBeginItemSessionWrongState(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1})
	_ = s.BeginItemSession()

	if err := s.BeginItemSession(); !errors.Is(err, ErrStateViolation) {
		t.Errorf("second BeginItemSession() = %v, want ErrStateViolation", err)
	}
}

func TestEndAttemptFullLifecycle(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1, AllowSkipping: true})
	_ = s.BeginItemSession()

	if err := s.BeginAttempt(); err != nil {
		t.Fatalf("BeginAttempt() unexpected error: %v", err)
	}

	responses := responsesWith("RESPONSE", qtimodel.BaseTypeIdentifier, "CORRECT")

	processed := false
	process := func(session *ItemSession) error {
		processed = true

		return session.Variables.SetVariable("SCORE", qtimodel.SingleValue(qtimodel.BaseTypeFloat, 1.0))
	}

	if err := s.EndAttempt(responses, process, false); err != nil {
		t.Fatalf("EndAttempt() unexpected error: %v", err)
	}

	if !processed {
		t.Errorf("responseProcessing was not invoked")
	}

	if s.NumAttempts != 1 {
		t.Errorf("NumAttempts = %d, want 1", s.NumAttempts)
	}

	if s.State != qtimodel.ItemSessionStateClosed {
		t.Errorf("State = %v, want Closed (maxAttempts=1 exhausted)", s.State)
	}

	score, _ := s.Variables.GetVariable("SCORE")
	if score.Value.Single.(float64) != 1.0 {
		t.Errorf("SCORE = %v, want 1.0", score.Value.Single)
	}
}

func TestEndAttemptAllowsMoreAttempts(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 2, AllowSkipping: true})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	if err := s.EndAttempt(responsesWith("RESPONSE", qtimodel.BaseTypeIdentifier, "X"), nil, false); err != nil {
		t.Fatalf("EndAttempt() unexpected error: %v", err)
	}

	if s.State != qtimodel.ItemSessionStateSuspended {
		t.Errorf("State = %v, want Suspended (1 of 2 attempts used)", s.State)
	}

	if err := s.BeginAttempt(); err != nil {
		t.Fatalf("second BeginAttempt() unexpected error: %v", err)
	}

	if err := s.EndAttempt(responsesWith("RESPONSE", qtimodel.BaseTypeIdentifier, "Y"), nil, false); err != nil {
		t.Fatalf("second EndAttempt() unexpected error: %v", err)
	}

	if s.State != qtimodel.ItemSessionStateClosed {
		t.Errorf("State = %v, want Closed (2 of 2 attempts used)", s.State)
	}

	if err := s.BeginAttempt(); !errors.Is(err, ErrAttemptsOverflow) {
		t.Errorf("third BeginAttempt() = %v, want ErrAttemptsOverflow", err)
	}
}

func TestEndAttemptSkippingForbidden(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1, AllowSkipping: false})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	if err := s.EndAttempt(nil, nil, false); !errors.Is(err, ErrSkippingForbidden) {
		t.Errorf("EndAttempt(nil) = %v, want ErrSkippingForbidden", err)
	}
}

func TestEndAttemptInvalidResponse(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1, AllowSkipping: true})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	bogus := responsesWith("NOT_DECLARED", qtimodel.BaseTypeIdentifier, "X")

	if err := s.EndAttempt(bogus, nil, false); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("EndAttempt(undeclared) = %v, want ErrInvalidResponse", err)
	}
}

func TestSuspendIsIdempotent(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	s.Suspend()

	if s.State != qtimodel.ItemSessionStateSuspended {
		t.Fatalf("State = %v, want Suspended", s.State)
	}

	s.Suspend()

	if s.State != qtimodel.ItemSessionStateSuspended {
		t.Errorf("second Suspend() changed state to %v", s.State)
	}
}

func TestEndItemSessionSecondCallViolates(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1})
	_ = s.BeginItemSession()

	if err := s.EndItemSession(); err != nil {
		t.Fatalf("EndItemSession() unexpected error: %v", err)
	}

	if err := s.EndItemSession(); !errors.Is(err, ErrStateViolation) {
		t.Errorf("second EndItemSession() = %v, want ErrStateViolation", err)
	}
}

func TestSetTimeCreditsDurationWhileInteracting(t *testing.T) {
	s := newTestSession(route.ItemSessionControl{MaxAttempts: 1})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetTime(t0)
	s.SetTime(t0.Add(5 * time.Second))

	if s.Duration != 5*time.Second {
		t.Errorf("Duration = %v, want 5s", s.Duration)
	}
}

func TestSetTimeClampsToMaxTime(t *testing.T) {
	max := 10 * time.Second
	s := NewItemSession("Q1", 0, declarations(), route.ItemSessionControl{MaxAttempts: 1}, route.TimeLimits{MaxTime: &max})
	_ = s.BeginItemSession()
	_ = s.BeginAttempt()

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetTime(t0)
	s.SetTime(t0.Add(20 * time.Second))

	if s.Duration != max {
		t.Errorf("Duration = %v, want clamped to %v", s.Duration, max)
	}

	if !s.DurationExceeded() {
		t.Errorf("DurationExceeded() = false, want true")
	}
}
