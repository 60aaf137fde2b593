package itemsession

import (
	"fmt"
	"time"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// completionStatusIdentifier is the well-known outcome variable identifier
// response processing writes to express how far the candidate got.
const completionStatusIdentifier = "completionStatus"

// ResponseProcessingFunc runs an item's responseProcessing rules against its
// current response/outcome/template variables. A nil func passed to
// EndAttempt suppresses processing entirely, which is how SIMULTANEOUS
// submission mode defers it.
type ResponseProcessingFunc func(session *ItemSession) error

// ItemSession is the state machine for one item occurrence: attempts,
// responses, response processing, and duration bookkeeping.
type ItemSession struct {
	ItemRefIdentifier string
	Occurrence        int

	State            qtimodel.ItemSessionState
	Variables        *qtimodel.State
	NumAttempts      int
	CompletionStatus qtimodel.CompletionStatus
	Duration         time.Duration

	ItemSessionControl route.ItemSessionControl
	TimeLimits          route.TimeLimits

	timeReference *time.Time
}

// label identifies this session in error messages using an
// "<itemRefId>.<occurrence>" convention.
func (s *ItemSession) label() string {
	return fmt.Sprintf("%s.%d", s.ItemRefIdentifier, s.Occurrence)
}

// NewItemSession creates a session in NotSelected state for one RouteItem
// occurrence. declarations are used to populate Variables once
// BeginItemSession applies defaults.
func NewItemSession(
	itemRef string,
	occurrence int,
	declarations []qtimodel.Declaration,
	control route.ItemSessionControl,
	limits route.TimeLimits,
) *ItemSession {
	state := qtimodel.NewState()
	for _, decl := range declarations {
		_ = state.Declare(qtimodel.CreateFromDataModel(decl))
	}

	return &ItemSession{
		ItemRefIdentifier:  itemRef,
		Occurrence:         occurrence,
		State:              qtimodel.ItemSessionStateNotSelected,
		Variables:          state,
		CompletionStatus:   qtimodel.CompletionStatusNotAttempted,
		ItemSessionControl: control,
		TimeLimits:         limits,
	}
}

// BeginItemSession transitions NotSelected → Initial and applies every
// declared variable's default value.
func (s *ItemSession) BeginItemSession() error {
	if s.State != qtimodel.ItemSessionStateNotSelected {
		return fmt.Errorf("%w: %s beginItemSession from %s", ErrStateViolation, s.label(), s.State)
	}

	for _, v := range s.Variables.Variables() {
		qtimodel.ApplyDefaultValue(v)
	}

	s.State = qtimodel.ItemSessionStateInitial

	return nil
}

// BeginAttempt transitions Initial/Suspended → Interacting, checked against
// the declared maxAttempts (ErrAttemptsOverflow).
func (s *ItemSession) BeginAttempt() error {
	if s.ItemSessionControl.MaxAttempts > 0 && s.NumAttempts >= s.ItemSessionControl.MaxAttempts {
		return fmt.Errorf("%w: %s has used all %d attempts", ErrAttemptsOverflow, s.label(), s.ItemSessionControl.MaxAttempts)
	}

	if s.State != qtimodel.ItemSessionStateInitial && s.State != qtimodel.ItemSessionStateSuspended {
		return fmt.Errorf("%w: %s beginAttempt from %s", ErrStateViolation, s.label(), s.State)
	}

	s.State = qtimodel.ItemSessionStateInteracting

	return nil
}

// BeginCandidateSession is BeginAttempt's SIMULTANEOUS-mode counterpart: the
// item-level precondition and state checks are identical, only the driver's
// handling of the resulting responses differs.
func (s *ItemSession) BeginCandidateSession() error {
	return s.BeginAttempt()
}

// EndAttempt implements the standard five-step attempt close:
//
//	(a) copy responses into the session's response variables
//	(b) increment numAttempts
//	(c) invoke responseProcessing via process, unless nil
//	(d) update completionStatus from the resulting outcome
//	(e) transition to Suspended (more attempts allowed) or Closed
//
// allowLateSubmission is accepted for parity with the driver-level API and
// is consulted by the driver's own time-limit check before calling this
// method; EndAttempt itself does not re-check duration.
func (s *ItemSession) EndAttempt(responses *qtimodel.State, process ResponseProcessingFunc, allowLateSubmission bool) error {
	_ = allowLateSubmission

	if s.State != qtimodel.ItemSessionStateInteracting {
		return fmt.Errorf("%w: %s endAttempt from %s", ErrStateViolation, s.label(), s.State)
	}

	if err := s.applyResponses(responses); err != nil {
		return err
	}

	s.NumAttempts++

	if process != nil {
		if err := process(s); err != nil {
			return fmt.Errorf("%s response processing: %w", s.label(), err)
		}
	}

	s.updateCompletionStatus(process != nil)

	if s.ItemSessionControl.MaxAttempts == 0 || s.NumAttempts < s.ItemSessionControl.MaxAttempts {
		s.State = qtimodel.ItemSessionStateSuspended
	} else {
		s.State = qtimodel.ItemSessionStateClosed
	}

	return nil
}

// applyResponses copies each (identifier, value) pair in responses into the
// matching declared response variable, rejecting identifiers that aren't
// declared response variables or whose value shape mismatches
// (ErrInvalidResponse) and rejecting an all-null submission when skipping is
// forbidden (ErrSkippingForbidden).
func (s *ItemSession) applyResponses(responses *qtimodel.State) error {
	if responses == nil || len(responses.Variables()) == 0 {
		if !s.ItemSessionControl.AllowSkipping {
			return fmt.Errorf("%w: %s submitted no responses", ErrSkippingForbidden, s.label())
		}

		return nil
	}

	allNull := true

	for _, rv := range responses.Variables() {
		target, err := s.Variables.GetVariable(rv.Identifier)
		if err != nil {
			return fmt.Errorf("%w: %s unknown response variable %q", ErrInvalidResponse, s.label(), rv.Identifier)
		}

		if target.Kind != qtimodel.KindResponse {
			return fmt.Errorf("%w: %s %q is not a response variable", ErrInvalidResponse, s.label(), rv.Identifier)
		}

		if target.Cardinality != rv.Value.Cardinality || target.BaseType != rv.Value.BaseType {
			return fmt.Errorf("%w: %s %q cardinality/baseType mismatch", ErrInvalidResponse, s.label(), rv.Identifier)
		}

		if !rv.Value.IsNull {
			allNull = false
		}

		if err := s.Variables.SetVariable(rv.Identifier, rv.Value.Clone()); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidResponse, s.label(), rv.Identifier, err)
		}
	}

	if allNull && !s.ItemSessionControl.AllowSkipping {
		return fmt.Errorf("%w: %s submitted only null responses", ErrSkippingForbidden, s.label())
	}

	return nil
}

// updateCompletionStatus reads the well-known "completionStatus" outcome
// variable responseProcessing may have written; if it is absent or null, it
// falls back to Completed when processing ran and Unknown otherwise.
func (s *ItemSession) updateCompletionStatus(processed bool) {
	if v, err := s.Variables.GetVariable(completionStatusIdentifier); err == nil && v.Kind == qtimodel.KindOutcome && !v.Value.IsNull {
		if text, ok := v.Value.Single.(string); ok {
			switch text {
			case "completed":
				s.CompletionStatus = qtimodel.CompletionStatusCompleted
			case "incomplete":
				s.CompletionStatus = qtimodel.CompletionStatusIncomplete
			case "notAttempted":
				s.CompletionStatus = qtimodel.CompletionStatusNotAttempted
			default:
				s.CompletionStatus = qtimodel.CompletionStatusUnknown
			}

			return
		}
	}

	if processed {
		s.CompletionStatus = qtimodel.CompletionStatusCompleted
	} else {
		s.CompletionStatus = qtimodel.CompletionStatusUnknown
	}
}

// EndCandidateSession is SIMULTANEOUS mode's attempt close: it copies
// responses and increments numAttempts exactly like EndAttempt, but never
// invokes response processing — that is deferred to the driver's
// deferredResponseSubmission pass once every item in the testPart has
// submitted.
func (s *ItemSession) EndCandidateSession(responses *qtimodel.State) error {
	if s.State != qtimodel.ItemSessionStateInteracting {
		return fmt.Errorf("%w: %s endCandidateSession from %s", ErrStateViolation, s.label(), s.State)
	}

	if err := s.applyResponses(responses); err != nil {
		return err
	}

	s.NumAttempts++

	if s.ItemSessionControl.MaxAttempts == 0 || s.NumAttempts < s.ItemSessionControl.MaxAttempts {
		s.State = qtimodel.ItemSessionStateSuspended
	} else {
		s.State = qtimodel.ItemSessionStateClosed
	}

	return nil
}

// ApplyDeferredProcessing runs process against responses already recorded by
// a prior EndCandidateSession call and updates CompletionStatus accordingly.
// SIMULTANEOUS submission mode calls this once per queued pending response,
// in arrival order, during the driver's deferredResponseSubmission pass.
func (s *ItemSession) ApplyDeferredProcessing(process ResponseProcessingFunc) error {
	if process != nil {
		if err := process(s); err != nil {
			return fmt.Errorf("%s response processing: %w", s.label(), err)
		}
	}

	s.updateCompletionStatus(process != nil)

	return nil
}

// Suspend is idempotent: it only acts when Interacting, so calling it twice
// in a row is a no-op.
func (s *ItemSession) Suspend() {
	if s.State == qtimodel.ItemSessionStateInteracting {
		s.State = qtimodel.ItemSessionStateSuspended
	}
}

// EndItemSession force-closes the session from any non-Closed state.
// Calling it a second time raises ErrStateViolation, mirroring the test
// session's own endTestSession idempotency contract.
func (s *ItemSession) EndItemSession() error {
	if s.State == qtimodel.ItemSessionStateClosed {
		return fmt.Errorf("%w: %s endItemSession already closed", ErrStateViolation, s.label())
	}

	s.State = qtimodel.ItemSessionStateClosed

	return nil
}

// SetTime credits elapsed time since the prior observation to Duration while
// Interacting, then clamps Duration to TimeLimits.MaxTime if one is declared.
// The driver is responsible for closing the session when DurationExceeded
// becomes true; SetTime itself never raises an error — it is a pure
// observation that never has side effects beyond updating the clock.
func (s *ItemSession) SetTime(observation time.Time) {
	if s.State != qtimodel.ItemSessionStateInteracting {
		s.timeReference = &observation

		return
	}

	if s.timeReference != nil {
		delta := observation.Sub(*s.timeReference)
		if delta < 0 {
			delta = -delta
		}

		s.Duration += delta
	}

	if s.TimeLimits.MaxTime != nil && s.Duration > *s.TimeLimits.MaxTime {
		s.Duration = *s.TimeLimits.MaxTime
	}

	s.timeReference = &observation
}

// DurationExceeded reports whether Duration has reached the declared
// maxTime, i.e. whether the scope's remaining time is zero.
func (s *ItemSession) DurationExceeded() bool {
	return s.TimeLimits.MaxTime != nil && s.Duration >= *s.TimeLimits.MaxTime
}

// DurationBelowMinimum reports whether Duration has not yet reached the
// declared minTime.
func (s *ItemSession) DurationBelowMinimum() bool {
	return s.TimeLimits.MinTime != nil && s.Duration < *s.TimeLimits.MinTime
}
