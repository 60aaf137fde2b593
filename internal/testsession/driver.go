package testsession

import (
	"errors"
	"fmt"

	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/pending"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// BeginTestSession transitions Initial → Interacting: zero-initializes every
// scope's duration accumulator, runs selectEligibleItems, and marks the
// starting testPart visited.
func (ts *TestSession) BeginTestSession() error {
	if ts.State != qtimodel.TestSessionStateInitial {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("beginTestSession from %s", ts.State))
	}

	ts.initializeTestDurations()

	if err := ts.selectEligibleItems(); err != nil {
		return err
	}

	ts.State = qtimodel.TestSessionStateInteracting
	ts.testPartVisit()

	return nil
}

// initializeTestDurations zero-initializes the test's own accumulator and
// every testPart's and section's, so Duration.Get never silently fabricates
// an entry the codec hasn't seen before.
func (ts *TestSession) initializeTestDurations() {
	ts.Duration.Get(ts.Model.Identifier)

	for id := range ts.Model.TestParts {
		ts.Duration.Get(id)
	}

	for _, ri := range ts.Route.Items() {
		for _, section := range ri.SectionIdentifiers {
			ts.Duration.Get(section)
		}
	}
}

// EndTestSession closes the session: flushes any pending SIMULTANEOUS
// responses, submits test results if configured, force-closes every
// still-open ItemSession, then transitions to Closed. Idempotent only in the
// sense that it always reaches Closed; a second call raises StateViolation so
// a double-close reads as a caller bug rather than a silent no-op.
func (ts *TestSession) EndTestSession() error {
	if ts.State == qtimodel.TestSessionStateClosed {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("endTestSession already closed"))
	}

	if ts.Pending.Len() > 0 {
		if err := ts.deferredResponseSubmission(); err != nil {
			return err
		}
	}

	if ts.SubmissionPolicy == ResultSubmissionOnOutcomeProcessing && ts.Submitter != nil {
		if err := ts.Submitter.SubmitTestResults(ts); err != nil {
			return wrap(ErrResultSubmissionError, ts.Model.Identifier, err)
		}
	}

	for _, s := range ts.Items.All() {
		if s.State != qtimodel.ItemSessionStateClosed {
			if err := s.EndItemSession(); err != nil {
				return wrap(ErrLogicError, ts.SessionID, err)
			}
		}
	}

	ts.State = qtimodel.TestSessionStateClosed

	return nil
}

// BeginAttempt requires Interacting, checks time limits at test/testPart/
// section scope (never item scope, and only when !allowLateSubmission), runs
// templateProcessing on the first attempt under LINEAR navigation, then
// delegates to the current ItemSession's beginAttempt/beginCandidateSession
// depending on the testPart's submission mode.
func (ts *TestSession) BeginAttempt(allowLateSubmission bool) error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("beginAttempt from %s", ts.State))
	}

	cur, ok := ts.Route.Current()
	if !ok {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("route exhausted"))
	}

	if !allowLateSubmission {
		if err := ts.checkTimeLimits(false, false); err != nil {
			return err
		}
	}

	tp := ts.Model.TestParts[cur.TestPartIdentifier]

	session, ok := ts.Items.GetSession(cur.ItemRefIdentifier, cur.Occurrence)
	if !ok {
		return wrap(ErrLogicError, cur.ItemRefIdentifier, fmt.Errorf("no item session selected for %s.%d", cur.ItemRefIdentifier, cur.Occurrence))
	}

	if tp.NavigationMode == qtimodel.NavigationModeLinear && session.NumAttempts == 0 {
		if tmpl := ts.Model.TemplateProcessing[cur.ItemRefIdentifier]; tmpl != nil {
			if err := tmpl(session, ts.Engine); err != nil {
				return wrap(ErrLogicError, cur.ItemRefIdentifier, err)
			}
		}
	}

	var err error
	if tp.SubmissionMode == qtimodel.SubmissionModeSimultaneous {
		err = session.BeginCandidateSession()
	} else {
		err = session.BeginAttempt()
	}

	if err != nil {
		return ts.mapItemError(cur.ItemRefIdentifier, cur.Occurrence, err)
	}

	return nil
}

// EndAttempt requires Interacting, checks time limits including item scope
// and the minimum-time floor (unless allowLateSubmission), then either stages
// the responses for SIMULTANEOUS submission or runs responseProcessing,
// submits item results, and runs outcome processing for INDIVIDUAL.
func (ts *TestSession) EndAttempt(responses *qtimodel.State, allowLateSubmission bool) error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("endAttempt from %s", ts.State))
	}

	cur, ok := ts.Route.Current()
	if !ok {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("route exhausted"))
	}

	if !allowLateSubmission {
		if err := ts.checkTimeLimits(true, true); err != nil {
			return err
		}
	}

	tp := ts.Model.TestParts[cur.TestPartIdentifier]

	session, ok := ts.Items.GetSession(cur.ItemRefIdentifier, cur.Occurrence)
	if !ok {
		return wrap(ErrLogicError, cur.ItemRefIdentifier, fmt.Errorf("no item session selected for %s.%d", cur.ItemRefIdentifier, cur.Occurrence))
	}

	if tp.SubmissionMode == qtimodel.SubmissionModeSimultaneous {
		if err := session.EndCandidateSession(responses); err != nil {
			return ts.mapItemError(cur.ItemRefIdentifier, cur.Occurrence, err)
		}

		ts.Pending.AddPending(buildPendingResponse(cur, responses))
		ts.LastOccurrenceUpdate[cur.ItemRefIdentifier] = cur.Occurrence

		return nil
	}

	process := ts.Model.ResponseProcessing[cur.ItemRefIdentifier]
	if err := session.EndAttempt(responses, process, allowLateSubmission); err != nil {
		return ts.mapItemError(cur.ItemRefIdentifier, cur.Occurrence, err)
	}

	ts.LastOccurrenceUpdate[cur.ItemRefIdentifier] = cur.Occurrence

	if ts.Submitter != nil {
		if err := ts.Submitter.SubmitItemResults(session); err != nil {
			return wrap(ErrResultSubmissionError, fmt.Sprintf("%s.%d", cur.ItemRefIdentifier, cur.Occurrence), err)
		}
	}

	return ts.runOutcomeProcessing()
}

// MoveNext requires Interacting or ModalFeedback. From ModalFeedback it only
// dismisses the feedback screen, returning to Interacting; otherwise it
// suspends the current item, checks whether a testFeedback now fires, and if
// not advances the Route via nextRouteItem.
func (ts *TestSession) MoveNext() error {
	if ts.State != qtimodel.TestSessionStateInteracting && ts.State != qtimodel.TestSessionStateModalFeedback {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("moveNext from %s", ts.State))
	}

	if ts.State == qtimodel.TestSessionStateModalFeedback {
		ts.State = qtimodel.TestSessionStateInteracting

		return nil
	}

	ts.suspendCurrentItem()

	if _, fires := ts.feedbackShouldFire(); fires {
		ts.State = qtimodel.TestSessionStateModalFeedback

		return nil
	}

	if ts.Config.Has(ConfigPathTracking) {
		ts.Path = append(ts.Path, ts.Route.Position())
	}

	if err := ts.nextRouteItem(false, false); err != nil {
		return err
	}

	if ts.State == qtimodel.TestSessionStateClosed {
		return nil
	}

	ts.interactWithItemSession()
	ts.testPartVisit()

	return nil
}

// MoveBack requires Interacting and NonLinear navigation (or
// ALWAYS_ALLOW_JUMPS). With PATH_TRACKING it pops the last recorded position;
// otherwise it simply steps the Route cursor back one place.
func (ts *TestSession) MoveBack() error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("moveBack from %s", ts.State))
	}

	tp, _ := ts.currentTestPart()
	if tp.NavigationMode != qtimodel.NavigationModeNonLinear && !ts.Config.Has(ConfigAlwaysAllowJumps) {
		return wrap(ErrNavigationModeViolation, ts.SessionID, nil)
	}

	ts.suspendCurrentItem()

	if ts.Config.Has(ConfigPathTracking) {
		if len(ts.Path) == 0 {
			return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("no path history to move back to"))
		}

		target := ts.Path[len(ts.Path)-1]
		ts.Path = ts.Path[:len(ts.Path)-1]

		if err := ts.Route.SetPosition(target); err != nil {
			return wrap(ErrForbiddenJump, ts.SessionID, err)
		}
	} else if err := ts.Route.Previous(); err != nil {
		return wrap(ErrStateViolation, ts.SessionID, err)
	}

	ts.interactWithItemSession()
	ts.testPartVisit()

	return nil
}

// JumpTo requires Interacting and NonLinear navigation (or
// ALWAYS_ALLOW_JUMPS). It relocates the cursor directly, re-runs
// selectEligibleItems for the new position, and — if that fails — rolls the
// cursor back so a failed jump leaves the session exactly as it was.
func (ts *TestSession) JumpTo(position int) error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("jumpTo from %s", ts.State))
	}

	tp, _ := ts.currentTestPart()
	if tp.NavigationMode != qtimodel.NavigationModeNonLinear && !ts.Config.Has(ConfigAlwaysAllowJumps) {
		return wrap(ErrNavigationModeViolation, ts.SessionID, nil)
	}

	previous := ts.Route.Position()

	ts.suspendCurrentItem()

	if err := ts.Route.SetPosition(position); err != nil {
		return wrap(ErrForbiddenJump, ts.SessionID, err)
	}

	if err := ts.selectEligibleItems(); err != nil {
		_ = ts.Route.SetPosition(previous)

		return err
	}

	if ts.Config.Has(ConfigPathTracking) {
		truncated := false

		for i, p := range ts.Path {
			if p == position {
				ts.Path = ts.Path[:i]
				truncated = true

				break
			}
		}

		if !truncated {
			ts.Path = append(ts.Path, previous)
		}
	}

	ts.interactWithItemSession()
	ts.testPartVisit()

	return nil
}

// MoveNextTestPart advances the cursor past every RouteItem sharing the
// current testPart, ending the session if the Route is exhausted.
func (ts *TestSession) MoveNextTestPart() error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("moveNextTestPart from %s", ts.State))
	}

	ts.suspendCurrentItem()

	return ts.exitTestPart()
}

// MoveNextAssessmentSection advances the cursor past every RouteItem sharing
// the current innermost section, ending the session if the Route is
// exhausted.
func (ts *TestSession) MoveNextAssessmentSection() error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		return wrap(ErrStateViolation, ts.SessionID, fmt.Errorf("moveNextAssessmentSection from %s", ts.State))
	}

	ts.suspendCurrentItem()

	return ts.exitSection()
}

// Suspend suspends the current item session in place, leaving the Route
// cursor and TestSessionState untouched. Calling it with no current item is a
// no-op.
func (ts *TestSession) Suspend() {
	ts.suspendCurrentItem()
}

// suspendCurrentItem suspends the ItemSession at the cursor, if any.
func (ts *TestSession) suspendCurrentItem() {
	cur, ok := ts.Route.Current()
	if !ok {
		return
	}

	if s, ok := ts.Items.GetSession(cur.ItemRefIdentifier, cur.Occurrence); ok {
		s.Suspend()
	}
}

// interactWithItemSession is a hook for observers that need to know the
// candidate is now looking at the RouteItem the cursor rests on. The core
// model tracks no per-item "visible" flag, so this is presently a no-op
// reserved for a future rendering layer.
func (ts *TestSession) interactWithItemSession() {}

// testPartVisit marks the testPart at the cursor visited.
func (ts *TestSession) testPartVisit() {
	if cur, ok := ts.Route.Current(); ok {
		ts.markTestPartVisited(cur.TestPartIdentifier)
	}
}

// initItemSession creates and begins the ItemSession for ri, if one does not
// already occupy that slot, then carries forward the driver's time reference
// so the new session's first SetTime call doesn't credit a spurious delta
// from epoch.
func (ts *TestSession) initItemSession(ri route.RouteItem) error {
	if ts.Items.HasSession(ri.ItemRefIdentifier, ri.Occurrence) {
		return nil
	}

	decls := ts.Model.ItemDeclarations[ri.ItemRefIdentifier]

	s := itemsession.NewItemSession(ri.ItemRefIdentifier, ri.Occurrence, decls, ri.ItemSessionControl, ri.TimeLimits)
	if err := s.BeginItemSession(); err != nil {
		return wrap(ErrLogicError, ri.ItemRefIdentifier, err)
	}

	if ts.timeReference != nil {
		s.SetTime(*ts.timeReference)
	}

	if err := ts.Items.AddSession(s, ri.Occurrence); err != nil {
		return wrap(ErrLogicError, ri.ItemRefIdentifier, err)
	}

	return nil
}

// mapItemError maps an ItemSession sentinel error onto the closest
// TestSessionError code, so a fault raised deep in an ItemSession still
// surfaces through the driver's own closed error taxonomy.
func (ts *TestSession) mapItemError(itemRef string, occurrence int, err error) error {
	label := fmt.Sprintf("%s.%d", itemRef, occurrence)

	switch {
	case errors.Is(err, itemsession.ErrStateViolation):
		return wrap(ErrStateViolation, label, err)
	case errors.Is(err, itemsession.ErrDurationOverflow):
		return wrap(ErrItemDurationOverflow, label, err)
	case errors.Is(err, itemsession.ErrDurationUnderflow):
		return wrap(ErrItemDurationUnderflow, label, err)
	default:
		return wrap(ErrLogicError, label, err)
	}
}

// buildPendingResponse copies ri's addressing into a pending.Response ready
// for the Pending store.
func buildPendingResponse(ri route.RouteItem, responses *qtimodel.State) pending.Response {
	return pending.Response{ItemRefIdentifier: ri.ItemRefIdentifier, Occurrence: ri.Occurrence, Responses: responses}
}
