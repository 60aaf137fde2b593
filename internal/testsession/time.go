package testsession

import (
	"fmt"
	"time"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// SetTime credits the elapsed time since the prior observation to the test,
// current testPart, and current section accumulators, propagates the
// observation to every live ItemSession, then clamps and closes any scope
// whose maxTime has been reached. Outside Interacting it only
// records the reference observation, matching ItemSession.SetTime's
// observation-only behavior while not yet started.
func (ts *TestSession) SetTime(observation time.Time) error {
	if ts.State != qtimodel.TestSessionStateInteracting {
		ts.timeReference = &observation

		return nil
	}

	var delta time.Duration

	if ts.timeReference != nil {
		delta = observation.Sub(*ts.timeReference)
		if delta < 0 {
			delta = -delta
		}
	}

	ts.Duration.Add(ts.Model.Identifier, delta)

	cur, ok := ts.Route.Current()

	var tp TestPartModel

	if ok {
		tp = ts.Model.TestParts[cur.TestPartIdentifier]
		ts.Duration.Add(cur.TestPartIdentifier, delta)

		for _, section := range cur.SectionIdentifiers {
			ts.Duration.Add(section, delta)
		}
	}

	for _, s := range ts.Items.All() {
		s.SetTime(observation)
	}

	ts.timeReference = &observation

	return ts.clampAndCloseExpiredScopes(cur, tp, ok)
}

// clampAndCloseExpiredScopes clamps each in-force maxTime scope to its limit
// and, for scopes that have reached it, triggers the matching close: the
// whole test session for the test-level constraint, every ItemSession in the
// current testPart for the testPart-level constraint. Section-level
// constraints are not separately enforced: RouteItem carries a single
// already-merged effective TimeLimits, not one per section in its chain, so
// there is no independent section-scoped limit to clamp here.
func (ts *TestSession) clampAndCloseExpiredScopes(cur route.RouteItem, tp TestPartModel, haveCurrent bool) error {
	if limits := ts.Model.TestTimeLimits; limits.MaxTime != nil {
		d := ts.clamp(ts.Model.Identifier, *limits.MaxTime)
		if d >= *limits.MaxTime {
			return ts.EndTestSession()
		}
	}

	if !haveCurrent {
		return nil
	}

	if limits := tp.TimeLimits; limits.MaxTime != nil {
		d := ts.clamp(cur.TestPartIdentifier, *limits.MaxTime)
		if d >= *limits.MaxTime {
			return ts.closeTestPartItems(cur.TestPartIdentifier)
		}
	}

	return nil
}

// clamp caps identifier's accumulated duration at max, returning the
// (possibly clamped) value.
func (ts *TestSession) clamp(identifier string, max time.Duration) time.Duration {
	d := ts.Duration.Get(identifier)
	if d > max {
		ts.Duration.Set(identifier, max)

		return max
	}

	return d
}

// closeTestPartItems force-closes every still-open ItemSession belonging to
// testPart id, used when that testPart's own maxTime has been reached.
func (ts *TestSession) closeTestPartItems(id string) error {
	for _, ri := range ts.Route.GetRouteItemsByTestPart(id) {
		s, ok := ts.Items.GetSession(ri.ItemRefIdentifier, ri.Occurrence)
		if !ok || s.State == qtimodel.ItemSessionStateClosed {
			continue
		}

		if err := s.EndItemSession(); err != nil {
			return wrap(ErrLogicError, id, err)
		}
	}

	return nil
}

// checkTimeLimits enforces every in-force maxTime (overflow, always checked
// unless the constraint itself allows late submission) and, when
// includeMinTime is set and navigation is LINEAR, every in-force minTime
// (underflow) at test, testPart, and — when includeAssessmentItem is set —
// item scope.
func (ts *TestSession) checkTimeLimits(includeMinTime, includeAssessmentItem bool) error {
	cur, ok := ts.Route.Current()

	var tp TestPartModel
	if ok {
		tp = ts.Model.TestParts[cur.TestPartIdentifier]
	}

	checkMinLinear := includeMinTime && tp.NavigationMode == qtimodel.NavigationModeLinear

	if err := checkScopeLimits(ts.Model.TestTimeLimits, ts.Duration.Get(ts.Model.Identifier), checkMinLinear,
		ErrTestDurationOverflow, ErrTestDurationUnderflow, ts.Model.Identifier); err != nil {
		return err
	}

	if !ok {
		return nil
	}

	if err := checkScopeLimits(tp.TimeLimits, ts.Duration.Get(cur.TestPartIdentifier), checkMinLinear,
		ErrTestPartDurationOverflow, ErrTestPartDurationUnderflow, cur.TestPartIdentifier); err != nil {
		return err
	}

	if !includeAssessmentItem {
		return nil
	}

	session, ok := ts.Items.GetSession(cur.ItemRefIdentifier, cur.Occurrence)
	if !ok {
		return nil
	}

	label := fmt.Sprintf("%s.%d", cur.ItemRefIdentifier, cur.Occurrence)

	return checkScopeLimits(session.TimeLimits, session.Duration, checkMinLinear,
		ErrItemDurationOverflow, ErrItemDurationUnderflow, label)
}

// checkScopeLimits is the single overflow/underflow test every scope in
// checkTimeLimits runs.
func checkScopeLimits(limits route.TimeLimits, elapsed time.Duration, checkMin bool, overflow, underflow error, scopeID string) error {
	if limits.MaxTime != nil && !limits.AllowLateSubmission && elapsed >= *limits.MaxTime {
		return wrap(overflow, scopeID, nil)
	}

	if checkMin && limits.MinTime != nil && elapsed < *limits.MinTime {
		return wrap(underflow, scopeID, nil)
	}

	return nil
}
