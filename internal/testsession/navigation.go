package testsession

import (
	"fmt"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// selectEligibleItems decides which RouteItems get an ItemSession: with
// INITIALIZE_ALL_ITEMS set, every
// RouteItem gets a session up front. Otherwise an adaptive testPart only ever
// selects its current RouteItem; a non-adaptive test initializes the whole
// Route the first time its first testPart is entered; a non-adaptive testPart
// initializes all of its own RouteItems the first time it is entered.
func (ts *TestSession) selectEligibleItems() error {
	if ts.Config.Has(ConfigInitializeAllItems) {
		for _, ri := range ts.Route.Items() {
			if err := ts.initItemSession(ri); err != nil {
				return err
			}
		}

		return nil
	}

	cur, ok := ts.Route.Current()
	if !ok {
		return nil
	}

	testAdaptive := false

	for _, tp := range ts.Model.TestParts {
		if tp.IsAdaptive {
			testAdaptive = true

			break
		}
	}

	firstTestPart := cur.TestPartIdentifier
	if len(ts.Model.TestPartOrder) > 0 {
		firstTestPart = ts.Model.TestPartOrder[0]
	}

	curTestPart := ts.Model.TestParts[cur.TestPartIdentifier]

	switch {
	case !testAdaptive && !ts.VisitedTestParts[firstTestPart]:
		for _, ri := range ts.Route.Items() {
			if err := ts.initItemSession(ri); err != nil {
				return err
			}
		}
	case curTestPart.IsAdaptive:
		return ts.initItemSession(cur)
	case !ts.VisitedTestParts[cur.TestPartIdentifier]:
		for _, ri := range ts.Route.GetRouteItemsByTestPart(cur.TestPartIdentifier) {
			if err := ts.initItemSession(ri); err != nil {
				return err
			}
		}
	}

	return nil
}

// nextRouteItem flushes SIMULTANEOUS responses if leaving the testPart,
// then repeatedly advances the cursor — taking the first
// matching branchRule instead of a plain step when branching is in force —
// skipping over any RouteItem whose preConditions fail, until a stopping
// RouteItem is found or the Route is exhausted.
func (ts *TestSession) nextRouteItem(ignoreBranching, ignorePreconditions bool) error {
	if cur, ok := ts.Route.Current(); ok {
		tp := ts.Model.TestParts[cur.TestPartIdentifier]
		if ts.Route.IsLastOfTestPart() && tp.SubmissionMode == qtimodel.SubmissionModeSimultaneous {
			if err := ts.deferredResponseSubmission(); err != nil {
				return err
			}
		}
	}

	for {
		cur, ok := ts.Route.Current()
		if !ok {
			break
		}

		branched := false

		if !ignoreBranching && len(cur.BranchRules) > 0 {
			tp := ts.Model.TestParts[cur.TestPartIdentifier]

			if tp.NavigationMode == qtimodel.NavigationModeLinear || ts.Config.Has(ConfigForceBranching) {
				target, matched, err := ts.evaluateBranchRules(cur)
				if err != nil {
					return err
				}

				if matched {
					stop, err := ts.handleBranchTarget(target)
					if err != nil {
						return err
					}

					if stop {
						return nil
					}

					branched = true
				}
			}
		}

		if !branched {
			if err := ts.Route.Next(); err != nil {
				break
			}
		}

		ignoreBranching = true

		newCur, ok := ts.Route.Current()
		if !ok {
			break
		}

		if ignorePreconditions {
			break
		}

		pass, err := ts.checkPreconditions(newCur)
		if err != nil {
			return err
		}

		if pass {
			break
		}
	}

	if _, ok := ts.Route.Current(); !ok {
		if ts.State == qtimodel.TestSessionStateInteracting {
			return ts.EndTestSession()
		}

		return nil
	}

	return ts.selectEligibleItems()
}

// evaluateBranchRules returns the target of the first branchRule on ri whose
// condition evaluates to a non-null, true boolean.
func (ts *TestSession) evaluateBranchRules(ri route.RouteItem) (string, bool, error) {
	for _, br := range ri.BranchRules {
		val, err := ts.Engine.Evaluate(br.Condition, ts)
		if err != nil {
			return "", false, wrap(ErrLogicError, ri.ItemRefIdentifier, err)
		}

		if isTrue(val) {
			return br.Target, true, nil
		}
	}

	return "", false, nil
}

// handleBranchTarget intercepts the three special targets the Route package
// never resolves itself; any other target is an ordinary Route.Branch call.
// stop reports whether the branch fully resolved the navigation operation
// (EXIT_* delegates to endTestSession/exitTestPart/exitSection, which already
// call selectEligibleItems or close the session).
func (ts *TestSession) handleBranchTarget(target string) (bool, error) {
	switch target {
	case route.ExitTest:
		return true, ts.EndTestSession()
	case route.ExitTestPart:
		return true, ts.exitTestPart()
	case route.ExitSection:
		return true, ts.exitSection()
	default:
		if err := ts.Route.Branch(target); err != nil {
			return true, wrap(ErrForbiddenJump, target, err)
		}

		return false, nil
	}
}

// checkPreconditions evaluates the preConditions in force for ri: its own
// effective preConditions under LINEAR navigation (or with
// FORCE_PRECONDITIONS set), otherwise its testPart's own preConditions only.
func (ts *TestSession) checkPreconditions(ri route.RouteItem) (bool, error) {
	tp := ts.Model.TestParts[ri.TestPartIdentifier]

	var conditions []route.PreCondition

	if tp.NavigationMode == qtimodel.NavigationModeLinear || ts.Config.Has(ConfigForcePreconditions) {
		conditions = ri.PreConditions
	} else {
		conditions = tp.PreConditions
	}

	for _, pc := range conditions {
		val, err := ts.Engine.Evaluate(pc.Condition, ts)
		if err != nil {
			return false, wrap(ErrLogicError, ri.ItemRefIdentifier, err)
		}

		if !isTrue(val) {
			return false, nil
		}
	}

	return true, nil
}

// isTrue reports whether val is a non-null, single-cardinality boolean true.
func isTrue(val *qtimodel.Value) bool {
	if val == nil || val.IsNull || val.Cardinality != qtimodel.CardinalitySingle {
		return false
	}

	b, ok := val.Single.(bool)

	return ok && b
}

// exitTestPart advances the cursor past every RouteItem sharing the current
// testPart, ending the session if the Route is exhausted.
func (ts *TestSession) exitTestPart() error {
	cur, ok := ts.Route.Current()
	if !ok {
		return ts.EndTestSession()
	}

	tpID := cur.TestPartIdentifier

	for {
		if err := ts.Route.Next(); err != nil {
			break
		}

		nc, ok := ts.Route.Current()
		if !ok || nc.TestPartIdentifier != tpID {
			break
		}
	}

	if _, ok := ts.Route.Current(); !ok {
		return ts.EndTestSession()
	}

	return ts.selectEligibleItems()
}

// exitSection advances the cursor past every RouteItem sharing the current
// innermost section, ending the session if the Route is exhausted.
func (ts *TestSession) exitSection() error {
	cur, ok := ts.Route.Current()
	if !ok || len(cur.SectionIdentifiers) == 0 {
		return ts.EndTestSession()
	}

	section := cur.SectionIdentifiers[len(cur.SectionIdentifiers)-1]

	for {
		if err := ts.Route.Next(); err != nil {
			break
		}

		nc, ok := ts.Route.Current()
		if !ok {
			break
		}

		if len(nc.SectionIdentifiers) == 0 || nc.SectionIdentifiers[len(nc.SectionIdentifiers)-1] != section {
			break
		}
	}

	if _, ok := ts.Route.Current(); !ok {
		return ts.EndTestSession()
	}

	return ts.selectEligibleItems()
}

// deferredResponseSubmission implements SIMULTANEOUS submission mode's
// testPart-end flush: runs responseProcessing for every queued entry in
// arrival order, runs outcome processing once, optionally submits test
// results, then clears the queue.
func (ts *TestSession) deferredResponseSubmission() error {
	for _, pr := range ts.Pending.All() {
		session, ok := ts.Items.GetSession(pr.ItemRefIdentifier, pr.Occurrence)
		if !ok {
			continue
		}

		process := ts.Model.ResponseProcessing[pr.ItemRefIdentifier]

		if err := session.ApplyDeferredProcessing(process); err != nil {
			label := fmt.Sprintf("%s.%d", pr.ItemRefIdentifier, pr.Occurrence)

			return wrap(ErrResponseProcessingError, label, err)
		}

		ts.LastOccurrenceUpdate[pr.ItemRefIdentifier] = pr.Occurrence
	}

	if err := ts.runOutcomeProcessing(); err != nil {
		return err
	}

	if ts.SubmissionPolicy == ResultSubmissionOnOutcomeProcessing && ts.Submitter != nil {
		if err := ts.Submitter.SubmitTestResults(ts); err != nil {
			return wrap(ErrResultSubmissionError, ts.Model.Identifier, err)
		}
	}

	ts.Pending.Clear()

	return nil
}
