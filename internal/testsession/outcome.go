package testsession

import "github.com/qti-engine/session-engine/internal/qtimodel"

// runOutcomeProcessing resets every global outcome variable to its declared
// default and, if the Model declares outcomeProcessing rules, runs them. It
// is the last step of INDIVIDUAL's endAttempt and SIMULTANEOUS's
// deferredResponseSubmission.
func (ts *TestSession) runOutcomeProcessing() error {
	ts.GlobalOutcomes.ResetOutcomeVariables()

	if ts.Model.OutcomeProcessing != nil {
		if err := ts.Model.OutcomeProcessing(ts); err != nil {
			return wrap(ErrOutcomeProcessingError, ts.Model.Identifier, err)
		}
	}

	return nil
}

// feedbackShouldFire returns the first testFeedback (in Model declaration
// order) whose gating outcome currently matches, scoped to either the test as
// a whole or the current testPart, and eligible at this point (DURING always
// eligible; AT_END only once the test or testPart has actually ended).
func (ts *TestSession) feedbackShouldFire() (*TestFeedback, bool) {
	cur, haveCurrent := ts.Route.Current()

	atTestEnd := !haveCurrent
	atTestPartEnd := haveCurrent && ts.Route.IsLastOfTestPart()

	var testPartID string
	if haveCurrent {
		testPartID = cur.TestPartIdentifier
	}

	for i := range ts.Model.TestFeedbacks {
		fb := ts.Model.TestFeedbacks[i]

		if fb.TestPartIdentifier != "" && fb.TestPartIdentifier != testPartID {
			continue
		}

		if fb.Access == qtimodel.TestFeedbackAccessAtEnd {
			scopedToTest := fb.TestPartIdentifier == ""
			if scopedToTest && !atTestEnd {
				continue
			}

			if !scopedToTest && !atTestPartEnd {
				continue
			}
		}

		val, err := ts.Get(fb.OutcomeIdentifier)
		if err != nil {
			continue
		}

		matched := outcomeMatches(val, fb.Identifier)
		fires := matched

		if fb.ShowHide == qtimodel.ShowHideHide {
			fires = !matched
		}

		if fires {
			return &fb, true
		}
	}

	return nil, false
}

// outcomeMatches reports whether v (a single or multiple/ordered identifier
// value) contains target, the match rule testFeedbackRef gating uses.
func outcomeMatches(v *qtimodel.Value, target string) bool {
	if v == nil || v.IsNull {
		return false
	}

	switch v.Cardinality {
	case qtimodel.CardinalitySingle:
		s, ok := v.Single.(string)

		return ok && s == target
	case qtimodel.CardinalityMultiple, qtimodel.CardinalityOrdered:
		for _, item := range v.Container {
			if s, ok := item.(string); ok && s == target {
				return true
			}
		}

		return false
	default:
		return false
	}
}
