package testsession

import (
	"fmt"
	"time"

	"github.com/qti-engine/session-engine/internal/qtimodel"
)

// durationIdentifier is the well-known local name that addresses a scope's
// accumulated duration.
const durationIdentifier = "duration"

// Get resolves id against the scope hierarchy and returns its current
// value, or a null Value if id is syntactically valid but unbound. Get also
// satisfies expression.Context, letting TestSession be passed directly to
// Engine.Evaluate.
func (ts *TestSession) Get(id string) (*qtimodel.Value, error) {
	parsed, err := qtimodel.ParseIdentifier(id)
	if err != nil {
		return nil, err
	}

	if !parsed.HasPrefix() {
		return ts.getGlobal(parsed.Name()), nil
	}

	prefix := parsed.Prefix()

	if _, isItem := ts.Model.ItemDeclarations[prefix]; isItem {
		return ts.getItemScoped(parsed, prefix), nil
	}

	if _, isScope := ts.Model.TestParts[prefix]; isScope && parsed.Name() == durationIdentifier {
		return durationValue(ts.Duration.Get(prefix)), nil
	}

	if ts.isSectionIdentifier(prefix) && parsed.Name() == durationIdentifier {
		return durationValue(ts.Duration.Get(prefix)), nil
	}

	return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString), nil
}

// getGlobal resolves a prefix-less identifier: the special "duration" name
// (test-level elapsed time) or a global outcome variable.
func (ts *TestSession) getGlobal(name string) *qtimodel.Value {
	if name == durationIdentifier {
		return durationValue(ts.Duration.Get(ts.Model.Identifier))
	}

	v, err := ts.GlobalOutcomes.GetVariable(name)
	if err != nil {
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString)
	}

	return v.Value
}

// getItemScoped resolves the occurrence of an item-prefixed identifier and
// reads name off that occurrence's ItemSession, returning null rather than
// guessing when the occurrence is ambiguous.
func (ts *TestSession) getItemScoped(parsed qtimodel.Identifier, itemRef string) *qtimodel.Value {
	occurrence, ok := ts.resolveOccurrence(parsed, itemRef)
	if !ok {
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString)
	}

	session, ok := ts.Items.GetSession(itemRef, occurrence)
	if !ok {
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString)
	}

	if parsed.Name() == durationIdentifier {
		return durationValue(session.Duration)
	}

	v, err := session.Variables.GetVariable(parsed.Name())
	if err != nil {
		return qtimodel.NullValue(qtimodel.CardinalitySingle, qtimodel.BaseTypeString)
	}

	return v.Value
}

// resolveOccurrence implements the occurrence-selection rule: explicit N
// when given; else the last-updated occurrence; else 0 — except in
// INDIVIDUAL submission mode, where an absent lastOccurrenceUpdate entry
// yields "no occurrence" (the caller returns null) rather than defaulting
// to 0, since there is no other item occurrence an unqualified reference
// could mean in that mode.
func (ts *TestSession) resolveOccurrence(parsed qtimodel.Identifier, itemRef string) (int, bool) {
	if parsed.HasSequenceNumber() {
		return parsed.SequenceNumber() - 1, true
	}

	if occ, ok := ts.LastOccurrenceUpdate[itemRef]; ok {
		return occ, true
	}

	if ts.itemSubmissionMode(itemRef) == qtimodel.SubmissionModeIndividual {
		return 0, false
	}

	return 0, true
}

// itemSubmissionMode looks up the submission mode of the testPart
// containing itemRef's first occurrence in the Route.
func (ts *TestSession) itemSubmissionMode(itemRef string) qtimodel.SubmissionMode {
	items := ts.Route.GetRouteItemsByAssessmentItemRef(itemRef)
	if len(items) == 0 {
		return qtimodel.SubmissionModeIndividual
	}

	return ts.Model.TestParts[items[0].TestPartIdentifier].SubmissionMode
}

// isSectionIdentifier reports whether id names an assessmentSection
// somewhere in the Route.
func (ts *TestSession) isSectionIdentifier(id string) bool {
	return len(ts.Route.GetRouteItemsByAssessmentSection(id)) > 0
}

// durationValue wraps d as a single, non-null BaseTypeDuration Value.
func durationValue(d time.Duration) *qtimodel.Value {
	return qtimodel.SingleValue(qtimodel.BaseTypeDuration, d)
}

// Set writes value to the variable id addresses. Only already-declared
// variables are writable; an unrecognized target raises ErrUnknownVariable
// wrapped in a *TestSessionError.
func (ts *TestSession) Set(id string, value *qtimodel.Value) error {
	parsed, err := qtimodel.ParseIdentifier(id)
	if err != nil {
		return err
	}

	if !parsed.HasPrefix() {
		if err := ts.GlobalOutcomes.SetVariable(parsed.Name(), value); err != nil {
			return wrap(ErrUnknownVariable, id, err)
		}

		return nil
	}

	prefix := parsed.Prefix()

	if _, isItem := ts.Model.ItemDeclarations[prefix]; isItem {
		occurrence, ok := ts.resolveOccurrence(parsed, prefix)
		if !ok {
			return wrap(ErrUnknownVariable, id, fmt.Errorf("no addressable occurrence for %s", prefix))
		}

		session, ok := ts.Items.GetSession(prefix, occurrence)
		if !ok {
			return wrap(ErrUnknownVariable, id, fmt.Errorf("no session at %s.%d", prefix, occurrence))
		}

		if err := session.Variables.SetVariable(parsed.Name(), value); err != nil {
			return wrap(ErrUnknownVariable, id, err)
		}

		return nil
	}

	return wrap(ErrUnknownVariable, id, nil)
}

// Unset clears a global variable's value to null. Item- or scope-prefixed
// identifiers cannot be unset through this call; a prefixed id raises
// ErrOutOfScope.
func (ts *TestSession) Unset(id string) error {
	parsed, err := qtimodel.ParseIdentifier(id)
	if err != nil {
		return err
	}

	if parsed.HasPrefix() {
		return wrap(ErrOutOfScope, id, nil)
	}

	if err := ts.GlobalOutcomes.UnsetVariable(parsed.Name()); err != nil {
		return wrap(ErrUnknownVariable, id, err)
	}

	return nil
}
