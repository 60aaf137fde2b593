// Package route provides the flattened, ordered sequence of item occurrences
// a candidate session walks, plus the model fragments a RouteItem needs
// (branch rules, preconditions, time limits, item session control) obtained
// by walking the assessmentSection chain at route-construction time.
//
// Route construction itself — expanding an AssessmentTest's selection and
// ordering rules into this flattened sequence — is out of scope here:
// callers build a []RouteItem externally and hand it to NewRoute.
package route

import (
	"errors"
	"fmt"
	"time"
)

// ErrRouteOutOfBounds indicates a navigation operation tried to move the
// cursor outside [0, len(items)].
var ErrRouteOutOfBounds = errors.New("route position out of bounds")

// Special branch targets recognized by the test session driver.
const (
	ExitTest     = "EXIT_TEST"
	ExitTestPart = "EXIT_TESTPART"
	ExitSection  = "EXIT_SECTION"
)

type (
	// Expression is an opaque, engine-agnostic expression handle. The route
	// package never interprets it; it is only ever handed to the
	// ExpressionEngine interface for evaluation.
	Expression interface{}

	// BranchRule is a branchRule attached to a RouteItem or testPart:
	// "if Condition evaluates true, jump to Target".
	BranchRule struct {
		Target    string
		Condition Expression
	}

	// PreCondition is a boolean gate attached to a RouteItem or testPart: the
	// item/testPart is only entered if Condition evaluates true.
	PreCondition struct {
		Condition Expression
	}

	// ItemSessionControl carries the itemSessionControl attributes effective
	// for a RouteItem, inherited by walking the containing section chain.
	ItemSessionControl struct {
		MaxAttempts       int // 0 means unlimited
		ShowFeedback      bool
		AllowComment      bool
		AllowSkipping     bool
		ValidateResponses bool
	}

	// TimeLimits carries the min/max time constraint effective at some scope
	// (item, section, testPart, or test).
	TimeLimits struct {
		MinTime             *time.Duration
		MaxTime             *time.Duration
		AllowLateSubmission bool
	}

	// RouteItem is an immutable (itemRef, occurrence, containing testPart,
	// containing section chain) triple enriched with the effective
	// preConditions/branchRules/itemSessionControl/timeLimits obtained by
	// walking the section chain. Occurrences within one itemRef are dense
	// integers starting at 0.
	RouteItem struct {
		ItemRefIdentifier  string
		Occurrence         int
		TestPartIdentifier string
		// SectionIdentifiers is the containing assessmentSection chain,
		// outermost first.
		SectionIdentifiers []string
		PreConditions      []PreCondition
		BranchRules        []BranchRule
		ItemSessionControl ItemSessionControl
		TimeLimits         TimeLimits
	}
)

// MatchesIdentifier reports whether id names this RouteItem's item, any
// section in its chain, or its testPart — the match rule used by Route.branch
// and by Route.getRouteItemsBy*.
func (ri RouteItem) MatchesIdentifier(id string) bool {
	if ri.ItemRefIdentifier == id || ri.TestPartIdentifier == id {
		return true
	}

	for _, s := range ri.SectionIdentifiers {
		if s == id {
			return true
		}
	}

	return false
}

// Route is a finite ordered sequence of RouteItems with a cursor. The
// sequence itself is never mutated during a session; only the cursor moves.
type Route struct {
	items    []RouteItem
	position int
}

// NewRoute builds a Route over the given materialized RouteItem sequence,
// cursor positioned on the first item (position 0).
func NewRoute(items []RouteItem) *Route {
	return &Route{items: items}
}

// Count returns the number of RouteItems.
func (r *Route) Count() int { return len(r.items) }

// Items returns every RouteItem in Route order. Callers must not mutate the
// returned slice's elements in place beyond their own copies; Route's
// sequence itself never changes after construction.
func (r *Route) Items() []RouteItem {
	items := make([]RouteItem, len(r.items))
	copy(items, r.items)

	return items
}

// Position returns the current 0-based cursor position. A position equal to
// Count() means the route is exhausted.
func (r *Route) Position() int { return r.position }

// Current returns the RouteItem at the cursor, or false if the route is
// exhausted or empty.
func (r *Route) Current() (RouteItem, bool) {
	if r.position < 0 || r.position >= len(r.items) {
		return RouteItem{}, false
	}

	return r.items[r.position], true
}

// IsFirst reports whether the cursor is at the first RouteItem.
func (r *Route) IsFirst() bool { return r.position == 0 }

// IsLast reports whether the cursor is at the last RouteItem.
func (r *Route) IsLast() bool { return r.position == len(r.items)-1 }

// Next advances the cursor by one. It is legal to advance past the last item,
// landing on position == Count() (exhausted); advancing further is an error.
func (r *Route) Next() error {
	if r.position >= len(r.items) {
		return fmt.Errorf("%w: already exhausted at position %d", ErrRouteOutOfBounds, r.position)
	}

	r.position++

	return nil
}

// Previous moves the cursor back by one.
func (r *Route) Previous() error {
	if r.position <= 0 {
		return fmt.Errorf("%w: already at position 0", ErrRouteOutOfBounds)
	}

	r.position--

	return nil
}

// SetPosition jumps the cursor directly to i.
func (r *Route) SetPosition(i int) error {
	if i < 0 || i > len(r.items) {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrRouteOutOfBounds, i, len(r.items))
	}

	r.position = i

	return nil
}

// IsFirstOfTestPart reports whether the current RouteItem is the first one
// belonging to its testPart.
func (r *Route) IsFirstOfTestPart() bool {
	cur, ok := r.Current()
	if !ok {
		return false
	}

	if r.position == 0 {
		return true
	}

	return r.items[r.position-1].TestPartIdentifier != cur.TestPartIdentifier
}

// IsLastOfTestPart reports whether the current RouteItem is the last one
// belonging to its testPart.
func (r *Route) IsLastOfTestPart() bool {
	cur, ok := r.Current()
	if !ok {
		return false
	}

	if r.position == len(r.items)-1 {
		return true
	}

	return r.items[r.position+1].TestPartIdentifier != cur.TestPartIdentifier
}

// IsLastOfAssessmentSection reports whether the current RouteItem is the
// last one belonging to its innermost containing section.
func (r *Route) IsLastOfAssessmentSection() bool {
	cur, ok := r.Current()
	if !ok || len(cur.SectionIdentifiers) == 0 {
		return false
	}

	innermost := cur.SectionIdentifiers[len(cur.SectionIdentifiers)-1]

	if r.position == len(r.items)-1 {
		return true
	}

	next := r.items[r.position+1]

	return len(next.SectionIdentifiers) == 0 || next.SectionIdentifiers[len(next.SectionIdentifiers)-1] != innermost
}

// GetRouteItemsByTestPart returns every RouteItem whose TestPartIdentifier
// equals id, in Route order.
func (r *Route) GetRouteItemsByTestPart(id string) []RouteItem {
	var result []RouteItem

	for _, item := range r.items {
		if item.TestPartIdentifier == id {
			result = append(result, item)
		}
	}

	return result
}

// GetRouteItemsByAssessmentSection returns every RouteItem whose section
// chain contains id, in Route order.
func (r *Route) GetRouteItemsByAssessmentSection(id string) []RouteItem {
	var result []RouteItem

	for _, item := range r.items {
		for _, s := range item.SectionIdentifiers {
			if s == id {
				result = append(result, item)

				break
			}
		}
	}

	return result
}

// GetRouteItemsByAssessmentItemRef returns every occurrence of itemRef id,
// in occurrence order.
func (r *Route) GetRouteItemsByAssessmentItemRef(id string) []RouteItem {
	var result []RouteItem

	for _, item := range r.items {
		if item.ItemRefIdentifier == id {
			result = append(result, item)
		}
	}

	return result
}

// Branch moves the cursor to the first RouteItem (by Route order) whose
// itemRef, section, or testPart identifier equals target. Ties are broken by
// RouteItem order. Special targets EXIT_TEST/EXIT_TESTPART/EXIT_SECTION are
// not handled here — the driver intercepts them before calling Branch.
func (r *Route) Branch(target string) error {
	for i, item := range r.items {
		if item.MatchesIdentifier(target) {
			r.position = i

			return nil
		}
	}

	return fmt.Errorf("%w: no route item matches branch target %q", ErrRouteOutOfBounds, target)
}
