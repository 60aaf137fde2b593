// Package snapshot provides a deterministic encoding of a
// TestSession's dynamic state to and from an octet stream, addressed against
// the static AssessmentTest model via a Seeker rather than by repeating
// identifier strings.
package snapshot

import (
	"reflect"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
	"github.com/qti-engine/session-engine/internal/testsession"
)

// Seeker indexes a Model's components by class so the codec can address them
// as (className, integer index) instead of by name, keeping the stream
// compact and order-stable. It is built once from a Model and the
// materialized RouteItem sequence and is read-only thereafter.
type Seeker struct {
	blueprint []route.RouteItem // the exact sequence NewSeeker was built from

	testParts     []string
	testPartIndex map[string]int
	sections      []string
	sectionIndex  map[string]int
	itemRefs      []string
	itemRefIndex  map[string]int
	responseDecls map[string][]string // itemRef -> ordered response variable identifiers
	outcomeDecls  map[string][]string // itemRef (or "" for global) -> ordered outcome variable identifiers
	branchRules   []route.BranchRule
	preConditions []route.PreCondition
}

// NewSeeker walks model and items once, in Route/declaration order, building
// every catalog the codec needs. The same (model, items) pair must be handed
// to both Encode and Decode for a stream to round-trip.
func NewSeeker(model *testsession.Model, items []route.RouteItem) *Seeker {
	s := &Seeker{
		blueprint:     append([]route.RouteItem(nil), items...),
		testPartIndex: make(map[string]int),
		sectionIndex:  make(map[string]int),
		itemRefIndex:  make(map[string]int),
		responseDecls: make(map[string][]string),
		outcomeDecls:  make(map[string][]string),
	}

	for _, id := range model.TestPartOrder {
		s.addTestPart(id)
	}

	for _, ri := range items {
		s.addTestPart(ri.TestPartIdentifier)

		for _, section := range ri.SectionIdentifiers {
			s.addSection(section)
		}

		s.addItemRef(ri.ItemRefIdentifier)

		for _, br := range ri.BranchRules {
			s.addBranchRule(br)
		}

		for _, pc := range ri.PreConditions {
			s.addPreCondition(pc)
		}
	}

	for _, ref := range s.itemRefs {
		for _, decl := range model.ItemDeclarations[ref] {
			switch decl.Kind {
			case qtimodel.KindResponse:
				s.responseDecls[ref] = append(s.responseDecls[ref], decl.Identifier)
			case qtimodel.KindOutcome:
				s.outcomeDecls[ref] = append(s.outcomeDecls[ref], decl.Identifier)
			}
		}
	}

	for _, decl := range model.OutcomeDeclarations {
		s.outcomeDecls[""] = append(s.outcomeDecls[""], decl.Identifier)
	}

	return s
}

func (s *Seeker) addTestPart(id string) {
	if _, ok := s.testPartIndex[id]; ok {
		return
	}

	s.testPartIndex[id] = len(s.testParts)
	s.testParts = append(s.testParts, id)
}

func (s *Seeker) addSection(id string) {
	if _, ok := s.sectionIndex[id]; ok {
		return
	}

	s.sectionIndex[id] = len(s.sections)
	s.sections = append(s.sections, id)
}

func (s *Seeker) addItemRef(id string) {
	if _, ok := s.itemRefIndex[id]; ok {
		return
	}

	s.itemRefIndex[id] = len(s.itemRefs)
	s.itemRefs = append(s.itemRefs, id)
}

func (s *Seeker) addBranchRule(br route.BranchRule) {
	for _, existing := range s.branchRules {
		if reflect.DeepEqual(existing, br) {
			return
		}
	}

	s.branchRules = append(s.branchRules, br)
}

func (s *Seeker) addPreCondition(pc route.PreCondition) {
	for _, existing := range s.preConditions {
		if reflect.DeepEqual(existing, pc) {
			return
		}
	}

	s.preConditions = append(s.preConditions, pc)
}

// TestPartIndex returns id's catalog index.
func (s *Seeker) TestPartIndex(id string) (int, bool) { i, ok := s.testPartIndex[id]; return i, ok }

// TestPartByIndex is TestPartIndex's inverse.
func (s *Seeker) TestPartByIndex(i int) (string, bool) {
	if i < 0 || i >= len(s.testParts) {
		return "", false
	}

	return s.testParts[i], true
}

// SectionIndex returns id's catalog index.
func (s *Seeker) SectionIndex(id string) (int, bool) { i, ok := s.sectionIndex[id]; return i, ok }

// SectionByIndex is SectionIndex's inverse.
func (s *Seeker) SectionByIndex(i int) (string, bool) {
	if i < 0 || i >= len(s.sections) {
		return "", false
	}

	return s.sections[i], true
}

// ItemRefIndex returns id's catalog index.
func (s *Seeker) ItemRefIndex(id string) (int, bool) { i, ok := s.itemRefIndex[id]; return i, ok }

// ItemRefByIndex is ItemRefIndex's inverse.
func (s *Seeker) ItemRefByIndex(i int) (string, bool) {
	if i < 0 || i >= len(s.itemRefs) {
		return "", false
	}

	return s.itemRefs[i], true
}

// BranchRuleIndex returns br's catalog index, matched structurally.
func (s *Seeker) BranchRuleIndex(br route.BranchRule) (int, bool) {
	for i, existing := range s.branchRules {
		if reflect.DeepEqual(existing, br) {
			return i, true
		}
	}

	return 0, false
}

// BranchRuleByIndex is BranchRuleIndex's inverse.
func (s *Seeker) BranchRuleByIndex(i int) (route.BranchRule, bool) {
	if i < 0 || i >= len(s.branchRules) {
		return route.BranchRule{}, false
	}

	return s.branchRules[i], true
}

// PreConditionIndex returns pc's catalog index, matched structurally.
func (s *Seeker) PreConditionIndex(pc route.PreCondition) (int, bool) {
	for i, existing := range s.preConditions {
		if reflect.DeepEqual(existing, pc) {
			return i, true
		}
	}

	return 0, false
}

// PreConditionByIndex is PreConditionIndex's inverse.
func (s *Seeker) PreConditionByIndex(i int) (route.PreCondition, bool) {
	if i < 0 || i >= len(s.preConditions) {
		return route.PreCondition{}, false
	}

	return s.preConditions[i], true
}

// ItemAt returns the blueprint RouteItem at position i — the authoritative
// source for fields the wire format never carries because they are entirely
// model-derived (ItemSessionControl, TimeLimits), rather than session state.
func (s *Seeker) ItemAt(i int) (route.RouteItem, bool) {
	if i < 0 || i >= len(s.blueprint) {
		return route.RouteItem{}, false
	}

	return s.blueprint[i], true
}

// ResponseDeclarations returns itemRef's response variable identifiers in
// declaration order.
func (s *Seeker) ResponseDeclarations(itemRef string) []string { return s.responseDecls[itemRef] }

// OutcomeDeclarations returns scope's outcome variable identifiers in
// declaration order; scope is an itemRef, or "" for the test's global
// outcomes.
func (s *Seeker) OutcomeDeclarations(scope string) []string { return s.outcomeDecls[scope] }
