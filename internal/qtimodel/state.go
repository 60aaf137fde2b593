package qtimodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for variable lookup and mutation.
var (
	// ErrUnknownVariable indicates the identifier has no binding in the State.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrIdentifierTaken indicates a variable with this identifier already exists.
	ErrIdentifierTaken = errors.New("variable identifier already declared")
)

// Declaration describes a variable as it appears in the AssessmentTest/
// AssessmentItem model: its identifier, shape, and optional default. The
// engine's core never mutates a Declaration; it only reads from it to build
// Variables.
type Declaration struct {
	Identifier  string
	Kind        VariableKind
	Cardinality Cardinality
	BaseType    BaseType
	Default     *Value // nil if the declaration has no default
}

// Variable is a single (identifier, cardinality, baseType) triple plus its
// current value.
type Variable struct {
	Identifier  string
	Kind        VariableKind
	Cardinality Cardinality
	BaseType    BaseType
	Value       *Value
	Default     *Value // nil if the declaration carried no default
}

// CreateFromDataModel builds a Variable matching decl's cardinality/baseType,
// initialized to null. It does not apply the default; call ApplyDefaultValue
// for that.
func CreateFromDataModel(decl Declaration) *Variable {
	return &Variable{
		Identifier:  decl.Identifier,
		Kind:        decl.Kind,
		Cardinality: decl.Cardinality,
		BaseType:    decl.BaseType,
		Value:       NullValue(decl.Cardinality, decl.BaseType),
		Default:     decl.Default,
	}
}

// ApplyDefaultValue copies the variable's declared default into its current
// value. If no default was declared, the variable is left/set to null.
func ApplyDefaultValue(v *Variable) {
	if v.Default == nil {
		v.Value = NullValue(v.Cardinality, v.BaseType)

		return
	}

	v.Value = v.Default.Clone()
}

// State is a keyed container of Variables, preserving declaration order so
// that operations like ResetOutcomeVariables and the snapshot codec, which
// walks global outcome declarations in model order, are deterministic.
type State struct {
	order []string
	vars  map[string]*Variable
}

// NewState returns an empty State.
func NewState() *State {
	return &State{vars: make(map[string]*Variable)}
}

// Declare adds a newly-created Variable to the state, preserving insertion
// order. Returns ErrIdentifierTaken if the identifier is already bound.
func (s *State) Declare(v *Variable) error {
	if _, exists := s.vars[v.Identifier]; exists {
		return fmt.Errorf("%w: %s", ErrIdentifierTaken, v.Identifier)
	}

	s.vars[v.Identifier] = v
	s.order = append(s.order, v.Identifier)

	return nil
}

// GetVariable returns the Variable bound to id, or ErrUnknownVariable.
func (s *State) GetVariable(id string) (*Variable, error) {
	v, ok := s.vars[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, id)
	}

	return v, nil
}

// HasVariable reports whether id is bound, without erroring.
func (s *State) HasVariable(id string) bool {
	_, ok := s.vars[id]

	return ok
}

// SetVariable assigns value to the variable bound to id.
func (s *State) SetVariable(id string, value *Value) error {
	v, err := s.GetVariable(id)
	if err != nil {
		return err
	}

	v.Value = value

	return nil
}

// UnsetVariable sets the bound variable's value to null; it does not remove
// the binding.
func (s *State) UnsetVariable(id string) error {
	v, err := s.GetVariable(id)
	if err != nil {
		return err
	}

	v.Value = NullValue(v.Cardinality, v.BaseType)

	return nil
}

// Variables returns all bound Variables in declaration order.
func (s *State) Variables() []*Variable {
	result := make([]*Variable, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.vars[id])
	}

	return result
}

// ResetOutcomeVariables sets every KindOutcome variable to its declared
// default (or null if it has none). Response and template variables are
// untouched.
func (s *State) ResetOutcomeVariables() {
	for _, id := range s.order {
		v := s.vars[id]
		if v.Kind != KindOutcome {
			continue
		}

		ApplyDefaultValue(v)
	}
}

// Clone returns a deep copy of the State: distinct Variable instances with
// distinct Value instances, so mutating the clone never affects the original.
func (s *State) Clone() *State {
	clone := NewState()
	clone.order = append(clone.order, s.order...)

	for id, v := range s.vars {
		clone.vars[id] = &Variable{
			Identifier:  v.Identifier,
			Kind:        v.Kind,
			Cardinality: v.Cardinality,
			BaseType:    v.BaseType,
			Value:       v.Value.Clone(),
			Default:     v.Default.Clone(),
		}
	}

	return clone
}
