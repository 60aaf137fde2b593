// Package qtimodel provides the typed variable and state primitives the test
// session engine operates on: cardinality/baseType-checked values, variable
// declarations, and keyed variable containers (State).
package qtimodel

import (
	"errors"
	"fmt"
)

type (
	// Cardinality is the QTI cardinality of a variable's value.
	Cardinality int

	// BaseType is the QTI base type of a variable's value.
	BaseType int

	// VariableKind distinguishes the three declaration scopes a Variable may
	// belong to. Only the permissible scope and whether response processing
	// writes to it differ between the three.
	VariableKind int
)

const (
	// CardinalitySingle holds exactly one value of BaseType.
	CardinalitySingle Cardinality = iota
	// CardinalityMultiple holds an unordered bag of same-typed values.
	CardinalityMultiple
	// CardinalityOrdered holds an ordered sequence of same-typed values.
	CardinalityOrdered
	// CardinalityRecord holds a keyed map of (possibly mixed-type) fields.
	CardinalityRecord
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	switch c {
	case CardinalitySingle:
		return "single"
	case CardinalityMultiple:
		return "multiple"
	case CardinalityOrdered:
		return "ordered"
	case CardinalityRecord:
		return "record"
	default:
		return "unknown"
	}
}

const (
	// BaseTypeIdentifier is a QTI identifier-lexical-form string.
	BaseTypeIdentifier BaseType = iota
	// BaseTypeBoolean is a true/false value.
	BaseTypeBoolean
	// BaseTypeInteger is a signed 32-bit integer.
	BaseTypeInteger
	// BaseTypeFloat is an IEEE-754 double.
	BaseTypeFloat
	// BaseTypeString is a free-form string.
	BaseTypeString
	// BaseTypePoint is an (x, y) integer pair.
	BaseTypePoint
	// BaseTypePair is an unordered pair of identifiers.
	BaseTypePair
	// BaseTypeDirectedPair is an ordered (source, destination) pair of identifiers.
	BaseTypeDirectedPair
	// BaseTypeDuration is an elapsed time interval.
	BaseTypeDuration
	// BaseTypeFile is an opaque uploaded file reference.
	BaseTypeFile
	// BaseTypeURI is a URI string.
	BaseTypeURI
)

// String implements fmt.Stringer.
func (b BaseType) String() string {
	switch b {
	case BaseTypeIdentifier:
		return "identifier"
	case BaseTypeBoolean:
		return "boolean"
	case BaseTypeInteger:
		return "integer"
	case BaseTypeFloat:
		return "float"
	case BaseTypeString:
		return "string"
	case BaseTypePoint:
		return "point"
	case BaseTypePair:
		return "pair"
	case BaseTypeDirectedPair:
		return "directedPair"
	case BaseTypeDuration:
		return "duration"
	case BaseTypeFile:
		return "file"
	case BaseTypeURI:
		return "uri"
	default:
		return "unknown"
	}
}

const (
	// KindOutcome marks an OutcomeVariable: written by response/outcome processing.
	KindOutcome VariableKind = iota
	// KindResponse marks a ResponseVariable: candidate-facing input captured per item.
	KindResponse
	// KindTemplate marks a TemplateVariable: set before an item is attempted.
	KindTemplate
)

// String implements fmt.Stringer.
func (k VariableKind) String() string {
	switch k {
	case KindOutcome:
		return "outcome"
	case KindResponse:
		return "response"
	case KindTemplate:
		return "template"
	default:
		return "unknown"
	}
}

// Point is the value shape for BaseTypePoint.
type Point struct {
	X, Y int
}

// Pair is the value shape for BaseTypePair: an unordered pair of identifiers.
type Pair struct {
	First, Second string
}

// DirectedPair is the value shape for BaseTypeDirectedPair.
type DirectedPair struct {
	Source, Destination string
}

// Sentinel errors for value construction and mutation.
var (
	// ErrMixedBaseType indicates a multiple/ordered/record container was given
	// a value whose base type does not match the container's declared base type.
	ErrMixedBaseType = errors.New("container cannot mix base types")
	// ErrCardinalityMismatch indicates a value shape does not match the
	// variable's declared cardinality (e.g. a scalar assigned where a
	// container was declared, or vice versa).
	ErrCardinalityMismatch = errors.New("value cardinality does not match declaration")
	// ErrUnknownRecordField indicates a record field identifier was not
	// present in the record's declared field set.
	ErrUnknownRecordField = errors.New("unknown record field")
)

// Value is a typed, possibly-null QTI value. A null Value has IsNull set and
// carries no payload; readers must check IsNull before reading Single,
// Container, or Record.
type Value struct {
	Cardinality Cardinality
	BaseType    BaseType
	IsNull      bool

	// Single holds the scalar payload for CardinalitySingle.
	Single interface{}

	// Container holds the ordered payload for CardinalityMultiple/CardinalityOrdered.
	// Multiple-cardinality containers are treated as order-insignificant but are
	// still stored and compared positionally for determinism (matching the
	// codec's requirement that encode/decode round-trip exactly).
	Container []interface{}

	// Record holds field-identifier → scalar payload for CardinalityRecord.
	// Record fields may carry different base types from each other; only
	// multiple/ordered containers are constrained to a single base type.
	Record map[string]interface{}
}

// NullValue returns a null value of the given cardinality/baseType.
func NullValue(cardinality Cardinality, baseType BaseType) *Value {
	return &Value{Cardinality: cardinality, BaseType: baseType, IsNull: true}
}

// SingleValue returns a non-null single-cardinality value.
func SingleValue(baseType BaseType, v interface{}) *Value {
	return &Value{Cardinality: CardinalitySingle, BaseType: baseType, Single: v}
}

// ContainerValue returns a non-null multiple/ordered value. cardinality must
// be CardinalityMultiple or CardinalityOrdered.
func ContainerValue(cardinality Cardinality, baseType BaseType, items []interface{}) (*Value, error) {
	if cardinality != CardinalityMultiple && cardinality != CardinalityOrdered {
		return nil, fmt.Errorf("%w: container constructor requires multiple or ordered", ErrCardinalityMismatch)
	}

	return &Value{Cardinality: cardinality, BaseType: baseType, Container: items}, nil
}

// RecordValue returns a non-null record value.
func RecordValue(fields map[string]interface{}) *Value {
	return &Value{Cardinality: CardinalityRecord, Record: fields}
}

// Clone returns a deep-enough copy of v so that mutating the copy's
// containers never affects the original (Variables own their Value; State
// never shares Value instances across Variables).
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}

	clone := *v

	if v.Container != nil {
		clone.Container = make([]interface{}, len(v.Container))
		copy(clone.Container, v.Container)
	}

	if v.Record != nil {
		clone.Record = make(map[string]interface{}, len(v.Record))
		for k, val := range v.Record {
			clone.Record[k] = val
		}
	}

	return &clone
}

// Equal reports whether two values are structurally identical. Used by
// round-trip tests (decode(encode(s)) == s).
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}

	if v.IsNull != other.IsNull || v.Cardinality != other.Cardinality || v.BaseType != other.BaseType {
		return false
	}

	if v.IsNull {
		return true
	}

	switch v.Cardinality {
	case CardinalitySingle:
		return v.Single == other.Single
	case CardinalityMultiple, CardinalityOrdered:
		if len(v.Container) != len(other.Container) {
			return false
		}

		for i := range v.Container {
			if v.Container[i] != other.Container[i] {
				return false
			}
		}

		return true
	case CardinalityRecord:
		if len(v.Record) != len(other.Record) {
			return false
		}

		for k, val := range v.Record {
			ov, ok := other.Record[k]
			if !ok || ov != val {
				return false
			}
		}

		return true
	default:
		return false
	}
}
