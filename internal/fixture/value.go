package fixture

import (
	"fmt"
	"time"

	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

var cardinalityNames = map[string]qtimodel.Cardinality{
	"single":   qtimodel.CardinalitySingle,
	"multiple": qtimodel.CardinalityMultiple,
	"ordered":  qtimodel.CardinalityOrdered,
	"record":   qtimodel.CardinalityRecord,
}

var baseTypeNames = map[string]qtimodel.BaseType{
	"identifier":   qtimodel.BaseTypeIdentifier,
	"boolean":      qtimodel.BaseTypeBoolean,
	"integer":      qtimodel.BaseTypeInteger,
	"float":        qtimodel.BaseTypeFloat,
	"string":       qtimodel.BaseTypeString,
	"point":        qtimodel.BaseTypePoint,
	"pair":         qtimodel.BaseTypePair,
	"directedPair": qtimodel.BaseTypeDirectedPair,
	"duration":     qtimodel.BaseTypeDuration,
	"file":         qtimodel.BaseTypeFile,
	"uri":          qtimodel.BaseTypeURI,
}

var kindNames = map[string]qtimodel.VariableKind{
	"outcome":  qtimodel.KindOutcome,
	"response": qtimodel.KindResponse,
	"template": qtimodel.KindTemplate,
}

func parseCardinality(s string) (qtimodel.Cardinality, error) {
	if c, ok := cardinalityNames[s]; ok {
		return c, nil
	}

	return 0, fmt.Errorf("fixture: unknown cardinality %q", s)
}

func parseBaseType(s string) (qtimodel.BaseType, error) {
	if b, ok := baseTypeNames[s]; ok {
		return b, nil
	}

	return 0, fmt.Errorf("fixture: unknown baseType %q", s)
}

func parseKind(s string) (qtimodel.VariableKind, error) {
	if k, ok := kindNames[s]; ok {
		return k, nil
	}

	return 0, fmt.Errorf("fixture: unknown variable kind %q", s)
}

func parseNavigationMode(s string) (qtimodel.NavigationMode, error) {
	switch s {
	case "", "linear":
		return qtimodel.NavigationModeLinear, nil
	case "nonlinear", "nonLinear":
		return qtimodel.NavigationModeNonLinear, nil
	default:
		return 0, fmt.Errorf("fixture: unknown navigationMode %q", s)
	}
}

func parseSubmissionMode(s string) (qtimodel.SubmissionMode, error) {
	switch s {
	case "", "individual":
		return qtimodel.SubmissionModeIndividual, nil
	case "simultaneous":
		return qtimodel.SubmissionModeSimultaneous, nil
	default:
		return 0, fmt.Errorf("fixture: unknown submissionMode %q", s)
	}
}

func parseFeedbackAccess(s string) (qtimodel.TestFeedbackAccess, error) {
	switch s {
	case "", "during":
		return qtimodel.TestFeedbackAccessDuring, nil
	case "atEnd":
		return qtimodel.TestFeedbackAccessAtEnd, nil
	default:
		return 0, fmt.Errorf("fixture: unknown testFeedback access %q", s)
	}
}

func parseShowHide(s string) (qtimodel.ShowHide, error) {
	switch s {
	case "", "show":
		return qtimodel.ShowHideShow, nil
	case "hide":
		return qtimodel.ShowHideHide, nil
	default:
		return 0, fmt.Errorf("fixture: unknown showHide %q", s)
	}
}

// buildDeclarations converts a list of declarationDocs to qtimodel.Declarations.
func buildDeclarations(docs []declarationDoc) ([]qtimodel.Declaration, error) {
	decls := make([]qtimodel.Declaration, 0, len(docs))

	for _, d := range docs {
		kind, err := parseKind(d.Kind)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", d.Identifier, err)
		}

		cardinality, err := parseCardinality(d.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", d.Identifier, err)
		}

		baseType, err := parseBaseType(d.BaseType)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", d.Identifier, err)
		}

		var def *qtimodel.Value

		if d.Default != nil {
			def, err = parseScalarValue(cardinality, baseType, d.Default)
			if err != nil {
				return nil, fmt.Errorf("declaration %s default: %w", d.Identifier, err)
			}
		}

		decls = append(decls, qtimodel.Declaration{
			Identifier:  d.Identifier,
			Kind:        kind,
			Cardinality: cardinality,
			BaseType:    baseType,
			Default:     def,
		})
	}

	return decls, nil
}

// parseScalarValue converts a YAML-decoded value (bool/int/float64/string,
// or a []interface{}/map[string]interface{} for containers/records) into a
// qtimodel.Value of the given shape. It covers every baseType a fixture
// reasonably declares a literal default for; point/pair/directedPair are
// given as a field map (a list form is not accepted).
func parseScalarValue(cardinality qtimodel.Cardinality, baseType qtimodel.BaseType, raw interface{}) (*qtimodel.Value, error) {
	switch cardinality {
	case qtimodel.CardinalitySingle:
		scalar, err := parseSingleScalar(baseType, raw)
		if err != nil {
			return nil, err
		}

		return qtimodel.SingleValue(baseType, scalar), nil
	case qtimodel.CardinalityMultiple, qtimodel.CardinalityOrdered:
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a list for %s cardinality, got %T", cardinality, raw)
		}

		items := make([]interface{}, 0, len(list))

		for _, item := range list {
			scalar, err := parseSingleScalar(baseType, item)
			if err != nil {
				return nil, err
			}

			items = append(items, scalar)
		}

		return qtimodel.ContainerValue(cardinality, baseType, items)
	case qtimodel.CardinalityRecord:
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a map for record cardinality, got %T", raw)
		}

		return qtimodel.RecordValue(fields), nil
	default:
		return nil, fmt.Errorf("unsupported cardinality %s", cardinality)
	}
}

// parseSingleScalar converts one leaf value into baseType's Go representation.
func parseSingleScalar(baseType qtimodel.BaseType, raw interface{}) (interface{}, error) {
	switch baseType {
	case qtimodel.BaseTypeIdentifier, qtimodel.BaseTypeString, qtimodel.BaseTypeFile, qtimodel.BaseTypeURI:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for %s, got %T", baseType, raw)
		}

		return s, nil
	case qtimodel.BaseTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool for boolean, got %T", raw)
		}

		return b, nil
	case qtimodel.BaseTypeInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		default:
			return nil, fmt.Errorf("expected int for integer, got %T", raw)
		}
	case qtimodel.BaseTypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("expected float for float, got %T", raw)
		}
	case qtimodel.BaseTypeDuration:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected duration string, got %T", raw)
		}

		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", s, err)
		}

		return d, nil
	case qtimodel.BaseTypePoint:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected {x,y} map for point, got %T", raw)
		}

		x, xok := m["x"].(int)
		y, yok := m["y"].(int)

		if !xok || !yok {
			return nil, fmt.Errorf("point requires integer x and y")
		}

		return qtimodel.Point{X: x, Y: y}, nil
	case qtimodel.BaseTypePair:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected {first,second} map for pair, got %T", raw)
		}

		first, _ := m["first"].(string)
		second, _ := m["second"].(string)

		return qtimodel.Pair{First: first, Second: second}, nil
	case qtimodel.BaseTypeDirectedPair:
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected {source,destination} map for directedPair, got %T", raw)
		}

		source, _ := m["source"].(string)
		destination, _ := m["destination"].(string)

		return qtimodel.DirectedPair{Source: source, Destination: destination}, nil
	default:
		return nil, fmt.Errorf("unsupported baseType %s", baseType)
	}
}

// buildTimeLimits converts an optional timeLimitsDoc into a route.TimeLimits.
// A nil doc yields the zero value (no constraint).
func buildTimeLimits(doc *timeLimitsDoc) (route.TimeLimits, error) {
	if doc == nil {
		return route.TimeLimits{}, nil
	}

	result := route.TimeLimits{AllowLateSubmission: doc.AllowLateSubmission}

	if doc.MinTime != "" {
		d, err := time.ParseDuration(doc.MinTime)
		if err != nil {
			return route.TimeLimits{}, fmt.Errorf("minTime: %w", err)
		}

		result.MinTime = &d
	}

	if doc.MaxTime != "" {
		d, err := time.ParseDuration(doc.MaxTime)
		if err != nil {
			return route.TimeLimits{}, fmt.Errorf("maxTime: %w", err)
		}

		result.MaxTime = &d
	}

	return result, nil
}
