// Package fixture loads an AssessmentTest's static shape — the
// testsession.Model and the materialized []route.RouteItem sequence the
// Test Session Driver and Route both require — from a YAML document.
// Parsing real QTI XML into this shape is out of scope; this package is the
// stand-in a demo CLI or integration test uses to get a Model+Route pair on
// disk.
package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
	"github.com/qti-engine/session-engine/internal/testsession"
)

// document is the raw YAML shape. Field names mirror the QTI vocabulary
// testsession.Model and route.RouteItem already use internally.
type document struct {
	Identifier          string           `yaml:"identifier"`
	TestPartOrder       []string         `yaml:"testPartOrder"`
	TestParts           []testPartDoc    `yaml:"testParts"`
	TestTimeLimits      *timeLimitsDoc   `yaml:"testTimeLimits"`
	OutcomeDeclarations []declarationDoc `yaml:"outcomeDeclarations"`
	OutcomeProcessing   []ruleDoc        `yaml:"outcomeProcessing"`
	TestFeedbacks       []feedbackDoc    `yaml:"testFeedbacks"`
	Items               []itemDoc        `yaml:"items"`
}

type testPartDoc struct {
	Identifier     string         `yaml:"identifier"`
	NavigationMode string         `yaml:"navigationMode"`
	SubmissionMode string         `yaml:"submissionMode"`
	IsAdaptive     bool           `yaml:"isAdaptive"`
	PreConditions  []conditionDoc `yaml:"preConditions"`
	TimeLimits     *timeLimitsDoc `yaml:"timeLimits"`
}

type timeLimitsDoc struct {
	MinTime             string `yaml:"minTime"`
	MaxTime             string `yaml:"maxTime"`
	AllowLateSubmission bool   `yaml:"allowLateSubmission"`
}

type conditionDoc struct {
	Condition string `yaml:"condition"`
}

type branchRuleDoc struct {
	Target    string `yaml:"target"`
	Condition string `yaml:"condition"`
}

type itemSessionControlDoc struct {
	MaxAttempts       int  `yaml:"maxAttempts"`
	ShowFeedback      bool `yaml:"showFeedback"`
	AllowComment      bool `yaml:"allowComment"`
	AllowSkipping     bool `yaml:"allowSkipping"`
	ValidateResponses bool `yaml:"validateResponses"`
}

type declarationDoc struct {
	Identifier  string      `yaml:"identifier"`
	Kind        string      `yaml:"kind"`
	Cardinality string      `yaml:"cardinality"`
	BaseType    string      `yaml:"baseType"`
	Default     interface{} `yaml:"default"`
}

// ruleDoc is one step of a responseProcessing/templateProcessing/
// outcomeProcessing rule set: "unless when evaluates null or false, evaluate
// expr and assign the result (null included) to set". The full QTI rule
// language is out of scope; this is the
// minimal shape that can still express it.
type ruleDoc struct {
	Set  string `yaml:"set"`
	When string `yaml:"when"` // optional guard; empty means unconditional
	Expr string `yaml:"expr"`
}

type feedbackDoc struct {
	Identifier        string `yaml:"identifier"`
	OutcomeIdentifier string `yaml:"outcomeIdentifier"`
	Access            string `yaml:"access"`
	ShowHide          string `yaml:"showHide"`
	TestPart          string `yaml:"testPart"`
}

type itemDoc struct {
	ItemRef            string                 `yaml:"itemRef"`
	TestPart           string                 `yaml:"testPart"`
	Sections           []string               `yaml:"sections"`
	Occurrence         int                    `yaml:"occurrence"`
	PreConditions      []conditionDoc         `yaml:"preConditions"`
	BranchRules        []branchRuleDoc        `yaml:"branchRules"`
	ItemSessionControl *itemSessionControlDoc `yaml:"itemSessionControl"`
	TimeLimits         *timeLimitsDoc         `yaml:"timeLimits"`
	Declarations       []declarationDoc       `yaml:"declarations"`
	ResponseProcessing []ruleDoc              `yaml:"responseProcessing"`
	TemplateProcessing []ruleDoc              `yaml:"templateProcessing"`
}

// Fixture is a loaded AssessmentTest: the Model the driver consumes plus the
// flattened RouteItem sequence a fresh Route is built from. Engine is the
// ExpressionEngine the loaded rules were compiled against; callers must
// reuse it (not a second, separately-constructed Engine) when driving the
// resulting Model, since rule Expressions are this engine's handles.
type Fixture struct {
	Model  *testsession.Model
	Items  []route.RouteItem
	Engine expression.Engine
}

// Load reads and parses a YAML fixture file using engine to evaluate
// response/outcome/template processing rules at run time. engine is also
// returned on the Fixture for convenience; passing nil is invalid.
func Load(path string, engine expression.Engine) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixture: read %s: %w", path, err)
	}

	return Parse(data, engine)
}

// Parse is Load's in-memory counterpart, used directly by tests.
func Parse(data []byte, engine expression.Engine) (*Fixture, error) {
	if engine == nil {
		return nil, fmt.Errorf("fixture: engine must not be nil")
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fixture: parse yaml: %w", err)
	}

	items, err := buildItems(doc.Items)
	if err != nil {
		return nil, err
	}

	outcomeDecls, err := buildDeclarations(doc.OutcomeDeclarations)
	if err != nil {
		return nil, fmt.Errorf("fixture: outcomeDeclarations: %w", err)
	}

	itemDecls := make(map[string][]qtimodel.Declaration, len(doc.Items))
	responseProc := make(map[string]testsession.ResponseProcessingFunc, len(doc.Items))
	templateProc := make(map[string]testsession.TemplateProcessingFunc, len(doc.Items))

	for _, it := range doc.Items {
		decls, err := buildDeclarations(it.Declarations)
		if err != nil {
			return nil, fmt.Errorf("fixture: item %s declarations: %w", it.ItemRef, err)
		}

		itemDecls[it.ItemRef] = decls

		if len(it.ResponseProcessing) > 0 {
			rules, err := compileRules(it.ResponseProcessing)
			if err != nil {
				return nil, fmt.Errorf("fixture: item %s responseProcessing: %w", it.ItemRef, err)
			}

			responseProc[it.ItemRef] = itemResponseProcessingFunc(rules, engine)
		}

		if len(it.TemplateProcessing) > 0 {
			rules, err := compileRules(it.TemplateProcessing)
			if err != nil {
				return nil, fmt.Errorf("fixture: item %s templateProcessing: %w", it.ItemRef, err)
			}

			templateProc[it.ItemRef] = itemTemplateProcessingFunc(rules)
		}
	}

	testParts := make(map[string]testsession.TestPartModel, len(doc.TestParts))

	for _, tp := range doc.TestParts {
		model, err := buildTestPart(tp)
		if err != nil {
			return nil, fmt.Errorf("fixture: testPart %s: %w", tp.Identifier, err)
		}

		testParts[tp.Identifier] = model
	}

	testFeedbacks, err := buildFeedbacks(doc.TestFeedbacks)
	if err != nil {
		return nil, fmt.Errorf("fixture: testFeedbacks: %w", err)
	}

	testTimeLimits, err := buildTimeLimits(doc.TestTimeLimits)
	if err != nil {
		return nil, fmt.Errorf("fixture: testTimeLimits: %w", err)
	}

	var outcomeProcessing testsession.OutcomeProcessingFunc

	if len(doc.OutcomeProcessing) > 0 {
		rules, err := compileRules(doc.OutcomeProcessing)
		if err != nil {
			return nil, fmt.Errorf("fixture: outcomeProcessing: %w", err)
		}

		outcomeProcessing = testOutcomeProcessingFunc(rules, engine)
	}

	model := &testsession.Model{
		Identifier:          doc.Identifier,
		OutcomeDeclarations: outcomeDecls,
		ItemDeclarations:    itemDecls,
		TestParts:           testParts,
		TestFeedbacks:       testFeedbacks,
		ResponseProcessing:  responseProc,
		TemplateProcessing:  templateProc,
		OutcomeProcessing:   outcomeProcessing,
		TestTimeLimits:      testTimeLimits,
		TestPartOrder:       doc.TestPartOrder,
	}

	return &Fixture{Model: model, Items: items, Engine: engine}, nil
}

func buildItems(docs []itemDoc) ([]route.RouteItem, error) {
	items := make([]route.RouteItem, 0, len(docs))

	for _, d := range docs {
		control := route.ItemSessionControl{AllowSkipping: true}
		if d.ItemSessionControl != nil {
			control = route.ItemSessionControl(*d.ItemSessionControl)
		}

		limits, err := buildTimeLimits(d.TimeLimits)
		if err != nil {
			return nil, fmt.Errorf("fixture: item %s timeLimits: %w", d.ItemRef, err)
		}

		preConditions := make([]route.PreCondition, 0, len(d.PreConditions))
		for _, c := range d.PreConditions {
			preConditions = append(preConditions, route.PreCondition{Condition: c.Condition})
		}

		branchRules := make([]route.BranchRule, 0, len(d.BranchRules))
		for _, b := range d.BranchRules {
			branchRules = append(branchRules, route.BranchRule{Target: b.Target, Condition: b.Condition})
		}

		items = append(items, route.RouteItem{
			ItemRefIdentifier:  d.ItemRef,
			Occurrence:         d.Occurrence,
			TestPartIdentifier: d.TestPart,
			SectionIdentifiers: append([]string(nil), d.Sections...),
			PreConditions:      preConditions,
			BranchRules:        branchRules,
			ItemSessionControl: control,
			TimeLimits:         limits,
		})
	}

	return items, nil
}

func buildTestPart(doc testPartDoc) (testsession.TestPartModel, error) {
	navMode, err := parseNavigationMode(doc.NavigationMode)
	if err != nil {
		return testsession.TestPartModel{}, err
	}

	subMode, err := parseSubmissionMode(doc.SubmissionMode)
	if err != nil {
		return testsession.TestPartModel{}, err
	}

	limits, err := buildTimeLimits(doc.TimeLimits)
	if err != nil {
		return testsession.TestPartModel{}, fmt.Errorf("timeLimits: %w", err)
	}

	preConditions := make([]route.PreCondition, 0, len(doc.PreConditions))
	for _, c := range doc.PreConditions {
		preConditions = append(preConditions, route.PreCondition{Condition: c.Condition})
	}

	return testsession.TestPartModel{
		Identifier:     doc.Identifier,
		NavigationMode: navMode,
		SubmissionMode: subMode,
		IsAdaptive:     doc.IsAdaptive,
		PreConditions:  preConditions,
		TimeLimits:     limits,
	}, nil
}

func buildFeedbacks(docs []feedbackDoc) ([]testsession.TestFeedback, error) {
	feedbacks := make([]testsession.TestFeedback, 0, len(docs))

	for _, d := range docs {
		access, err := parseFeedbackAccess(d.Access)
		if err != nil {
			return nil, fmt.Errorf("feedback %s: %w", d.Identifier, err)
		}

		showHide, err := parseShowHide(d.ShowHide)
		if err != nil {
			return nil, fmt.Errorf("feedback %s: %w", d.Identifier, err)
		}

		feedbacks = append(feedbacks, testsession.TestFeedback{
			Identifier:         d.Identifier,
			OutcomeIdentifier:  d.OutcomeIdentifier,
			Access:             access,
			ShowHide:           showHide,
			TestPartIdentifier: d.TestPart,
		})
	}

	return feedbacks, nil
}
