package testsession

import (
	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// TestFeedback is a testFeedbackRef attached either to the assessmentTest
// itself (TestPartIdentifier == "") or to one testPart, gating when
// ModalFeedback fires.
type TestFeedback struct {
	Identifier         string // the feedback's own identifier, matched against OutcomeIdentifier's value
	OutcomeIdentifier  string // the outcome variable this feedback is bound to
	Access             qtimodel.TestFeedbackAccess
	ShowHide           qtimodel.ShowHide
	TestPartIdentifier string // "" means attached to the assessmentTest itself
}

// TestPartModel carries the per-testPart data the driver needs beyond what
// RouteItem already inlines: navigation/submission mode, adaptivity, the
// testPart's own preConditions (evaluated in NonLinear mode), and its
// testFeedbackRefs.
type TestPartModel struct {
	Identifier     string
	NavigationMode qtimodel.NavigationMode
	SubmissionMode qtimodel.SubmissionMode
	IsAdaptive     bool
	PreConditions  []route.PreCondition
	TimeLimits     route.TimeLimits
}

// ResponseProcessingFor and TemplateProcessingFor resolve an itemRef's
// processing rules. Model holds them as functions rather than a rule AST:
// the driver only needs something it can call, not a language to interpret.
type (
	ResponseProcessingFunc = itemsession.ResponseProcessingFunc
	TemplateProcessingFunc func(session *itemsession.ItemSession, engine expression.Engine) error
	OutcomeProcessingFunc  func(ts *TestSession) error
)

// Model is the read-only AssessmentTest view the driver consumes.
// Constructing one from parsed QTI XML is out of scope; callers (tests, the
// demo CLI's fixture loader) build it directly.
type Model struct {
	Identifier          string
	OutcomeDeclarations []qtimodel.Declaration             // global, test-scoped outcome variables
	ItemDeclarations    map[string][]qtimodel.Declaration  // itemRef -> its response/outcome/template declarations
	TestParts           map[string]TestPartModel
	TestFeedbacks       []TestFeedback
	ResponseProcessing  map[string]ResponseProcessingFunc  // itemRef -> its responseProcessing rules
	TemplateProcessing  map[string]TemplateProcessingFunc  // itemRef -> its templateDefaults/templateProcessing
	OutcomeProcessing   OutcomeProcessingFunc
	TestTimeLimits      route.TimeLimits
	TestPartOrder       []string // order testParts first appear in the Route, for markTestPartVisited bookkeeping convenience
}

// ResultSubmitter is the optional "submit item/test results" collaborator.
// A nil Submitter field makes both a no-op.
type ResultSubmitter interface {
	SubmitItemResults(session *itemsession.ItemSession) error
	SubmitTestResults(ts *TestSession) error
}

// ResultSubmissionPolicy controls when SubmitTestResults fires. Unlike the
// Config bitset, which the codec relies on being bit-exact, this is driver
// configuration only and is not part of the wire format.
type ResultSubmissionPolicy int

const (
	ResultSubmissionNone                ResultSubmissionPolicy = 0
	ResultSubmissionOnOutcomeProcessing ResultSubmissionPolicy = 1
)
