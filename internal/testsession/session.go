package testsession

import (
	"time"

	"github.com/google/uuid"

	"github.com/qti-engine/session-engine/internal/duration"
	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/itemsession"
	"github.com/qti-engine/session-engine/internal/pending"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
)

// TestSession is the top-level state machine: it orchestrates the Route
// cursor, the ItemSession store, duration accounting, pending-response
// batching, and outcome processing.
//
// Ownership: TestSession exclusively owns its Route cursor, ItemSessionStore,
// DurationStore, PendingResponseStore, and global outcome Variables. Model
// is shared read-only across sessions.
type TestSession struct {
	SessionID string
	State     qtimodel.TestSessionState

	Model *Model
	Route *route.Route

	Items    *itemsession.Store
	Duration *duration.Store
	Pending  *pending.Store

	GlobalOutcomes *qtimodel.State

	LastOccurrenceUpdate map[string]int  // itemRef -> last occurrence whose variables were updated
	VisitedTestParts     map[string]bool // set of testPart identifiers
	Path                 []int           // ordered list of positions, when Config has PATH_TRACKING

	timeReference *time.Time

	Config Config

	Engine           expression.Engine
	Submitter        ResultSubmitter
	SubmissionPolicy ResultSubmissionPolicy
}

// Config is a local alias so testsession.go doesn't force every caller to
// spell out qtimodel.Config for the codec's configuration bitset.
type Config = qtimodel.Config

const (
	ConfigForceBranching     = qtimodel.ConfigForceBranching
	ConfigForcePreconditions = qtimodel.ConfigForcePreconditions
	ConfigPathTracking       = qtimodel.ConfigPathTracking
	ConfigAlwaysAllowJumps   = qtimodel.ConfigAlwaysAllowJumps
	ConfigInitializeAllItems = qtimodel.ConfigInitializeAllItems
)

// New builds a TestSession in Initial state, ready for BeginTestSession. If
// sessionID is empty, a uuid.New() string is generated.
func New(sessionID string, model *Model, r *route.Route, engine expression.Engine, cfg Config) *TestSession {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	outcomes := qtimodel.NewState()
	for _, decl := range model.OutcomeDeclarations {
		_ = outcomes.Declare(qtimodel.CreateFromDataModel(decl))
	}

	return &TestSession{
		SessionID:            sessionID,
		State:                qtimodel.TestSessionStateInitial,
		Model:                model,
		Route:                r,
		Items:                itemsession.NewStore(),
		Duration:             duration.NewStore(),
		Pending:              pending.NewStore(),
		GlobalOutcomes:       outcomes,
		LastOccurrenceUpdate: make(map[string]int),
		VisitedTestParts:     make(map[string]bool),
		Config:               cfg,
		Engine:               engine,
	}
}

// currentTestPart returns the TestPartModel for the RouteItem at the
// cursor, or the zero value if the route is exhausted or the model has no
// entry for it.
func (ts *TestSession) currentTestPart() (TestPartModel, bool) {
	cur, ok := ts.Route.Current()
	if !ok {
		return TestPartModel{}, false
	}

	tp, ok := ts.Model.TestParts[cur.TestPartIdentifier]

	return tp, ok
}

// markTestPartVisited records id as visited, so a later re-entry into the
// same testPart knows not to re-run its one-time entry logic.
func (ts *TestSession) markTestPartVisited(id string) {
	ts.VisitedTestParts[id] = true
}
