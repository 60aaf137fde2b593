// Package sessionservice orchestrates the pieces a running test session
// needs between HTTP requests: looking up the static assessment shape,
// rehydrating a TestSession from its last persisted snapshot, applying one
// driver operation, and persisting the result back out. internal/api calls
// through this package rather than touching testsession/persistence/eventlog
// directly.
package sessionservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/qti-engine/session-engine/internal/eventlog"
	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/persistence"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/route"
	"github.com/qti-engine/session-engine/internal/snapshot"
	"github.com/qti-engine/session-engine/internal/testsession"
)

// ErrUnknownTest is returned when no catalog entry matches a test identifier.
var ErrUnknownTest = errors.New("sessionservice: unknown test identifier")

// ErrSessionNotFound is returned when no snapshot exists for a session ID.
var ErrSessionNotFound = errors.New("sessionservice: session not found")

// Catalog resolves a test identifier to the static shape a TestSession is
// built over, including the expression.Engine its rules were compiled
// against — rule Expressions are handles into that specific engine, so the
// same engine instance must be reused on every subsequent load of a session
// for that test. Implementations are read-only and safe for concurrent use;
// internal/fixture.Fixture values are the typical source.
type Catalog interface {
	Lookup(testIdentifier string) (entry CatalogEntry, ok bool)
}

// CatalogEntry is one assessment's static shape plus the engine its rules
// were compiled against.
type CatalogEntry struct {
	Model  *testsession.Model
	Items  []route.RouteItem
	Engine expression.Engine
}

// MapCatalog is the simplest Catalog: a static map from test identifier to
// its CatalogEntry, populated once at startup from loaded fixtures.
type MapCatalog map[string]CatalogEntry

// Lookup implements Catalog.
func (c MapCatalog) Lookup(testIdentifier string) (CatalogEntry, bool) {
	entry, ok := c[testIdentifier]

	return entry, ok
}

// Service ties a Catalog, a snapshot store, and an event publisher together
// to drive sessions across request boundaries.
type Service struct {
	catalog Catalog
	store   persistence.SnapshotStore
	events  eventlog.Publisher
	config  testsession.Config
}

// New builds a Service. events may be eventlog.NoopPublisher{} to disable
// publishing.
func New(catalog Catalog, store persistence.SnapshotStore, events eventlog.Publisher, cfg testsession.Config) *Service {
	return &Service{catalog: catalog, store: store, events: events, config: cfg}
}

// Close releases the snapshot store and event publisher. Safe to call during
// server shutdown.
func (s *Service) Close() error {
	storeErr := s.store.Close()
	eventsErr := s.events.Close()

	if storeErr != nil {
		return storeErr
	}

	return eventsErr
}

// View is the read-facing projection of a TestSession's current state — the
// shape internal/api marshals to JSON.
type View struct {
	SessionID      string
	TestIdentifier string
	State          qtimodel.TestSessionState
	Position       int
	RouteCount     int
	CurrentItemRef string
	Completed      bool
}

func (s *Service) viewOf(sessionID, testIdentifier string, ts *testsession.TestSession) View {
	v := View{
		SessionID:      sessionID,
		TestIdentifier: testIdentifier,
		State:          ts.State,
		Position:       ts.Route.Position(),
		RouteCount:     ts.Route.Count(),
		Completed:      ts.State == qtimodel.TestSessionStateClosed,
	}

	if cur, ok := ts.Route.Current(); ok {
		v.CurrentItemRef = cur.ItemRefIdentifier
	}

	return v
}

// rehydrate loads sessionID's snapshot and decodes it against the catalog
// entry its stored test identifier names.
func (s *Service) rehydrate(ctx context.Context, sessionID string) (*testsession.TestSession, string, error) {
	snap, ok, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("sessionservice: load %s: %w", sessionID, err)
	}

	if !ok {
		return nil, "", ErrSessionNotFound
	}

	entry, ok := s.catalog.Lookup(snap.TestIdentifier)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownTest, snap.TestIdentifier)
	}

	codec := snapshot.NewCodec(snapshot.NewSeeker(entry.Model, entry.Items))

	ts, err := codec.Decode(snap.Data, sessionID, entry.Model, entry.Engine, s.config)
	if err != nil {
		return nil, "", fmt.Errorf("sessionservice: decode %s: %w", sessionID, err)
	}

	return ts, snap.TestIdentifier, nil
}

// persist re-encodes ts and saves it as sessionID's current snapshot.
func (s *Service) persist(ctx context.Context, sessionID, testIdentifier string, ts *testsession.TestSession) error {
	items := ts.Route.Items()
	codec := snapshot.NewCodec(snapshot.NewSeeker(ts.Model, items))

	data, err := codec.Encode(ts)
	if err != nil {
		return fmt.Errorf("sessionservice: encode %s: %w", sessionID, err)
	}

	if err := s.store.Save(ctx, sessionID, testIdentifier, data); err != nil {
		return fmt.Errorf("sessionservice: save %s: %w", sessionID, err)
	}

	return nil
}

func (s *Service) publish(ctx context.Context, eventType eventlog.EventType, sessionID, testIdentifier string, detail map[string]interface{}) {
	_ = s.events.Publish(ctx, eventlog.Event{
		Type:           eventType,
		SessionID:      sessionID,
		TestIdentifier: testIdentifier,
		Detail:         detail,
	})
}

// CreateSession builds a fresh TestSession for testIdentifier, begins it,
// and persists the initial snapshot.
func (s *Service) CreateSession(ctx context.Context, testIdentifier string) (View, error) {
	entry, ok := s.catalog.Lookup(testIdentifier)
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownTest, testIdentifier)
	}

	ts := testsession.New("", entry.Model, route.NewRoute(entry.Items), entry.Engine, s.config)

	if err := ts.BeginTestSession(); err != nil {
		return View{}, fmt.Errorf("sessionservice: begin session for %s: %w", testIdentifier, err)
	}

	if err := s.persist(ctx, ts.SessionID, testIdentifier, ts); err != nil {
		return View{}, err
	}

	s.publish(ctx, eventlog.EventSessionStarted, ts.SessionID, testIdentifier, nil)

	return s.viewOf(ts.SessionID, testIdentifier, ts), nil
}

// BeginAttempt starts a new attempt on the current route item.
func (s *Service) BeginAttempt(ctx context.Context, sessionID string, allowLateSubmission bool) (View, error) {
	ts, testIdentifier, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	if err := ts.BeginAttempt(allowLateSubmission); err != nil {
		return View{}, fmt.Errorf("sessionservice: begin attempt for %s: %w", sessionID, err)
	}

	if err := s.persist(ctx, sessionID, testIdentifier, ts); err != nil {
		return View{}, err
	}

	detail := map[string]interface{}{}
	if cur, ok := ts.Route.Current(); ok {
		detail["itemRef"] = cur.ItemRefIdentifier
		detail["occurrence"] = cur.Occurrence
	}

	s.publish(ctx, eventlog.EventAttemptStarted, sessionID, testIdentifier, detail)

	return s.viewOf(sessionID, testIdentifier, ts), nil
}

// EndAttempt submits responses for the current item's attempt.
func (s *Service) EndAttempt(ctx context.Context, sessionID string, responses *qtimodel.State, allowLateSubmission bool) (View, error) {
	ts, testIdentifier, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	if err := ts.EndAttempt(responses, allowLateSubmission); err != nil {
		return View{}, fmt.Errorf("sessionservice: end attempt for %s: %w", sessionID, err)
	}

	if err := s.persist(ctx, sessionID, testIdentifier, ts); err != nil {
		return View{}, err
	}

	s.publish(ctx, eventlog.EventAttemptEnded, sessionID, testIdentifier, nil)

	return s.viewOf(sessionID, testIdentifier, ts), nil
}

// MoveNext advances the route cursor to the next eligible item.
func (s *Service) MoveNext(ctx context.Context, sessionID string) (View, error) {
	return s.move(ctx, sessionID, func(ts *testsession.TestSession) error { return ts.MoveNext() })
}

// MoveBack retreats the route cursor to the previous item.
func (s *Service) MoveBack(ctx context.Context, sessionID string) (View, error) {
	return s.move(ctx, sessionID, func(ts *testsession.TestSession) error { return ts.MoveBack() })
}

func (s *Service) move(ctx context.Context, sessionID string, step func(*testsession.TestSession) error) (View, error) {
	ts, testIdentifier, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	if err := step(ts); err != nil {
		return View{}, fmt.Errorf("sessionservice: move %s: %w", sessionID, err)
	}

	if err := s.persist(ctx, sessionID, testIdentifier, ts); err != nil {
		return View{}, err
	}

	detail := map[string]interface{}{"position": ts.Route.Position()}
	s.publish(ctx, eventlog.EventSessionMoved, sessionID, testIdentifier, detail)

	return s.viewOf(sessionID, testIdentifier, ts), nil
}

// EndTestSession closes the session: queued SIMULTANEOUS responses are
// processed (outcome processing runs only then) and every open item is
// force-closed.
func (s *Service) EndTestSession(ctx context.Context, sessionID string) (View, error) {
	ts, testIdentifier, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	if err := ts.EndTestSession(); err != nil {
		return View{}, fmt.Errorf("sessionservice: end session %s: %w", sessionID, err)
	}

	if err := s.persist(ctx, sessionID, testIdentifier, ts); err != nil {
		return View{}, err
	}

	s.publish(ctx, eventlog.EventSessionEnded, sessionID, testIdentifier, nil)

	return s.viewOf(sessionID, testIdentifier, ts), nil
}

// GetSession returns the current view without mutating state.
func (s *Service) GetSession(ctx context.Context, sessionID string) (View, error) {
	ts, testIdentifier, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	return s.viewOf(sessionID, testIdentifier, ts), nil
}

// Outcomes returns the global outcome variables for sessionID, keyed by
// identifier, for callers that need final scores (e.g. a report endpoint).
func (s *Service) Outcomes(ctx context.Context, sessionID string) (map[string]*qtimodel.Value, error) {
	ts, _, err := s.rehydrate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*qtimodel.Value, len(ts.Model.OutcomeDeclarations))

	for _, decl := range ts.Model.OutcomeDeclarations {
		v, err := ts.GlobalOutcomes.GetVariable(decl.Identifier)
		if err != nil {
			continue
		}

		result[decl.Identifier] = v.Value
	}

	return result, nil
}
