package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qti-engine/session-engine/internal/api/middleware"
	"github.com/qti-engine/session-engine/internal/eventlog"
	"github.com/qti-engine/session-engine/internal/expression"
	"github.com/qti-engine/session-engine/internal/fixture"
	"github.com/qti-engine/session-engine/internal/persistence"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/sessionservice"
	"github.com/qti-engine/session-engine/internal/storage"
)

const sampleYAML = `
identifier: demo-test
testPartOrder: [part-1]
testParts:
  - identifier: part-1
    navigationMode: linear
    submissionMode: individual
outcomeDeclarations:
  - identifier: TOTAL
    kind: outcome
    cardinality: single
    baseType: float
    default: 0.0
outcomeProcessing:
  - set: TOTAL
    expr: "V(\"q1.SCORE\")"
items:
  - itemRef: q1
    testPart: part-1
    sections: [section-1]
    itemSessionControl:
      maxAttempts: 1
      allowSkipping: true
    declarations:
      - identifier: RESPONSE
        kind: response
        cardinality: single
        baseType: identifier
      - identifier: SCORE
        kind: outcome
        cardinality: single
        baseType: float
        default: 0.0
    responseProcessing:
      - set: SCORE
        expr: "V(\"RESPONSE\") == \"ChoiceA\" ? 1.0 : 0.0"
`

const testAuthKey = "qtisession_ak_1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	engine := expression.NewExprEngine()

	fx, err := fixture.Parse([]byte(sampleYAML), engine)
	if err != nil {
		t.Fatalf("fixture.Parse: %v", err)
	}

	catalog := sessionservice.MapCatalog{
		fx.Model.Identifier: {Model: fx.Model, Items: fx.Items, Engine: fx.Engine},
	}

	sessions := sessionservice.New(catalog, persistence.NewInMemorySnapshotStore(), eventlog.NoopPublisher{}, qtimodel.Config(0))

	keyStore := &middleware.MockAPIKeyStore{
		FindByKeyFunc: func(_ context.Context, key string) (*storage.APIKey, bool) {
			if key != testAuthKey {
				return nil, false
			}

			return &storage.APIKey{
				ID:          "test-key",
				Key:         key,
				ClientID:    "proctor-station-v1",
				Name:        "Proctor Station Client",
				Permissions: []string{"session:write"},
				Active:      true,
			}, true
		},
	}

	cfg := LoadServerConfig()
	cfg.LogLevel = slog.LevelError

	return NewServer(&cfg, keyStore, nil, sessions)
}

func (s *Server) testHandler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	return middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(s.logger),
		middleware.WithAuthClient(s.apiKeyStore, s.logger),
	)
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Api-Key", testAuthKey)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestHealthzDoesNotRequireAuth(t *testing.T) {
	server := newTestServer(t)
	handler := server.testHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateSessionMissingAuthIsRejected(t *testing.T) {
	server := newTestServer(t)
	handler := server.testHandler()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an API key, got %d", rec.Code)
	}
}

func TestCreateSessionUnknownTestReturnsBadRequest(t *testing.T) {
	server := newTestServer(t)
	handler := server.testHandler()

	rec := doRequest(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{TestIdentifier: "nope"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown test identifier, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSessionLifecycleEndToEnd(t *testing.T) {
	server := newTestServer(t)
	handler := server.testHandler()

	createRec := doRequest(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{TestIdentifier: "demo-test"})
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating a session, got %d: %s", createRec.Code, createRec.Body.String())
	}

	var created sessionView
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	if created.SessionID == "" {
		t.Fatal("expected a session id to be returned")
	}

	beginRec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+created.SessionID+"/attempts", beginAttemptRequest{})
	if beginRec.Code != http.StatusOK {
		t.Fatalf("expected 200 beginning an attempt, got %d: %s", beginRec.Code, beginRec.Body.String())
	}

	endAttemptBody := endAttemptRequest{
		Responses: map[string]qtimodel.Value{
			"RESPONSE": {
				Cardinality: qtimodel.CardinalitySingle,
				BaseType:    qtimodel.BaseTypeIdentifier,
				Single:      "ChoiceA",
			},
		},
	}

	endAttemptRec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+created.SessionID+"/attempts/current", endAttemptBody)
	if endAttemptRec.Code != http.StatusOK {
		t.Fatalf("expected 200 ending an attempt, got %d: %s", endAttemptRec.Code, endAttemptRec.Body.String())
	}

	endSessionRec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+created.SessionID+"/end", nil)
	if endSessionRec.Code != http.StatusOK {
		t.Fatalf("expected 200 ending the session, got %d: %s", endSessionRec.Code, endSessionRec.Body.String())
	}

	outcomesRec := doRequest(t, handler, http.MethodGet, "/v1/sessions/"+created.SessionID+"/outcomes", nil)
	if outcomesRec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching outcomes, got %d: %s", outcomesRec.Code, outcomesRec.Body.String())
	}

	var outcomes map[string]*qtimodel.Value
	if err := json.Unmarshal(outcomesRec.Body.Bytes(), &outcomes); err != nil {
		t.Fatalf("decode outcomes response: %v", err)
	}

	total, ok := outcomes["TOTAL"]
	if !ok {
		t.Fatal("expected TOTAL outcome in response")
	}

	if total.Single != 1.0 {
		t.Fatalf("TOTAL = %v, want 1.0", total.Single)
	}
}

func TestGetSessionUnknownIDReturnsNotFound(t *testing.T) {
	server := newTestServer(t)
	handler := server.testHandler()

	rec := doRequest(t, handler, http.MethodGet, "/v1/sessions/does-not-exist", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session id, got %d", rec.Code)
	}
}
