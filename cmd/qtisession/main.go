// Command qtisession loads a YAML assessment fixture, drives a test session
// through a scripted pass of every item, and prints the resulting outcomes
// and snapshot bytes. It is a demonstration harness, not a server — see
// internal/api for the HTTP surface driven by the same sessionservice.Service.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/qti-engine/session-engine/internal/eventlog"
	"github.com/qti-engine/session-engine/internal/persistence"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/sessionservice"
)

func main() {
	fixtureDir := flag.String("fixtures", "fixtures", "directory of YAML assessment fixtures")
	testIdentifier := flag.String("test", "demo-test", "test identifier to run")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*fixtureDir, *testIdentifier, logger); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(fixtureDir, testIdentifier string, logger *slog.Logger) error {
	ctx := context.Background()

	catalog, err := sessionservice.LoadCatalogDir(fixtureDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	store := persistence.NewInMemorySnapshotStore()
	events := eventlog.NoopPublisher{}
	svc := sessionservice.New(catalog, store, events, qtimodel.Config(0))

	view, err := svc.CreateSession(ctx, testIdentifier)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	logger.Info("session started", slog.String("sessionId", view.SessionID), slog.Int("items", view.RouteCount))

	for i := 0; i < view.RouteCount; i++ {
		view, err = svc.BeginAttempt(ctx, view.SessionID, false)
		if err != nil {
			return fmt.Errorf("begin attempt at position %d: %w", i, err)
		}

		responses := qtimodel.NewState()

		if err := responses.Declare(&qtimodel.Variable{
			Identifier:  "RESPONSE",
			Kind:        qtimodel.KindResponse,
			Cardinality: qtimodel.CardinalitySingle,
			BaseType:    qtimodel.BaseTypeIdentifier,
			Value: &qtimodel.Value{
				Cardinality: qtimodel.CardinalitySingle,
				BaseType:    qtimodel.BaseTypeIdentifier,
				Single:      "ChoiceA",
			},
		}); err != nil {
			return fmt.Errorf("declare response: %w", err)
		}

		view, err = svc.EndAttempt(ctx, view.SessionID, responses, false)
		if err != nil {
			return fmt.Errorf("end attempt at position %d: %w", i, err)
		}

		logger.Info("item completed",
			slog.String("itemRef", view.CurrentItemRef),
			slog.Int("position", view.Position),
		)

		if view.Position >= view.RouteCount-1 {
			break
		}

		view, err = svc.MoveNext(ctx, view.SessionID)
		if err != nil {
			return fmt.Errorf("move next from position %d: %w", i, err)
		}
	}

	view, err = svc.EndTestSession(ctx, view.SessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	outcomes, err := svc.Outcomes(ctx, view.SessionID)
	if err != nil {
		return fmt.Errorf("read outcomes: %w", err)
	}

	fmt.Printf("session %s for %s completed (state=%s)\n", view.SessionID, view.TestIdentifier, view.State)

	for id, value := range outcomes {
		fmt.Printf("  outcome %s = %v\n", id, value.Single)
	}

	snap, ok, err := store.Load(ctx, view.SessionID)
	if err != nil {
		return fmt.Errorf("load final snapshot: %w", err)
	}

	if ok {
		fmt.Printf("snapshot (%d bytes): %s\n", len(snap.Data), hex.EncodeToString(snap.Data))
	}

	return nil
}
