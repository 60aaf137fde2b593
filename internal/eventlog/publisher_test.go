package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventMarshalsExpectedShape(t *testing.T) {
	event := Event{
		Type:           EventAttemptStarted,
		SessionID:      "sess-1",
		TestIdentifier: "demo-test",
		OccurredAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Detail:         map[string]interface{}{"itemRef": "q1", "occurrence": 0},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Equal(t, "attempt.started", decoded["type"])
	require.Equal(t, "sess-1", decoded["sessionId"])
	require.Equal(t, "demo-test", decoded["testIdentifier"])
}

func TestNoopPublisherDiscardsEvents(t *testing.T) {
	var p NoopPublisher

	require.NoError(t, p.Publish(context.Background(), Event{Type: EventSessionStarted, SessionID: "sess-1"}))
	require.NoError(t, p.Close())
}
