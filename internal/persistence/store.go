// Package persistence provides PostgreSQL-backed durable storage for test
// session snapshots. It defines the SnapshotStore interface the session
// service depends on, and a PostgresSnapshotStore implementation built over
// internal/storage's connection pooling and audit-logging conventions.
package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/qti-engine/session-engine/internal/storage"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a session ID.
var ErrSnapshotNotFound = errors.New("persistence: snapshot not found")

// Snapshot is one session's persisted state: the encoded bytes a
// snapshot.Codec produces, plus the test identifier needed to pick the
// right (Model, []RouteItem) pair to decode them against.
type Snapshot struct {
	TestIdentifier string
	Data           []byte
}

// SnapshotStore persists and retrieves the encoded byte stream a
// snapshot.Codec produces for a TestSession. The domain layer depends on
// this interface rather than on PostgresSnapshotStore directly, mirroring
// how storage.APIKeyStore is consumed independently of its implementation.
type SnapshotStore interface {
	// Save stores data as the current snapshot for sessionID, replacing any
	// prior snapshot (upsert semantics — a session has exactly one current
	// snapshot at a time).
	Save(ctx context.Context, sessionID string, testIdentifier string, data []byte) error

	// Load retrieves the current snapshot for sessionID. ok is false if no
	// snapshot has been saved for that session (ErrSnapshotNotFound is not
	// returned through this path; Load distinguishes "not found" from error
	// the same way storage.APIKeyStore.FindByKey does).
	Load(ctx context.Context, sessionID string) (snapshot Snapshot, ok bool, err error)

	// Delete removes a session's snapshot. Deleting an unknown session ID is
	// not an error (idempotent).
	Delete(ctx context.Context, sessionID string) error

	// HealthCheck verifies the storage backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// PostgresSnapshotStore implements SnapshotStore with a PostgreSQL backend.
type PostgresSnapshotStore struct {
	conn   *storage.Connection
	logger *slog.Logger
}

// NewPostgresSnapshotStore wraps an already-healthy connection.
func NewPostgresSnapshotStore(conn *storage.Connection) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevelFromEnv("LOG_LEVEL"),
		})),
	}
}

// Close closes the underlying connection pool. Safe to call multiple times.
func (s *PostgresSnapshotStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// HealthCheck delegates to the underlying connection.
func (s *PostgresSnapshotStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Save upserts sessionID's snapshot. testIdentifier is stored alongside the
// bytes so a snapshot row is self-describing (which fixture/catalog entry it
// must be decoded against) without requiring a join at read time.
func (s *PostgresSnapshotStore) Save(ctx context.Context, sessionID, testIdentifier string, data []byte) error {
	if sessionID == "" {
		return fmt.Errorf("persistence: session id cannot be empty")
	}

	query := `
		INSERT INTO session_snapshots (session_id, test_identifier, snapshot, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, test_identifier = EXCLUDED.test_identifier, updated_at = NOW()
	`

	if _, err := s.conn.ExecContext(ctx, query, sessionID, testIdentifier, data); err != nil {
		return fmt.Errorf("persistence: save snapshot %s: %w", sessionID, err)
	}

	s.logger.Debug("session snapshot saved",
		slog.String("session_id", sessionID),
		slog.String("test_identifier", testIdentifier),
		slog.Int("bytes", len(data)),
	)

	return nil
}

// Load retrieves sessionID's current snapshot bytes and test identifier.
func (s *PostgresSnapshotStore) Load(ctx context.Context, sessionID string) (Snapshot, bool, error) {
	if sessionID == "" {
		return Snapshot{}, false, nil
	}

	query := `SELECT test_identifier, snapshot FROM session_snapshots WHERE session_id = $1`

	var snap Snapshot

	err := s.conn.QueryRowContext(ctx, query, sessionID).Scan(&snap.TestIdentifier, &snap.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}

	if err != nil {
		return Snapshot{}, false, fmt.Errorf("persistence: load snapshot %s: %w", sessionID, err)
	}

	return snap, true, nil
}

// Delete removes sessionID's snapshot row, if any.
func (s *PostgresSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	query := `DELETE FROM session_snapshots WHERE session_id = $1`

	if _, err := s.conn.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("persistence: delete snapshot %s: %w", sessionID, err)
	}

	return nil
}

// checksumHex is a small helper used by tests to assert Save persisted the
// exact bytes Encode produced, independent of how the driver returns them.
func checksumHex(data []byte) string {
	return hex.EncodeToString(data)
}

func logLevelFromEnv(key string) slog.Level {
	switch os.Getenv(key) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
