// Package main provides the Test Session Engine's HTTP API service.
//
// It loads the assessment catalog from a directory of YAML fixtures, wires
// up Postgres-backed snapshot persistence and (optionally) Kafka event
// publishing, and serves the session-driving endpoints defined in
// internal/api.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/qti-engine/session-engine/internal/api"
	"github.com/qti-engine/session-engine/internal/api/middleware"
	"github.com/qti-engine/session-engine/internal/eventlog"
	"github.com/qti-engine/session-engine/internal/persistence"
	"github.com/qti-engine/session-engine/internal/qtimodel"
	"github.com/qti-engine/session-engine/internal/sessionservice"
	"github.com/qti-engine/session-engine/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "qtisession"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	fixtureDir := flag.String("fixtures", envOr("QTISESSION_FIXTURES_DIR", "fixtures"), "directory of YAML assessment fixtures")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Test Session Engine service",
		slog.String("service", name),
		slog.String("version", version),
	)

	catalog, err := sessionservice.LoadCatalogDir(*fixtureDir)
	if err != nil {
		logger.Error("failed to load assessment catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("loaded assessment catalog", slog.Int("tests", len(catalog)), slog.String("dir", *fixtureDir))

	store, apiKeyStore := buildStores(logger)
	events := buildEventPublisher(logger)
	rateLimiter := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())

	sessions := sessionservice.New(catalog, store, events, qtimodel.Config(0))

	server := api.NewServer(&serverConfig, apiKeyStore, rateLimiter, sessions)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Test Session Engine service stopped")
}

// buildStores wires a Postgres-backed snapshot store and API key store when
// DATABASE_URL is configured, falling back to in-memory implementations
// (authentication effectively disabled) for local runs without a database.
func buildStores(logger *slog.Logger) (persistence.SnapshotStore, storage.APIKeyStore) {
	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Warn("DATABASE_URL not configured, using in-memory stores", slog.String("reason", err.Error()))

		return persistence.NewInMemorySnapshotStore(), storage.NewInMemoryKeyStore()
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiKeyStore, err := storage.NewPersistentKeyStore(conn)
	if err != nil {
		logger.Error("failed to initialize api key store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	return persistence.NewPostgresSnapshotStore(conn), apiKeyStore
}

// buildEventPublisher returns a KafkaPublisher when QTISESSION_KAFKA_BROKERS
// is set, otherwise a NoopPublisher.
func buildEventPublisher(logger *slog.Logger) eventlog.Publisher {
	brokersEnv := os.Getenv("QTISESSION_KAFKA_BROKERS")
	if brokersEnv == "" {
		logger.Warn("QTISESSION_KAFKA_BROKERS not configured - event publishing disabled")

		return eventlog.NoopPublisher{}
	}

	topic := envOr("QTISESSION_KAFKA_TOPIC", "qtisession.events")
	brokers := strings.Split(brokersEnv, ",")

	logger.Info("event publishing enabled", slog.Any("brokers", brokers), slog.String("topic", topic))

	return eventlog.NewKafkaPublisher(brokers, topic)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}
