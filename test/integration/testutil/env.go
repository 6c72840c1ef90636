package testutil

import (
	"os"
	"testing"
	"time"
)

const DefaultHealthCheckTimeout = 30 * time.Second

type TestEnv struct {
	MongoURI     string
	DatabaseName string
	ServerURL    string
}

func NewTestEnv() *TestEnv {
	return &TestEnv{
		MongoURI:     getEnv("TEST_MONGO_URI", DefaultMongoURI),
		DatabaseName: getEnv("TEST_DB_NAME", DefaultDatabaseName),
		ServerURL:    os.Getenv("TEST_SERVER_URL"),
	}
}

// Setup connects to the database behind a running server and empties it.
// The test is skipped when TEST_SERVER_URL is not set.
func (e *TestEnv) Setup(t *testing.T) *MongoHelper {
	t.Helper()

	if e.ServerURL == "" {
		t.Skip("TEST_SERVER_URL not set, skipping integration test")
	}

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	mongo.CleanDatabase(t)

	NewClient(e.ServerURL).WaitForHealthy(t, DefaultHealthCheckTimeout)

	t.Cleanup(func() {
		mongo.CleanDatabase(t)
		mongo.Close(t)
	})
	return mongo
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
