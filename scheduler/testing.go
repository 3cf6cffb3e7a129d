package scheduler

import (
	"database/sql"
	"testing"

	"github.com/feedline/scheduler/db"
	"github.com/feedline/scheduler/logger"
	schedtest "github.com/feedline/scheduler/internal/testing"
)

// createTestDB creates an in-memory test database with migrations applied.
func createTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database := schedtest.CreateTestDB(t)
	if err := db.Migrate(database, logger.NewNop()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return database
}
