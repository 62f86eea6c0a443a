package testutil

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/titannet/titannet-server/internal/database"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

// TestRepository opens a throwaway SQLite database under t.TempDir.
func TestRepository(t *testing.T) *database.SqliteTitanRepository {
	t.Helper()

	repo, err := database.NewSqliteTitanRepository(filepath.Join(t.TempDir(), "titannet.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})

	return repo
}
