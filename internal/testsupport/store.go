package testsupport

import (
	"testing"

	"mediashelf/internal/config"
	"mediashelf/internal/library/store"
	"mediashelf/internal/logging"
	"mediashelf/internal/storage"
)

// MustOpenDB opens the engine database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// MustOpenStore opens a library store backed by a fresh test database.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()
	return store.New(MustOpenDB(t, cfg), logging.NewNop())
}
