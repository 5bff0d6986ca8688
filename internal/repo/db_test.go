package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nutrilog/go-meal-backend/internal/domain"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "app.db")
	if _, err := OpenSQLite(path); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestOpenSQLite_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	for _, model := range []any{
		&domain.MealLog{},
		&domain.SlotCandidate{},
		&domain.FavoriteMeal{},
		&domain.Idempotency{},
	} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}

	// The tracing plugin must be installed so queries emit DB spans.
	if len(db.Config.Plugins) == 0 {
		t.Fatal("expected the otel tracing plugin to be registered")
	}
}
