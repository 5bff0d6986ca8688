package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newIdemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestIdempotency_UniquePerUserAndKey(t *testing.T) {
	db := newIdemDB(t)
	now := time.Now().UTC()

	rec := &Idempotency{ID: "a", UserID: "u1", Key: "k1", Status: IdemInFlight, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("first create: %v", err)
	}

	dup := &Idempotency{ID: "b", UserID: "u1", Key: "k1", Status: IdemInFlight, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatal("expected unique violation on (user_id, key)")
	}

	// Same key for another user is a different logical request.
	other := &Idempotency{ID: "c", UserID: "u2", Key: "k1", Status: IdemInFlight, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("other user create: %v", err)
	}
}

func TestIdempotency_StateConstants(t *testing.T) {
	// The numeric values are persisted; they must not drift.
	if IdemInFlight != 0 || IdemCompleted != 1 || IdemFailed != 2 {
		t.Fatalf("state constants changed: %d %d %d", IdemInFlight, IdemCompleted, IdemFailed)
	}
}
