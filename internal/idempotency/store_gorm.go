package idempotency

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/repo"
)

// GormStore is the production Store, backed by the idempotency table.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore wraps db as a Store.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{DB: db} }

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, userID, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoRecord
	}
	return rec, err
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, userID, key string, ttl time.Duration) (*domain.Idempotency, error) {
	rec, err := repo.CreateIdempotency(ctx, s.DB, userID, key, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrKeyTaken
	}
	return rec, err
}

// Complete implements Store.
func (s *GormStore) Complete(ctx context.Context, userID, key string, status int, logID, errorCode string) error {
	err := repo.CompleteIdempotency(ctx, s.DB, userID, key, status, logID, errorCode)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNoRecord
	}
	return err
}

// PurgeExpired implements Store.
func (s *GormStore) PurgeExpired(ctx context.Context, userID, key string, now time.Time) (int64, error) {
	return repo.PurgeExpiredIdempotencyKey(ctx, s.DB, userID, key, now)
}

// DeleteExpired implements Store.
func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return repo.DeleteExpiredIdempotency(ctx, s.DB, now)
}
