// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement exactly-once-effect semantics for submissions.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (user_id, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateIdempotency inserts an InFlight record and returns ErrDuplicate on
// unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		Status:    domain.IdemInFlight,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// CompleteIdempotency transitions a record out of InFlight exactly once,
// recording either the committed log id or the failure code.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, userID, key string, status int, logID, errorCode string) error {
	res := db.WithContext(ctx).
		Model(&domain.Idempotency{}).
		Where("user_id = ? AND key = ? AND status = ?", userID, key, domain.IdemInFlight).
		Updates(map[string]any{
			"status":     status,
			"log_id":     logID,
			"error_code": errorCode,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredIdempotencyKey removes the record for (user, key) once its
// retention window has passed, freeing the unique index for a resubmission.
// Like the background sweep it leaves InFlight records alone. The conditional
// delete is a single statement, so racing writers cannot observe a half step.
func PurgeExpiredIdempotencyKey(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at <= ? AND status <> ?", userID, key, now, domain.IdemInFlight).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// DeleteExpiredIdempotency evicts records past their TTL. InFlight records
// are never removed, regardless of age: the sweep must not pull the record
// out from under an execution still in progress.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ? AND status <> ?", now, domain.IdemInFlight).
		Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
