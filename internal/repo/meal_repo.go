// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the MealLog
// and SlotCandidate models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateLog inserts a new MealLog row. The caller fills the domain fields;
// ID and CreatedAt are assigned here when unset.
func CreateLog(ctx context.Context, db *gorm.DB, log *domain.MealLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(log).Error
}

// GetLog fetches a single log by its ID and owner. If the record does not
// exist it returns ErrNotFound.
func GetLog(ctx context.Context, db *gorm.DB, id, userID string) (*domain.MealLog, error) {
	var m domain.MealLog
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveLogAnalysis persists the analysis fields and status of an existing log.
func SaveLogAnalysis(ctx context.Context, db *gorm.DB, log *domain.MealLog) error {
	res := db.WithContext(ctx).
		Model(&domain.MealLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]any{
			"dish":         log.Dish,
			"confidence":   log.Confidence,
			"kcal":         log.Kcal,
			"protein_g":    log.ProteinG,
			"fat_g":        log.FatG,
			"carbs_g":      log.CarbsG,
			"items":        log.Items,
			"warnings":     log.Warnings,
			"raw_response": log.RawResponse,
			"status":       log.Status,
			"slot_id":      log.SlotID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLogStatus sets only the lifecycle status of a log.
func UpdateLogStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.MealLog{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCandidates inserts the slot candidates proposed for a log.
func CreateCandidates(ctx context.Context, db *gorm.DB, cands []domain.SlotCandidate) error {
	if len(cands) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range cands {
		if cands[i].ID == "" {
			cands[i].ID = uuid.NewString()
		}
		if cands[i].CreatedAt.IsZero() {
			cands[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).Create(&cands).Error
}

// ListCandidates returns the candidates of a log in creation order.
func ListCandidates(ctx context.Context, db *gorm.DB, logID string) ([]domain.SlotCandidate, error) {
	var out []domain.SlotCandidate
	err := db.WithContext(ctx).
		Where("log_id = ?", logID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// GetCandidate fetches one candidate of a log, ErrNotFound when missing.
func GetCandidate(ctx context.Context, db *gorm.DB, logID, candID string) (*domain.SlotCandidate, error) {
	var c domain.SlotCandidate
	err := db.WithContext(ctx).
		Where("id = ? AND log_id = ?", candID, logID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkCandidateChosen flags one candidate as the chosen placement.
func MarkCandidateChosen(ctx context.Context, db *gorm.DB, logID, candID string) error {
	res := db.WithContext(ctx).
		Model(&domain.SlotCandidate{}).
		Where("id = ? AND log_id = ?", candID, logID).
		Update("chosen", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountLogs returns the total number of logs owned by userID.
func CountLogs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MealLog{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListLogsPage returns a paginated slice of log summaries for userID,
// ordered by creation time descending. Use CountLogs for pagination
// metadata; the caller computes offset and limit.
func ListLogsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.LogSummary, error) {
	var out []domain.LogSummary
	err := db.WithContext(ctx).
		Model(&domain.MealLog{}).
		Select("id", "dish", "kcal", "protein_g", "fat_g", "carbs_g",
			"items", "warnings", "locale", "raw_response", "status",
			"slot_id", "confidence", "created_at").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}
