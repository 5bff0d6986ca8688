// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// FavoriteMeal model.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/nutrition"
)

// ErrDuplicateFavorite indicates the user already saved a favorite from the
// same source log.
var ErrDuplicateFavorite = errors.New("favorite already exists")

// CreateFavorite persists a FavoriteMealDraft for userID. It returns
// ErrDuplicateFavorite on the (user_id, source_log_id) unique violation.
func CreateFavorite(ctx context.Context, db *gorm.DB, userID string, draft nutrition.FavoriteMealDraft) (*domain.FavoriteMeal, error) {
	items, err := json.Marshal(draft.Items)
	if err != nil {
		return nil, err
	}
	fav := &domain.FavoriteMeal{
		ID:          uuid.NewString(),
		UserID:      userID,
		SourceLogID: draft.SourceLogID,
		Name:        draft.Name,
		Notes:       draft.Notes,
		Kcal:        draft.Totals.Kcal,
		ProteinG:    draft.Totals.ProteinG,
		FatG:        draft.Totals.FatG,
		CarbsG:      draft.Totals.CarbsG,
		Items:       string(items),
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fav).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicateFavorite
		}
		return nil, err
	}
	return fav, nil
}

// CountFavorites returns the total number of favorites owned by userID.
func CountFavorites(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.FavoriteMeal{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListFavoritesPage returns a page of favorites for userID, most recent
// first.
func ListFavoritesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.FavoriteMeal, error) {
	var out []domain.FavoriteMeal
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
