// Package services – FavoriteService
//
// This file implements FavoriteService, which turns a stored, finalized meal
// log into a reusable favorite. The draft shape is produced by the candidate
// builder in internal/nutrition: display name from the locale-resolved
// translation, totals from the record's own persisted values, items
// flattened with a zero-based order index.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/nutrition"
	"github.com/nutrilog/go-meal-backend/internal/repo"
)

// FavoriteService provides favorite-level operations.
type FavoriteService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// NotesMaxLen caps stored notes by rune length.
	NotesMaxLen int
}

// NewFavoriteService constructs a FavoriteService with sane defaults.
func NewFavoriteService(db *gorm.DB) *FavoriteService {
	return &FavoriteService{DB: db, NotesMaxLen: 500}
}

// Create builds a favorite draft from one of the user's finalized logs and
// persists it. A user keeps at most one favorite per source log.
func (s *FavoriteService) Create(ctx context.Context, userID, logID, notes string) (*domain.FavoriteMeal, error) {
	tr := otel.Tracer("services/FavoriteService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("log.id", logID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	log, err := repo.GetLog(ctx, s.DB, logID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	if log.Status != domain.StatusFinalized {
		return nil, ErrLogNotFinalized
	}

	draft := nutrition.BuildDraft(log)
	draft.Notes = s.clipNotes(strings.TrimSpace(notes))

	fav, err := repo.CreateFavorite(ctx, s.DB, userID, draft)
	if errors.Is(err, repo.ErrDuplicateFavorite) {
		return nil, ErrDuplicateFavorite
	}
	return fav, err
}

// ListPage returns a page of the user's favorites, most recent first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *FavoriteService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.FavoriteMeal, int64, error) {
	tr := otel.Tracer("services/FavoriteService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountFavorites(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.FavoriteMeal{}, 0, nil
	}

	items, err := repo.ListFavoritesPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// clipNotes truncates notes to the configured maximum rune length.
func (s *FavoriteService) clipNotes(notes string) string {
	if s.NotesMaxLen > 0 && utf8.RuneCountInString(notes) > s.NotesMaxLen {
		return string([]rune(notes)[:s.NotesMaxLen])
	}
	return notes
}
