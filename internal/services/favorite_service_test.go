package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/domain"
	"github.com/nutrilog/go-meal-backend/internal/nutrition"
	"github.com/nutrilog/go-meal-backend/internal/repo"
)

func seedFinalizedLog(t *testing.T, db *gorm.DB, userID, dish string) *domain.MealLog {
	t.Helper()
	log := &domain.MealLog{
		UserID:      userID,
		Dish:        dish,
		Kcal:        420,
		ProteinG:    35,
		FatG:        20,
		CarbsG:      18,
		Items:       nutrition.ItemList{{Name: "chicken breast", Grams: 150}, {Name: "greens", Grams: 80}},
		Locale:      "en-US",
		RawResponse: `{"dish":"` + dish + `","totals":{"kcal":999,"protein_g":1,"fat_g":1,"carbs_g":1},"items":[]}`,
		Status:      domain.StatusFinalized,
	}
	if err := repo.CreateLog(context.Background(), db, log); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	return log
}

func TestFavoriteCreate_FromFinalizedLog(t *testing.T) {
	db := newSvcDB(t)
	svc := NewFavoriteService(db)
	log := seedFinalizedLog(t, db, "u1", "chicken salad")

	fav, err := svc.Create(context.Background(), "u1", log.ID, "  weeknight staple  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fav.Name != "chicken salad" || fav.SourceLogID != log.ID {
		t.Fatalf("unexpected favorite: %+v", fav)
	}
	// Totals come from the stored record, never from the raw response.
	if fav.Kcal != 420 {
		t.Fatalf("expected stored totals, got kcal=%v", fav.Kcal)
	}
	if fav.Notes != "weeknight staple" {
		t.Fatalf("notes not trimmed: %q", fav.Notes)
	}

	items, err := fav.DraftItems()
	if err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 2 || items[0].OrderIndex != 0 || items[1].OrderIndex != 1 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestFavoriteCreate_Guards(t *testing.T) {
	db := newSvcDB(t)
	svc := NewFavoriteService(db)

	if _, err := svc.Create(context.Background(), "u1", "no-such-log", ""); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}

	open := &domain.MealLog{UserID: "u1", Status: domain.StatusAwaitingSlotChoice}
	if err := repo.CreateLog(context.Background(), db, open); err != nil {
		t.Fatalf("seed open log: %v", err)
	}
	if _, err := svc.Create(context.Background(), "u1", open.ID, ""); !errors.Is(err, ErrLogNotFinalized) {
		t.Fatalf("expected ErrLogNotFinalized, got %v", err)
	}

	log := seedFinalizedLog(t, db, "u1", "omelette")
	if _, err := svc.Create(context.Background(), "u2", log.ID, ""); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound for foreign user, got %v", err)
	}

	if _, err := svc.Create(context.Background(), "u1", log.ID, ""); err != nil {
		t.Fatalf("first favorite: %v", err)
	}
	if _, err := svc.Create(context.Background(), "u1", log.ID, ""); !errors.Is(err, ErrDuplicateFavorite) {
		t.Fatalf("expected ErrDuplicateFavorite, got %v", err)
	}
}

func TestFavoriteCreate_ClipsNotes(t *testing.T) {
	db := newSvcDB(t)
	svc := NewFavoriteService(db)
	svc.NotesMaxLen = 10
	log := seedFinalizedLog(t, db, "u1", "pasta")

	fav, err := svc.Create(context.Background(), "u1", log.ID, strings.Repeat("x", 40))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len([]rune(fav.Notes)) != 10 {
		t.Fatalf("expected clipped notes, got %d runes", len([]rune(fav.Notes)))
	}
}

func TestFavoriteListPage(t *testing.T) {
	db := newSvcDB(t)
	svc := NewFavoriteService(db)

	items, total, err := svc.ListPage(context.Background(), "u1", 1, 10)
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("expected empty page, got %d/%d", len(items), total)
	}

	for _, dish := range []string{"salad", "soup", "stew"} {
		log := seedFinalizedLog(t, db, "u1", dish)
		if _, err := svc.Create(context.Background(), "u1", log.ID, ""); err != nil {
			t.Fatalf("create %s: %v", dish, err)
		}
	}

	items, total, err = svc.ListPage(context.Background(), "u1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(items), total)
	}
}
