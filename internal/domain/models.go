// Package domain defines the persistence models for meal logs, slot
// candidates, and favorites. These types are mapped with GORM and form the
// core data layer of the ingestion backend.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/nutrilog/go-meal-backend/internal/nutrition"
)

// Log lifecycle states. The ingestion coordinator is the only component
// that advances a log through them.
const (
	StatusSubmitted          = "submitted"
	StatusAnalyzing          = "analyzing"
	StatusAwaitingSlotChoice = "awaiting_slot_choice"
	StatusFinalized          = "finalized"
	StatusFailed             = "failed"
)

// Meal-time buckets a finalized log can land in.
const (
	SlotBreakfast = "breakfast"
	SlotLunch     = "lunch"
	SlotDinner    = "dinner"
	SlotSnack     = "snack"
)

// ValidSlot reports whether s names a known meal-time bucket.
func ValidSlot(s string) bool {
	switch s {
	case SlotBreakfast, SlotLunch, SlotDinner, SlotSnack:
		return true
	}
	return false
}

// MealLog is one ingested meal submission and its analysis outcome.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: owner, supplied by the authentication layer; indexed.
//   - Message / ImageSize: the submitted inputs (image bytes are not stored
//     here, only their size for audit).
//   - Dish, Confidence, Kcal..CarbsG, Items, Warnings: the translation-
//     resolved analysis persisted when the hedge succeeds.
//   - Locale: the locale preference recorded with the submission.
//   - RawResponse: the canonical provider response as returned, kept for
//     later re-resolution (favorites, diagnostics).
//   - Status: lifecycle state, see Status* constants.
//   - SlotID: the chosen slot candidate once finalized.
type MealLog struct {
	ID         string  `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string  `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_logs"`
	Message    string  `json:"message"     gorm:"type:text"`
	ImageSize  int64   `json:"image_size"  gorm:"not null;default:0"`
	Dish       string  `json:"dish"        gorm:"type:varchar(255)"`
	Confidence float64 `json:"confidence"`

	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`

	Items    nutrition.ItemList   `json:"items"    gorm:"type:text"`
	Warnings nutrition.StringList `json:"warnings" gorm:"type:text"`

	Locale      string `json:"locale"       gorm:"type:varchar(35)"`
	RawResponse string `json:"-"            gorm:"type:text"`
	Status      string `json:"status"       gorm:"type:varchar(32);not null;index;check:status IN ('submitted','analyzing','awaiting_slot_choice','finalized','failed')"`
	SlotID      string `json:"slot_id,omitempty" gorm:"type:char(36)"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for MealLog.
func (MealLog) TableName() string { return "meal_logs" }

// SlotCandidate is one proposed placement of an analyzed meal, identified to
// clients by (log_id, candidate id). Candidates are created together with
// their log and stop being selectable once the log leaves
// awaiting_slot_choice.
type SlotCandidate struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	LogID     string    `json:"log_id"  gorm:"type:char(36);not null;index"`
	Slot      string    `json:"slot"    gorm:"type:varchar(16);not null;check:slot IN ('breakfast','lunch','dinner','snack')"`
	Label     string    `json:"label"   gorm:"type:varchar(64);not null"`
	Chosen    bool      `json:"chosen"  gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	// Log is the parent entry. Candidates are cascade-deleted with it.
	Log MealLog `json:"-" gorm:"foreignKey:LogID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SlotCandidate.
func (SlotCandidate) TableName() string { return "slot_candidates" }

// FavoriteMeal is a persisted FavoriteMealDraft: the canonical reusable
// shape built from a stored log. A user keeps at most one favorite per
// source log (unique index).
type FavoriteMeal struct {
	ID          string `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID      string `json:"user_id"       gorm:"type:varchar(64);not null;index;uniqueIndex:ux_fav_user_source"`
	SourceLogID string `json:"source_log_id" gorm:"type:char(36);not null;uniqueIndex:ux_fav_user_source"`
	Name        string `json:"name"          gorm:"type:varchar(255);not null"`
	Notes       string `json:"notes"         gorm:"type:text"`

	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`

	// Items holds the flattened draft items as JSON.
	Items string `json:"-" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for FavoriteMeal.
func (FavoriteMeal) TableName() string { return "favorite_meals" }

// DraftItems decodes the stored favorite items.
func (f *FavoriteMeal) DraftItems() ([]nutrition.DraftItem, error) {
	if f.Items == "" {
		return nil, nil
	}
	var items []nutrition.DraftItem
	err := json.Unmarshal([]byte(f.Items), &items)
	return items, err
}

//
// nutrition.DraftSource implementations
//

// SourceLogID implements nutrition.DraftSource.
func (m *MealLog) SourceLogID() string { return m.ID }

// DishName implements nutrition.DraftSource.
func (m *MealLog) DishName() string { return m.Dish }

// StoredTotals implements nutrition.DraftSource.
func (m *MealLog) StoredTotals() nutrition.NutritionTotals {
	return nutrition.NutritionTotals{Kcal: m.Kcal, ProteinG: m.ProteinG, FatG: m.FatG, CarbsG: m.CarbsG}
}

// StoredItems implements nutrition.DraftSource.
func (m *MealLog) StoredItems() []nutrition.FoodItem { return m.Items }

// RawAnalysis implements nutrition.DraftSource. It returns nil when the raw
// provider response was not stored or no longer parses.
func (m *MealLog) RawAnalysis() *nutrition.AnalysisResult {
	return parseRaw(m.RawResponse)
}

// PreferredLocale implements nutrition.DraftSource.
func (m *MealLog) PreferredLocale() string { return m.Locale }

// LogSummary is the trimmed row shape returned by list queries. It carries
// the same essential fields as MealLog under the list query's column names
// and implements nutrition.DraftSource exactly like the full record.
type LogSummary struct {
	LogID      string               `json:"id"         gorm:"column:id"`
	FoodName   string               `json:"dish"       gorm:"column:dish"`
	Kcal       float64              `json:"kcal"       gorm:"column:kcal"`
	ProteinG   float64              `json:"protein_g"  gorm:"column:protein_g"`
	FatG       float64              `json:"fat_g"      gorm:"column:fat_g"`
	CarbsG     float64              `json:"carbs_g"    gorm:"column:carbs_g"`
	ItemsJSON  nutrition.ItemList   `json:"items"      gorm:"column:items"`
	Warnings   nutrition.StringList `json:"warnings"   gorm:"column:warnings"`
	Locale     string               `json:"locale"     gorm:"column:locale"`
	RawJSON    string               `json:"-"          gorm:"column:raw_response"`
	Status     string               `json:"status"     gorm:"column:status"`
	SlotID     string               `json:"slot_id,omitempty" gorm:"column:slot_id"`
	Confidence float64              `json:"confidence" gorm:"column:confidence"`
	LoggedAt   time.Time            `json:"created_at" gorm:"column:created_at"`
}

// SourceLogID implements nutrition.DraftSource.
func (s *LogSummary) SourceLogID() string { return s.LogID }

// DishName implements nutrition.DraftSource.
func (s *LogSummary) DishName() string { return s.FoodName }

// StoredTotals implements nutrition.DraftSource.
func (s *LogSummary) StoredTotals() nutrition.NutritionTotals {
	return nutrition.NutritionTotals{Kcal: s.Kcal, ProteinG: s.ProteinG, FatG: s.FatG, CarbsG: s.CarbsG}
}

// StoredItems implements nutrition.DraftSource.
func (s *LogSummary) StoredItems() []nutrition.FoodItem { return s.ItemsJSON }

// RawAnalysis implements nutrition.DraftSource.
func (s *LogSummary) RawAnalysis() *nutrition.AnalysisResult {
	return parseRaw(s.RawJSON)
}

// PreferredLocale implements nutrition.DraftSource.
func (s *LogSummary) PreferredLocale() string { return s.Locale }

// parseRaw decodes a stored provider response, nil on absence or decode
// failure.
func parseRaw(raw string) *nutrition.AnalysisResult {
	if raw == "" {
		return nil
	}
	var res nutrition.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil
	}
	return &res
}
