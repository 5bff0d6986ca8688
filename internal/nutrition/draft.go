// Candidate building.
//
// BuildDraft flattens a stored log record into the canonical
// FavoriteMealDraft, the only shape this core ever writes to the favorites
// table. It is deliberately decoupled from the raw provider response so
// upstream format changes do not ripple into storage.
package nutrition

// DraftSource is the record view consumed by BuildDraft. Both the detail
// and the summary row shapes of a stored log implement it; they carry the
// same essential fields under different column names.
type DraftSource interface {
	// SourceLogID identifies the log the draft is derived from.
	SourceLogID() string
	// DishName is the stored display name, used when the raw response
	// resolves to nothing better.
	DishName() string
	// StoredTotals are the log's own persisted totals. They are never
	// recomputed from the raw response, which may have been superseded.
	StoredTotals() NutritionTotals
	// StoredItems are the log's persisted food items.
	StoredItems() []FoodItem
	// RawAnalysis is the stored provider response, nil when unavailable.
	RawAnalysis() *AnalysisResult
	// PreferredLocale is the locale recorded with the log.
	PreferredLocale() string
}

// DraftItem is one flattened item of a FavoriteMealDraft. Kcal is always
// nil: only macro grams are known per item, total calories are not
// decomposed. This is a documented limitation, not an omission.
type DraftItem struct {
	Name       string   `json:"name"`
	Grams      float64  `json:"grams"`
	Kcal       *float64 `json:"kcal"`
	ProteinG   *float64 `json:"protein_g"`
	FatG       *float64 `json:"fat_g"`
	CarbsG     *float64 `json:"carbs_g"`
	OrderIndex int      `json:"order_index"`
}

// FavoriteMealDraft is the canonical persistable candidate shape.
type FavoriteMealDraft struct {
	Name        string          `json:"name"`
	Notes       string          `json:"notes"`
	Totals      NutritionTotals `json:"totals"`
	Items       []DraftItem     `json:"items"`
	SourceLogID string          `json:"source_log_id"`
}

// BuildDraft normalizes src into a FavoriteMealDraft.
//
// The display name comes from the translation-resolved raw response when
// available, falling back to the record's stored dish name. Totals come
// from the record itself. Items are flattened with zero-based order_index.
func BuildDraft(src DraftSource) FavoriteMealDraft {
	draft := FavoriteMealDraft{
		Name:        src.DishName(),
		Totals:      src.StoredTotals(),
		SourceLogID: src.SourceLogID(),
	}

	items := src.StoredItems()
	if raw := src.RawAnalysis(); raw != nil {
		resolved := Resolve(raw, src.PreferredLocale())
		if resolved != nil {
			if resolved.Dish != "" {
				draft.Name = resolved.Dish
			}
			if len(resolved.Items) == len(items) && len(items) > 0 {
				// Same item set: prefer the localized names.
				items = resolved.Items
			} else if len(items) == 0 {
				items = resolved.Items
			}
		}
	}

	draft.Items = make([]DraftItem, 0, len(items))
	for i, it := range items {
		draft.Items = append(draft.Items, DraftItem{
			Name:       it.Name,
			Grams:      it.Grams,
			ProteinG:   it.ProteinG,
			FatG:       it.FatG,
			CarbsG:     it.CarbsG,
			OrderIndex: i,
		})
	}
	return draft
}
