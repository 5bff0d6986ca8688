// Translation resolution.
//
// Resolve picks the display variant of an analysis for a preferred locale.
// The selection is deterministic: exact preferred tag, then the fixed
// fallback order (English base tag, then American English), then the first
// variant in provider insertion order, and finally a pseudo-translation
// synthesized from the canonical fields so the resolver never returns nil
// when any analysis data exists.
package nutrition

// DefaultConfidence is substituted when neither a variant nor the canonical
// response carries a confidence score.
const DefaultConfidence = 0.5

// fallbackTags is the fixed fallback order tried after the preferred locale.
var fallbackTags = []string{"en", "en-US"}

// Resolve returns the localized view of res for preferredLocale.
//
// Totals always come from the canonical response; variants only contribute
// display text (dish, item names, warnings). The returned value is a copy
// with its own Translations cleared, safe to hand to callers.
func Resolve(res *AnalysisResult, preferredLocale string) *AnalysisResult {
	if res == nil {
		return nil
	}
	if res.Translations.IsZero() {
		return res
	}

	if preferredLocale != "" {
		if v, ok := res.Translations.Get(preferredLocale); ok {
			return localize(res, v)
		}
	}
	for _, tag := range fallbackTags {
		if v, ok := res.Translations.Get(tag); ok {
			return localize(res, v)
		}
	}
	if _, v, ok := res.Translations.First(); ok {
		return localize(res, v)
	}

	// Translations present but empty or all-null: synthesize from the
	// canonical fields.
	out := res.Clone()
	if out.Confidence == nil {
		c := DefaultConfidence
		out.Confidence = &c
	}
	return out
}

// localize merges a display variant onto the canonical analysis.
func localize(canonical, variant *AnalysisResult) *AnalysisResult {
	out := variant.Clone()
	out.Totals = canonical.Totals
	if out.Dish == "" {
		out.Dish = canonical.Dish
	}
	if len(out.Items) == 0 {
		out.Items = append([]FoodItem(nil), canonical.Items...)
	}
	if out.Confidence == nil {
		if canonical.Confidence != nil {
			c := *canonical.Confidence
			out.Confidence = &c
		} else {
			c := DefaultConfidence
			out.Confidence = &c
		}
	}
	if out.LandingType == nil && canonical.LandingType != nil {
		lt := *canonical.LandingType
		out.LandingType = &lt
	}
	if out.Meta == nil {
		out.Meta = canonical.Meta
	}
	return out
}
