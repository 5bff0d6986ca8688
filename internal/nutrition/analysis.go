// Package nutrition defines the provider-independent shapes of a meal
// analysis: the canonical AnalysisResult returned by the AI provider, the
// per-locale translation variants nested inside it, and the persistable
// FavoriteMealDraft derived from a stored log.
//
// AnalysisResult and its translations are immutable once produced; downstream
// code only reads or copies them.
package nutrition

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NutritionTotals carries the aggregate macros of one analyzed meal.
// All values are non-negative; kcal is never decomposed per item.
type NutritionTotals struct {
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	FatG     float64 `json:"fat_g"`
	CarbsG   float64 `json:"carbs_g"`
}

// FoodItem is one recognized component of the meal. Macro grams are optional
// because the provider does not always decompose them per item.
type FoodItem struct {
	Name     string   `json:"name"`
	Grams    float64  `json:"grams"`
	ProteinG *float64 `json:"protein_g"`
	FatG     *float64 `json:"fat_g"`
	CarbsG   *float64 `json:"carbs_g"`
}

// AnalysisResult is the canonical nutrition analysis for one meal.
//
// Translations, when present, holds locale-specific renderings of the same
// analysis (dish name, item names, warnings). They are display variants
// only: totals are always taken from the canonical result, never from a
// variant. Nesting is one level deep; a variant never carries translations
// of its own.
type AnalysisResult struct {
	Dish         string          `json:"dish"`
	Confidence   *float64        `json:"confidence,omitempty"`
	Totals       NutritionTotals `json:"totals"`
	Items        []FoodItem      `json:"items"`
	Warnings     []string        `json:"warnings,omitempty"`
	LandingType  *string         `json:"landing_type,omitempty"`
	Translations Translations    `json:"translations,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
}

// Clone returns a deep-enough copy of r suitable for building a localized
// view without mutating the original. Slices are copied; Meta is shared
// (it is opaque and read-only).
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Translations = Translations{}
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.LandingType != nil {
		lt := *r.LandingType
		out.LandingType = &lt
	}
	out.Items = append([]FoodItem(nil), r.Items...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}

// Translations is an insertion-ordered mapping from a BCP 47 locale tag to
// a translation variant. JSON objects are decoded with their key order
// preserved so that "first available translation" is well defined.
//
// Lookup is canonical: "en-us", "en_US" and "en-US" address the same entry.
type Translations struct {
	tags    []string
	variant map[string]*AnalysisResult
}

// NewTranslations builds an ordered translation set from (tag, variant)
// pairs. Later duplicates of an already-canonicalized tag are ignored.
func NewTranslations(pairs ...TranslationPair) Translations {
	var t Translations
	for _, p := range pairs {
		t.put(p.Tag, p.Variant)
	}
	return t
}

// TranslationPair pairs a locale tag with its variant, used by NewTranslations.
type TranslationPair struct {
	Tag     string
	Variant *AnalysisResult
}

// Len returns the number of stored variants.
func (t Translations) Len() int { return len(t.tags) }

// IsZero reports whether the translations key was absent entirely.
// A present-but-empty object ({}) has IsZero false and Len 0.
func (t Translations) IsZero() bool { return t.variant == nil }

// Tags returns the locale tags in insertion order.
func (t Translations) Tags() []string {
	return append([]string(nil), t.tags...)
}

// Get returns the variant for tag, matching canonically.
func (t Translations) Get(tag string) (*AnalysisResult, bool) {
	if t.variant == nil {
		return nil, false
	}
	v, ok := t.variant[canonicalTag(tag)]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// First returns the first usable variant in insertion order.
func (t Translations) First() (tag string, v *AnalysisResult, ok bool) {
	for _, tg := range t.tags {
		if cand := t.variant[canonicalTag(tg)]; cand != nil {
			return tg, cand, true
		}
	}
	return "", nil, false
}

func (t *Translations) put(tag string, v *AnalysisResult) {
	key := canonicalTag(tag)
	if key == "" {
		return
	}
	if t.variant == nil {
		t.variant = make(map[string]*AnalysisResult)
	}
	if _, dup := t.variant[key]; !dup {
		t.tags = append(t.tags, tag)
	}
	t.variant[key] = v
}

// MarshalJSON emits the variants as a JSON object in insertion order.
func (t Translations) MarshalJSON() ([]byte, error) {
	if t.variant == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tag := range t.tags {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(tag)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(t.variant[canonicalTag(tag)])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of locale → variant while preserving
// the key order the provider emitted.
func (t *Translations) UnmarshalJSON(data []byte) error {
	*t = Translations{}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("nutrition: translations must be a JSON object")
	}
	t.variant = make(map[string]*AnalysisResult)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v *AnalysisResult
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			v = new(AnalysisResult)
			if err := json.Unmarshal(raw, v); err != nil {
				return fmt.Errorf("nutrition: translation %q: %w", key, err)
			}
		}
		t.put(key, v)
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// canonicalTag normalizes a locale string to its BCP 47 canonical form,
// falling back to a trimmed lower-case compare for unparseable input.
func canonicalTag(tag string) string {
	s := strings.TrimSpace(tag)
	if s == "" {
		return ""
	}
	if parsed, err := language.Parse(strings.ReplaceAll(s, "_", "-")); err == nil {
		return parsed.String()
	}
	return strings.ToLower(s)
}

// ItemList stores []FoodItem as a JSON column via GORM.
type ItemList []FoodItem

// Value implements driver.Valuer.
func (l ItemList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *ItemList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("nutrition: cannot scan %T into ItemList", src)
	}
}

// StringList stores []string (warnings) as a JSON column via GORM.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("nutrition: cannot scan %T into StringList", src)
	}
}
