package core

import (
	"strings"

	"github.com/samber/lo"
)

// Category is one of the fixed expense buckets.
type Category string

const (
	CategoryEssentials        Category = "essentials"
	CategoryLeisure           Category = "leisure"
	CategoryRecurringPayments Category = "recurring_payments"

	// DefaultCategory absorbs labels that match nothing in the fixed set.
	DefaultCategory = CategoryEssentials
)

var categories = []Category{CategoryEssentials, CategoryLeisure, CategoryRecurringPayments}

// Labels produced by older prompts or by the model drifting off the list.
var categoryAliases = map[string]Category{
	"essential":         CategoryEssentials,
	"food":              CategoryEssentials,
	"transport":         CategoryEssentials,
	"transportation":    CategoryEssentials,
	"leisure":           CategoryLeisure,
	"entertainment":     CategoryLeisure,
	"shopping":          CategoryLeisure,
	"fun":               CategoryLeisure,
	"utilities":         CategoryRecurringPayments,
	"recurring":         CategoryRecurringPayments,
	"recurring_payment": CategoryRecurringPayments,
	"subscription":      CategoryRecurringPayments,
	"subscriptions":     CategoryRecurringPayments,
	"bills":             CategoryRecurringPayments,
	"other":             DefaultCategory,
}

// Categories returns the fixed category set in prompt order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryNames returns the fixed set as plain strings.
func CategoryNames() []string {
	return lo.Map(categories, func(c Category, _ int) string { return string(c) })
}

func (c Category) Valid() bool {
	return lo.Contains(categories, c)
}

func (c Category) String() string {
	return string(c)
}

// NormalizeCategory maps a free-form label onto the fixed set. Unknown or
// empty labels fall back to DefaultCategory instead of failing.
func NormalizeCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c := Category(key); c.Valid() {
		return c
	}
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return DefaultCategory
}
