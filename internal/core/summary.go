package core

import "github.com/samber/lo"

// CategoryAmount is an amount aggregated by category.
type CategoryAmount struct {
	Category Category
	Amount   Money
	Count    int
}

// ExpenseSummary totals a list of expenses, excluding archived ones.
type ExpenseSummary struct {
	Total      Money
	Count      int
	ByCategory []CategoryAmount
}

// Summarize groups active expenses by category in the fixed category order.
func Summarize(expenses []PersistedExpense) ExpenseSummary {
	active := lo.Filter(expenses, func(e PersistedExpense, _ int) bool { return !e.Archived })
	grouped := lo.GroupBy(active, func(e PersistedExpense) Category { return e.Category })

	var s ExpenseSummary
	for _, c := range categories {
		items, ok := grouped[c]
		if !ok {
			continue
		}
		sum := lo.SumBy(items, func(e PersistedExpense) int64 { return e.Amount.Cents })
		s.ByCategory = append(s.ByCategory, CategoryAmount{Category: c, Amount: Money{Cents: sum}, Count: len(items)})
		s.Total.Cents += sum
		s.Count += len(items)
	}
	return s
}
