package core

import "testing"

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
	}{
		{"essentials", CategoryEssentials},
		{" Leisure ", CategoryLeisure},
		{"Recurring Payments", CategoryRecurringPayments},
		{"recurring-payments", CategoryRecurringPayments},
		{"entertainment", CategoryLeisure},
		{"utilities", CategoryRecurringPayments},
		{"food", CategoryEssentials},
		{"groceries", DefaultCategory},
		{"", DefaultCategory},
	}
	for _, tc := range cases {
		if got := NormalizeCategory(tc.in); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestCategoriesIsCopy(t *testing.T) {
	cs := Categories()
	cs[0] = "mutated"
	if Categories()[0] != CategoryEssentials {
		t.Fatalf("Categories must return a copy")
	}
	if len(CategoryNames()) != 3 {
		t.Fatalf("expected three category names")
	}
}
