package storage

import "database/sql"

type Category struct {
	ID   int64
	Name string
}

type Expense struct {
	ID            int64
	UserID        string
	CategoryID    int64
	AmountCents   int64
	Description   string
	Transcription string
	CreatedAt     int64
	Archived      int64
}

// ExpenseRow is an expense joined with its category name.
type ExpenseRow struct {
	Expense
	CategoryName string
}

type ApiToken struct {
	TokenHash string
	UserID    string
	Label     string
	CreatedAt int64
	RevokedAt sql.NullInt64
}
