// Package ledger mirrors persisted expenses into an external ledger that
// people read directly, such as a shared spreadsheet.
package ledger

import (
	"context"
	"time"

	"voicespese/internal/core"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Row is one mirrored expense. ID is the SQLite expense id and is the key
// rows are matched on.
type Row struct {
	ID          int64
	CreatedAt   time.Time
	UserID      string
	Category    core.Category
	Amount      core.Money
	Description string
	Status      Status
}

// Writer inserts a row or rewrites the existing row with the same ID.
// Upsert must be safe to repeat for the same row.
type Writer interface {
	Upsert(ctx context.Context, row Row) (ref string, err error)
}

// RowFromExpense converts a persisted expense into its ledger form.
func RowFromExpense(e core.PersistedExpense) Row {
	status := StatusActive
	if e.Archived {
		status = StatusArchived
	}
	return Row{
		ID:          e.ID,
		CreatedAt:   e.CreatedAt,
		UserID:      e.UserID,
		Category:    e.Category,
		Amount:      e.Amount,
		Description: e.Description,
		Status:      status,
	}
}
