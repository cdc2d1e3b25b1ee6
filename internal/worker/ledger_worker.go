// Package worker mirrors expense events into the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"voicespese/internal/amqp"
	"voicespese/internal/core"
	"voicespese/internal/ledger"
	"voicespese/internal/log"
	"voicespese/internal/services"
)

type ExpenseGetter interface {
	Get(ctx context.Context, id int64) (core.PersistedExpense, error)
}

// LedgerWorker reloads the expense named by each event and upserts its
// current state. Events only carry ids, so replays and reordering converge
// on whatever SQLite holds.
type LedgerWorker struct {
	expenses ExpenseGetter
	ledger   ledger.Writer
	logger   *slog.Logger
}

func NewLedgerWorker(expenses ExpenseGetter, w ledger.Writer) *LedgerWorker {
	return &LedgerWorker{
		expenses: expenses,
		ledger:   w,
		logger:   log.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent returns an error only when the event should be redelivered.
func (w *LedgerWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		"event", ev.Type, log.FieldExpenseID, ev.ID, log.FieldUserID, ev.UserID)

	e, err := w.expenses.Get(ctx, ev.ID)
	if errors.Is(err, services.ErrExpenseNotFound) {
		w.logger.WarnContext(ctx, "Expense no longer exists, dropping event", log.FieldExpenseID, ev.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load expense %d: %w", ev.ID, err)
	}

	ref, err := w.ledger.Upsert(ctx, ledger.RowFromExpense(e))
	if err != nil {
		return fmt.Errorf("mirror expense %d: %w", ev.ID, err)
	}
	w.logger.InfoContext(ctx, "Expense mirrored",
		log.FieldExpenseID, ev.ID, "ref", ref, "archived", e.Archived)
	return nil
}

// Run consumes events until ctx is cancelled.
func (w *LedgerWorker) Run(ctx context.Context, client *amqp.Client) error {
	return client.Consume(ctx, w.HandleEvent)
}
