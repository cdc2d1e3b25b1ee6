package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"voicespese/internal/amqp"
	"voicespese/internal/cache"
	"voicespese/internal/core"
	vlog "voicespese/internal/log"
	"voicespese/internal/metrics"
	"voicespese/internal/storage"
)

// DefaultDuplicateWindow is how far back a save looks for an identical row.
const DefaultDuplicateWindow = 5 * time.Second

var ErrExpenseNotFound = errors.New("expense not found")

// Repository is the slice of storage the service needs.
type Repository interface {
	CategoryByName(ctx context.Context, name string) (int64, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	FindDuplicate(ctx context.Context, e storage.NewExpense, since time.Time) (core.PersistedExpense, bool, error)
	InsertExpense(ctx context.Context, e storage.NewExpense, dupSince time.Time) (core.PersistedExpense, bool, error)
	GetExpense(ctx context.Context, id int64) (core.PersistedExpense, error)
	ListExpenses(ctx context.Context, userID string, archived bool, limit int) ([]core.PersistedExpense, error)
	SetArchived(ctx context.Context, id int64, archived bool) error
}

// Publisher receives expense lifecycle events. Failures are logged, never
// returned to the caller: the row is already committed.
type Publisher interface {
	Publish(ctx context.Context, ev *amqp.ExpenseEvent) error
}

type ExpenseConfig struct {
	// DuplicateWindow of zero means DefaultDuplicateWindow; the guard cannot
	// be switched off.
	DuplicateWindow     time.Duration
	AllowCategoryCreate bool
	Now                 func() time.Time
}

// SaveResult reports what Save did. Duplicate is true when an identical
// expense was found inside the window and nothing new was written.
type SaveResult struct {
	Expense   core.PersistedExpense
	Duplicate bool
}

// ExpenseService resolves categories, guards against duplicates and writes
// expenses, publishing an event for every change.
type ExpenseService struct {
	repo       Repository
	publisher  Publisher
	categories *cache.LRUCache[int64]
	cfg        ExpenseConfig
	logger     *slog.Logger
}

func NewExpenseService(repo Repository, publisher Publisher, cfg ExpenseConfig) *ExpenseService {
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExpenseService{
		repo:       repo,
		publisher:  publisher,
		categories: cache.NewLRUCache[int64](16, 10*time.Minute),
		cfg:        cfg,
		logger:     vlog.WithComponent(vlog.ComponentExpense),
	}
}

// CategoryCache exposes the category id cache so it can be swept.
func (s *ExpenseService) CategoryCache() cache.Cleaner {
	return s.categories
}

// ResolveCategory returns the row id for c, creating the row only when
// configured to.
func (s *ExpenseService) ResolveCategory(ctx context.Context, c core.Category) (int64, error) {
	if !c.Valid() {
		return 0, core.Newf(core.KindInvalidCategory, "unknown category %q", c)
	}
	if id, ok := s.categories.Get(string(c)); ok {
		return id, nil
	}

	id, err := s.repo.CategoryByName(ctx, string(c))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if !s.cfg.AllowCategoryCreate {
			return 0, core.Newf(core.KindInvalidCategory, "category %q does not exist", c)
		}
		id, err = s.repo.CreateCategory(ctx, string(c))
		if err != nil {
			return 0, core.Wrap(core.KindStorageError, "create category", err)
		}
		s.logger.InfoContext(ctx, "Created category", vlog.FieldCategory, c)
	case err != nil:
		return 0, core.Wrap(core.KindStorageError, "lookup category", err)
	}

	s.categories.Set(string(c), id)
	return id, nil
}

// CheckDuplicate reports whether the user saved the same category, amount
// and description within the duplicate window. Description comparison is
// exact after trimming.
func (s *ExpenseService) CheckDuplicate(ctx context.Context, userID string, categoryID int64, amount core.Money, description string) (bool, error) {
	_, found, err := s.repo.FindDuplicate(ctx, storage.NewExpense{
		UserID:      userID,
		CategoryID:  categoryID,
		Amount:      amount,
		Description: strings.TrimSpace(description),
	}, s.cfg.Now().Add(-s.cfg.DuplicateWindow))
	if err != nil {
		return false, core.Wrap(core.KindStorageError, "duplicate check", err)
	}
	return found, nil
}

// Save persists e for userID unless an identical expense already landed
// inside the window, in which case the existing row is returned.
func (s *ExpenseService) Save(ctx context.Context, userID string, e core.ExtractedExpense, transcription string) (SaveResult, error) {
	if strings.TrimSpace(userID) == "" {
		return SaveResult{}, core.Wrap(core.KindAuthRequired, "save without user", core.ErrEmptyUser)
	}
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		if errors.Is(err, core.ErrUnknownCategory) {
			return SaveResult{}, core.Wrap(core.KindInvalidCategory, "invalid category", err)
		}
		return SaveResult{}, core.Wrap(core.KindMalformedExtraction, "invalid expense", err)
	}

	categoryID, err := s.ResolveCategory(ctx, e.Category)
	if err != nil {
		return SaveResult{}, err
	}

	now := s.cfg.Now()
	row, duplicate, err := s.repo.InsertExpense(ctx, storage.NewExpense{
		UserID:        userID,
		CategoryID:    categoryID,
		Category:      e.Category,
		Amount:        e.Amount,
		Description:   e.Description,
		Transcription: transcription,
		CreatedAt:     now,
	}, now.Add(-s.cfg.DuplicateWindow))
	if err != nil {
		return SaveResult{}, core.Wrap(core.KindStorageError, "save expense", err)
	}

	if duplicate {
		metrics.DuplicateSkipped()
		s.logger.InfoContext(ctx, "Skipped duplicate expense",
			vlog.FieldExpenseID, row.ID,
			vlog.FieldUserID, userID,
			vlog.FieldAmountCents, e.Amount.Cents)
		return SaveResult{Expense: row, Duplicate: true}, nil
	}

	s.logger.InfoContext(ctx, "Expense saved",
		vlog.NewFields().WithUser(userID).WithExpense(row.ID, string(row.Category), row.Amount.Cents).ToSlice()...)
	s.publish(ctx, amqp.EventExpenseCreated, row)
	return SaveResult{Expense: row}, nil
}

// Get returns one expense by id.
func (s *ExpenseService) Get(ctx context.Context, id int64) (core.PersistedExpense, error) {
	row, err := s.repo.GetExpense(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return core.PersistedExpense{}, ErrExpenseNotFound
	}
	if err != nil {
		return core.PersistedExpense{}, core.Wrap(core.KindStorageError, "get expense", err)
	}
	return row, nil
}

// Archive toggles the archived flag on an expense. Rows owned by another
// user are reported as not found.
func (s *ExpenseService) Archive(ctx context.Context, userID string, id int64, archived bool) (core.PersistedExpense, error) {
	row, err := s.Get(ctx, id)
	if err != nil {
		return core.PersistedExpense{}, err
	}
	if row.UserID != userID {
		return core.PersistedExpense{}, ErrExpenseNotFound
	}
	if row.Archived == archived {
		return row, nil
	}

	if err := s.repo.SetArchived(ctx, id, archived); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.PersistedExpense{}, ErrExpenseNotFound
		}
		return core.PersistedExpense{}, core.Wrap(core.KindStorageError, "archive expense", err)
	}
	row.Archived = archived

	ev := amqp.EventExpenseArchived
	if !archived {
		ev = amqp.EventExpenseRestored
	}
	s.publish(ctx, ev, row)
	return row, nil
}

// List returns the user's expenses, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string, archived bool, limit int) ([]core.PersistedExpense, error) {
	rows, err := s.repo.ListExpenses(ctx, userID, archived, limit)
	if err != nil {
		return nil, core.Wrap(core.KindStorageError, "list expenses", err)
	}
	return rows, nil
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, row core.PersistedExpense) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping", "event", t)
		return
	}
	if err := s.publisher.Publish(ctx, amqp.NewExpenseEvent(t, row.ID, row.UserID)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			"event", t, vlog.FieldExpenseID, row.ID, vlog.FieldError, err)
	}
}
