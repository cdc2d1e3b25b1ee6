// Package storage persists expenses, categories and API tokens in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voicespese/internal/core"
)

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// NewExpense is the write model for InsertExpense.
type NewExpense struct {
	UserID        string
	CategoryID    int64
	Category      core.Category
	Amount        core.Money
	Description   string
	Transcription string
	CreatedAt     time.Time
}

// DSN adds the pragmas every connection needs.
func DSN(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := DSN(dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}
	return NewRepository(db), nil
}

// NewRepository wraps an already-migrated connection.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, queries: New(db)}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CategoryByName returns the id of a category, or ErrNotFound.
func (r *SQLiteRepository) CategoryByName(ctx context.Context, name string) (int64, error) {
	c, err := r.queries.GetCategoryByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get category %q: %w", name, err)
	}
	return c.ID, nil
}

// CreateCategory inserts name, returning the existing id on conflict.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (int64, error) {
	c, err := r.queries.CreateCategory(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("create category %q: %w", name, err)
	}
	return c.ID, nil
}

// FindDuplicate returns the newest expense with the same user, category,
// amount and description created at or after since.
func (r *SQLiteRepository) FindDuplicate(ctx context.Context, e NewExpense, since time.Time) (core.PersistedExpense, bool, error) {
	return findDuplicate(ctx, r.queries, e, since)
}

// InsertExpense checks the duplicate window and inserts in one transaction,
// so concurrent saves of the same candidate cannot both land. When a
// duplicate exists it is returned with duplicate=true and nothing is written.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, e NewExpense, dupSince time.Time) (core.PersistedExpense, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.PersistedExpense{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if existing, found, err := findDuplicate(ctx, q, e, dupSince); err != nil {
		return core.PersistedExpense{}, false, err
	} else if found {
		return existing, true, nil
	}

	row, err := q.CreateExpense(ctx, CreateExpenseParams{
		UserID:        e.UserID,
		CategoryID:    e.CategoryID,
		AmountCents:   e.Amount.Cents,
		Description:   e.Description,
		Transcription: e.Transcription,
		CreatedAt:     e.CreatedAt.UnixNano(),
	})
	if err != nil {
		return core.PersistedExpense{}, false, fmt.Errorf("create expense: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.PersistedExpense{}, false, fmt.Errorf("commit expense: %w", err)
	}

	return toDomain(ExpenseRow{Expense: row, CategoryName: string(e.Category)}), false, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.PersistedExpense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PersistedExpense{}, ErrNotFound
	}
	if err != nil {
		return core.PersistedExpense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return toDomain(row), nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, archived bool, limit int) ([]core.PersistedExpense, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListExpensesByUser(ctx, ListExpensesByUserParams{
		UserID:   userID,
		Archived: boolToInt(archived),
		Limit:    int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.PersistedExpense, len(rows))
	for i, row := range rows {
		out[i] = toDomain(row)
	}
	return out, nil
}

// SetArchived toggles the soft-delete flag; ErrNotFound when id is unknown.
func (r *SQLiteRepository) SetArchived(ctx context.Context, id int64, archived bool) error {
	n, err := r.queries.SetExpenseArchived(ctx, SetExpenseArchivedParams{Archived: boolToInt(archived), ID: id})
	if err != nil {
		return fmt.Errorf("set archived %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateToken(ctx context.Context, hash, userID, label string, at time.Time) error {
	err := r.queries.CreateApiToken(ctx, CreateApiTokenParams{
		TokenHash: hash,
		UserID:    userID,
		Label:     label,
		CreatedAt: at.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// TokenUser resolves an unrevoked token hash to its user id, or ErrNotFound.
func (r *SQLiteRepository) TokenUser(ctx context.Context, hash string) (string, error) {
	t, err := r.queries.GetActiveApiToken(ctx, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return t.UserID, nil
}

func (r *SQLiteRepository) RevokeToken(ctx context.Context, hash string, at time.Time) error {
	n, err := r.queries.RevokeApiToken(ctx, RevokeApiTokenParams{RevokedAt: at.UnixNano(), TokenHash: hash})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func findDuplicate(ctx context.Context, q *Queries, e NewExpense, since time.Time) (core.PersistedExpense, bool, error) {
	row, err := q.FindRecentDuplicate(ctx, FindRecentDuplicateParams{
		UserID:      e.UserID,
		CategoryID:  e.CategoryID,
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		Since:       since.UnixNano(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.PersistedExpense{}, false, nil
	}
	if err != nil {
		return core.PersistedExpense{}, false, fmt.Errorf("find duplicate: %w", err)
	}
	return toDomain(row), true, nil
}

func toDomain(row ExpenseRow) core.PersistedExpense {
	return core.PersistedExpense{
		ID:            row.ID,
		UserID:        row.UserID,
		CategoryID:    row.CategoryID,
		Category:      core.Category(row.CategoryName),
		Amount:        core.Money{Cents: row.AmountCents},
		Description:   row.Description,
		Transcription: row.Transcription,
		CreatedAt:     time.Unix(0, row.CreatedAt).UTC(),
		Archived:      row.Archived != 0,
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
