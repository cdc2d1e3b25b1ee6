package storage

import (
	"context"
)

const getCategoryByName = `-- name: GetCategoryByName :one
SELECT id, name FROM categories WHERE name = ?
`

func (q *Queries) GetCategoryByName(ctx context.Context, name string) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategoryByName, name)
	var i Category
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (name) VALUES (?)
ON CONFLICT (name) DO UPDATE SET name = excluded.name
RETURNING id, name
`

func (q *Queries) CreateCategory(ctx context.Context, name string) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, name)
	var i Category
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name FROM categories ORDER BY id
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createExpense = `-- name: CreateExpense :one
INSERT INTO expenses (user_id, category_id, amount_cents, description, transcription, created_at, archived)
VALUES (?, ?, ?, ?, ?, ?, 0)
RETURNING id, user_id, category_id, amount_cents, description, transcription, created_at, archived
`

type CreateExpenseParams struct {
	UserID        string
	CategoryID    int64
	AmountCents   int64
	Description   string
	Transcription string
	CreatedAt     int64
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.UserID,
		arg.CategoryID,
		arg.AmountCents,
		arg.Description,
		arg.Transcription,
		arg.CreatedAt,
	)
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CategoryID,
		&i.AmountCents,
		&i.Description,
		&i.Transcription,
		&i.CreatedAt,
		&i.Archived,
	)
	return i, err
}

const findRecentDuplicate = `-- name: FindRecentDuplicate :one
SELECT e.id, e.user_id, e.category_id, e.amount_cents, e.description, e.transcription, e.created_at, e.archived, c.name
FROM expenses e
JOIN categories c ON c.id = e.category_id
WHERE e.user_id = ?
  AND e.category_id = ?
  AND e.amount_cents = ?
  AND e.description = ?
  AND e.created_at >= ?
ORDER BY e.created_at DESC
LIMIT 1
`

type FindRecentDuplicateParams struct {
	UserID      string
	CategoryID  int64
	AmountCents int64
	Description string
	Since       int64
}

func (q *Queries) FindRecentDuplicate(ctx context.Context, arg FindRecentDuplicateParams) (ExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, findRecentDuplicate,
		arg.UserID,
		arg.CategoryID,
		arg.AmountCents,
		arg.Description,
		arg.Since,
	)
	return scanExpenseRow(row)
}

const getExpense = `-- name: GetExpense :one
SELECT e.id, e.user_id, e.category_id, e.amount_cents, e.description, e.transcription, e.created_at, e.archived, c.name
FROM expenses e
JOIN categories c ON c.id = e.category_id
WHERE e.id = ?
`

func (q *Queries) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	return scanExpenseRow(q.db.QueryRowContext(ctx, getExpense, id))
}

const listExpensesByUser = `-- name: ListExpensesByUser :many
SELECT e.id, e.user_id, e.category_id, e.amount_cents, e.description, e.transcription, e.created_at, e.archived, c.name
FROM expenses e
JOIN categories c ON c.id = e.category_id
WHERE e.user_id = ? AND e.archived = ?
ORDER BY e.created_at DESC, e.id DESC
LIMIT ?
`

type ListExpensesByUserParams struct {
	UserID   string
	Archived int64
	Limit    int64
}

func (q *Queries) ListExpensesByUser(ctx context.Context, arg ListExpensesByUserParams) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesByUser, arg.UserID, arg.Archived, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		i, err := scanExpenseRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setExpenseArchived = `-- name: SetExpenseArchived :execrows
UPDATE expenses SET archived = ? WHERE id = ?
`

type SetExpenseArchivedParams struct {
	Archived int64
	ID       int64
}

func (q *Queries) SetExpenseArchived(ctx context.Context, arg SetExpenseArchivedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setExpenseArchived, arg.Archived, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createApiToken = `-- name: CreateApiToken :exec
INSERT INTO api_tokens (token_hash, user_id, label, created_at) VALUES (?, ?, ?, ?)
`

type CreateApiTokenParams struct {
	TokenHash string
	UserID    string
	Label     string
	CreatedAt int64
}

func (q *Queries) CreateApiToken(ctx context.Context, arg CreateApiTokenParams) error {
	_, err := q.db.ExecContext(ctx, createApiToken, arg.TokenHash, arg.UserID, arg.Label, arg.CreatedAt)
	return err
}

const getActiveApiToken = `-- name: GetActiveApiToken :one
SELECT token_hash, user_id, label, created_at, revoked_at
FROM api_tokens
WHERE token_hash = ? AND revoked_at IS NULL
`

func (q *Queries) GetActiveApiToken(ctx context.Context, tokenHash string) (ApiToken, error) {
	row := q.db.QueryRowContext(ctx, getActiveApiToken, tokenHash)
	var i ApiToken
	err := row.Scan(&i.TokenHash, &i.UserID, &i.Label, &i.CreatedAt, &i.RevokedAt)
	return i, err
}

const revokeApiToken = `-- name: RevokeApiToken :execrows
UPDATE api_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL
`

type RevokeApiTokenParams struct {
	RevokedAt int64
	TokenHash string
}

func (q *Queries) RevokeApiToken(ctx context.Context, arg RevokeApiTokenParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, revokeApiToken, arg.RevokedAt, arg.TokenHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpenseRow(s scanner) (ExpenseRow, error) {
	var i ExpenseRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.CategoryID,
		&i.AmountCents,
		&i.Description,
		&i.Transcription,
		&i.CreatedAt,
		&i.Archived,
		&i.CategoryName,
	)
	return i, err
}
