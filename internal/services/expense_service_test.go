package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voicespese/internal/amqp"
	"voicespese/internal/core"
	"voicespese/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T, pub Publisher, allowCreate bool) (*ExpenseService, *storage.SQLiteRepository, *testClock) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "expenses.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewExpenseService(repo, pub, ExpenseConfig{AllowCategoryCreate: allowCreate, Now: clock.Now})
	return svc, repo, clock
}

func lunch() core.ExtractedExpense {
	return core.ExtractedExpense{Amount: core.Money{Cents: 1250}, Category: core.CategoryEssentials, Description: "lunch"}
}

func TestSaveDuplicateWithinWindow(t *testing.T) {
	pub := &recordingPublisher{}
	svc, repo, clock := newTestService(t, pub, false)
	ctx := context.Background()

	first, err := svc.Save(ctx, "user-1", lunch(), "I spent 12.50 on lunch")
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first save must not be a duplicate")
	}

	clock.Advance(2 * time.Second)
	second, err := svc.Save(ctx, "user-1", lunch(), "I spent 12.50 on lunch")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !second.Duplicate || second.Expense.ID != first.Expense.ID {
		t.Fatalf("expected duplicate of %d, got %+v", first.Expense.ID, second)
	}

	rows, err := repo.ListExpenses(ctx, "user-1", false, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one persisted row, got %d", len(rows))
	}
	if len(pub.events) != 1 || pub.events[0].Type != amqp.EventExpenseCreated {
		t.Fatalf("expected one created event, got %+v", pub.events)
	}
}

func TestSaveOutsideWindowPersistsAgain(t *testing.T) {
	svc, repo, clock := newTestService(t, nil, false)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "user-1", lunch(), ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	clock.Advance(DefaultDuplicateWindow + time.Second)
	res, err := svc.Save(ctx, "user-1", lunch(), "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Duplicate {
		t.Fatal("save after the window must not be a duplicate")
	}
	rows, _ := repo.ListExpenses(ctx, "user-1", false, 0)
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
}

func TestDuplicateIsPerUserAndField(t *testing.T) {
	svc, _, _ := newTestService(t, nil, false)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "user-1", lunch(), ""); err != nil {
		t.Fatalf("save: %v", err)
	}

	variants := []struct {
		name string
		user string
		exp  core.ExtractedExpense
	}{
		{"other user", "user-2", lunch()},
		{"other amount", "user-1", core.ExtractedExpense{Amount: core.Money{Cents: 1251}, Category: core.CategoryEssentials, Description: "lunch"}},
		{"other category", "user-1", core.ExtractedExpense{Amount: core.Money{Cents: 1250}, Category: core.CategoryLeisure, Description: "lunch"}},
		{"other description", "user-1", core.ExtractedExpense{Amount: core.Money{Cents: 1250}, Category: core.CategoryEssentials, Description: "Lunch"}},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			res, err := svc.Save(ctx, v.user, v.exp, "")
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if res.Duplicate {
				t.Fatal("should not be treated as a duplicate")
			}
		})
	}
}

func TestCheckDuplicate(t *testing.T) {
	svc, _, clock := newTestService(t, nil, false)
	ctx := context.Background()

	res, err := svc.Save(ctx, "user-1", lunch(), "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	dup, err := svc.CheckDuplicate(ctx, "user-1", res.Expense.CategoryID, core.Money{Cents: 1250}, "  lunch ")
	if err != nil || !dup {
		t.Fatalf("expected duplicate, got %v %v", dup, err)
	}

	clock.Advance(10 * time.Second)
	dup, err = svc.CheckDuplicate(ctx, "user-1", res.Expense.CategoryID, core.Money{Cents: 1250}, "lunch")
	if err != nil || dup {
		t.Fatalf("expected no duplicate after window, got %v %v", dup, err)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService(t, nil, false)
	ctx := context.Background()

	tests := []struct {
		name string
		user string
		exp  core.ExtractedExpense
		kind core.Kind
	}{
		{"no user", "", lunch(), core.KindAuthRequired},
		{"zero amount", "u", core.ExtractedExpense{Category: core.CategoryLeisure, Description: "x"}, core.KindMalformedExtraction},
		{"unknown category", "u", core.ExtractedExpense{Amount: core.Money{Cents: 1}, Category: "groceries", Description: "x"}, core.KindInvalidCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, tt.user, tt.exp, "")
			if core.KindOf(err) != tt.kind {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

type missingCategoryRepo struct {
	Repository
	created []string
}

func (r *missingCategoryRepo) CategoryByName(context.Context, string) (int64, error) {
	return 0, storage.ErrNotFound
}

func (r *missingCategoryRepo) CreateCategory(_ context.Context, name string) (int64, error) {
	r.created = append(r.created, name)
	return 99, nil
}

func TestResolveCategoryCreation(t *testing.T) {
	ctx := context.Background()

	repo := &missingCategoryRepo{}
	strict := NewExpenseService(repo, nil, ExpenseConfig{})
	if _, err := strict.ResolveCategory(ctx, core.CategoryLeisure); !errors.Is(err, core.ErrInvalidCategory) {
		t.Fatalf("expected invalid category, got %v", err)
	}

	lenient := NewExpenseService(repo, nil, ExpenseConfig{AllowCategoryCreate: true})
	id, err := lenient.ResolveCategory(ctx, core.CategoryLeisure)
	if err != nil || id != 99 {
		t.Fatalf("expected created id 99, got %d %v", id, err)
	}
	if _, err := lenient.ResolveCategory(ctx, core.CategoryLeisure); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("category should be created once, got %v", repo.created)
	}
}

type failingRepo struct {
	Repository
}

func (failingRepo) CategoryByName(context.Context, string) (int64, error) { return 1, nil }

func (failingRepo) InsertExpense(context.Context, storage.NewExpense, time.Time) (core.PersistedExpense, bool, error) {
	return core.PersistedExpense{}, false, errors.New("disk I/O error")
}

func TestSaveStorageFailure(t *testing.T) {
	svc := NewExpenseService(failingRepo{}, nil, ExpenseConfig{})
	_, err := svc.Save(context.Background(), "u", lunch(), "")
	if !errors.Is(err, core.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestPublishFailureDoesNotFailSave(t *testing.T) {
	pub := &recordingPublisher{err: amqp.ErrCircuitOpen}
	svc, _, _ := newTestService(t, pub, false)
	if _, err := svc.Save(context.Background(), "u", lunch(), ""); err != nil {
		t.Fatalf("save should succeed despite publish failure: %v", err)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, _ := newTestService(t, pub, false)
	ctx := context.Background()

	res, err := svc.Save(ctx, "user-1", lunch(), "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	id := res.Expense.ID

	if _, err := svc.Archive(ctx, "user-2", id, true); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("foreign user must not archive, got %v", err)
	}

	row, err := svc.Archive(ctx, "user-1", id, true)
	if err != nil || !row.Archived {
		t.Fatalf("archive: %+v %v", row, err)
	}
	active, _ := svc.List(ctx, "user-1", false, 10)
	archived, _ := svc.List(ctx, "user-1", true, 10)
	if len(active) != 0 || len(archived) != 1 {
		t.Fatalf("expected 0 active and 1 archived, got %d and %d", len(active), len(archived))
	}

	if _, err := svc.Archive(ctx, "user-1", id, false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := svc.Archive(ctx, "user-1", 9999, true); !errors.Is(err, ErrExpenseNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	want := []amqp.EventType{amqp.EventExpenseCreated, amqp.EventExpenseArchived, amqp.EventExpenseRestored}
	if len(pub.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), pub.events)
	}
	for i, w := range want {
		if pub.events[i].Type != w {
			t.Errorf("event %d: got %s, want %s", i, pub.events[i].Type, w)
		}
	}
}
