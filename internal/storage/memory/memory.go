// Package memory is an in-process Store used as the default backend and
// as the test double for the service layer. A single mutex guards all
// state, which also gives the paid-status toggle its all-or-nothing
// behavior.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/services"
)

type Store struct {
	mu           sync.Mutex
	transactions []core.Transaction
	categories   []core.Category
	snapshots    []core.BalanceSnapshot
}

// Ensure interface conformance
var (
	_ services.TransactionStore = (*Store)(nil)
	_ services.CategoryStore    = (*Store)(nil)
	_ services.BalanceStore     = (*Store)(nil)
)

func New() *Store {
	return &Store{}
}

// NewWithSystemCategories returns a store pre-seeded with the shared
// SYSTEM categories, mirroring what the sqlite migrations seed.
func NewWithSystemCategories() *Store {
	s := New()
	for _, c := range []struct {
		name string
		typ  core.TransactionType
	}{
		{"Moradia", core.Outcome},
		{"Alimentação", core.Outcome},
		{"Transporte", core.Outcome},
		{"Educação", core.Outcome},
		{"Saúde", core.Outcome},
		{"Lazer", core.Outcome},
		{"Outros", core.Outcome},
		{"Salário", core.Income},
		{"Investimentos", core.Income},
	} {
		s.categories = append(s.categories, core.Category{
			ID:        uuid.NewString(),
			Name:      c.name,
			Type:      c.typ,
			Source:    core.SourceSystem,
			CreatedAt: time.Now().UTC(),
		})
	}
	return s
}

// AddCategory seeds a category, returning its id.
func (s *Store) AddCategory(c core.Category) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.categories = append(s.categories, c)
	return c.ID
}

func (s *Store) ListByDue(ctx context.Context, user string, f services.TransactionFilter) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.User != user || t.DueAt.Before(f.From) || !t.DueAt.Before(f.To) {
			continue
		}
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.Before(out[j].DueAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListRecurringParents(ctx context.Context, user string, until time.Time, exclude []string, category string) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	var out []core.Transaction
	for _, t := range s.transactions {
		if t.User != user || !t.IsParent() {
			continue
		}
		if t.NextDueAt == nil || !t.NextDueAt.Before(until) {
			continue
		}
		if _, ok := excluded[t.ID]; ok {
			continue
		}
		if category != "" && category != services.CategoryAll && t.Category.ID != category {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) CreateTransactions(ctx context.Context, user string, rows []core.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if row.User != user {
			return fmt.Errorf("%w: row %q belongs to another user", core.ErrConflict, row.ID)
		}
	}
	s.transactions = append(s.transactions, rows...)
	return nil
}

func (s *Store) RemoveFamily(ctx context.Context, user string, id string, reference *string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := func(t core.Transaction) bool {
		if t.ID == id {
			return true
		}
		if t.Reference != nil && *t.Reference == id {
			return true
		}
		if reference != nil {
			if t.ID == *reference {
				return true
			}
			if t.Reference != nil && *t.Reference == *reference {
				return true
			}
		}
		return false
	}

	var removed int64
	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.User == user && matches(t) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.transactions = kept
	return removed, nil
}

func (s *Store) SetPaidStatus(ctx context.Context, user string, upd services.PaidStatusUpdate) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.latestLocked(user)
	if !ok {
		return core.Transaction{}, core.ErrNoBalance
	}

	now := time.Now().UTC()
	var stored core.Transaction
	found := false
	for i, t := range s.transactions {
		if t.User == user && t.ID == upd.ID {
			s.transactions[i].PaidAt = upd.PaidAt
			s.transactions[i].UpdatedAt = &now
			stored = s.transactions[i]
			found = true
			break
		}
	}
	if !found {
		// The id belongs to a virtual occurrence: materialize it.
		stored = upd.Row
		stored.ID = upd.ID
		stored.User = user
		stored.PaidAt = upd.PaidAt
		stored.Virtual = false
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		s.transactions = append(s.transactions, stored)
	}

	trx := stored.ID
	s.snapshots = append(s.snapshots, core.BalanceSnapshot{
		ID:          uuid.NewString(),
		User:        user,
		Balance:     current.Balance + core.BalanceDelta(stored.Type, upd.PaidAt != nil, stored.Value),
		Transaction: &trx,
		CreatedAt:   now,
	})
	return stored, nil
}

func (s *Store) ListVisible(ctx context.Context, user string) ([]core.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Category
	for _, c := range s.categories {
		if c.VisibleTo(user) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, user string, id string) (core.Category, error) {
	if err := ctx.Err(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.ID == id && c.VisibleTo(user) {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, id)
}

func (s *Store) LatestSnapshot(ctx context.Context, user string) (core.BalanceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.BalanceSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.latestLocked(user)
	if !ok {
		return core.BalanceSnapshot{}, core.ErrNoBalance
	}
	return snapshot, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snapshot core.BalanceSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *Store) ExpectedBalance(ctx context.Context, user string, until time.Time) (services.ExpectedBalance, error) {
	if err := ctx.Err(); err != nil {
		return services.ExpectedBalance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.latestLocked(user)
	if !ok {
		return services.ExpectedBalance{}, core.ErrNoBalance
	}

	start, end := core.MonthWindow(until)
	out := services.ExpectedBalance{Current: current.Balance, Expected: current.Balance}
	for _, t := range s.transactions {
		if t.User != user {
			continue
		}
		if !t.Paid() && t.DueAt.Before(end) {
			if t.Type == core.Income {
				out.Expected += t.Value
			} else {
				out.Expected -= t.Value
			}
		}
		if !t.DueAt.Before(start) && t.DueAt.Before(end) {
			if t.Type == core.Income {
				out.MonthIncome += t.Value
			} else {
				out.MonthOutcome += t.Value
			}
		}
	}
	return out, nil
}

// latestLocked returns the newest snapshot for user. Appends happen in
// order under the lock, so the slice tail is authoritative.
func (s *Store) latestLocked(user string) (core.BalanceSnapshot, bool) {
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].User == user {
			return s.snapshots[i], true
		}
	}
	return core.BalanceSnapshot{}, false
}
