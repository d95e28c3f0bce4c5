package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hiwllc/tracker/internal/core"
)

// TransactionService merges persisted transactions with projected
// virtual occurrences and runs every transaction mutation.
type TransactionService struct {
	store      TransactionStore
	categories CategoryStore
	signal     Revalidator
}

func NewTransactionService(store TransactionStore, categories CategoryStore, signal Revalidator) *TransactionService {
	return &TransactionService{
		store:      store,
		categories: categories,
		signal:     signal,
	}
}

// Query selects a month view. Date picks the month (normalized to its
// first day), Status defaults to unpaid, Category to all.
type Query struct {
	Date     time.Time
	Status   Status
	Category string
}

func (q Query) normalized() Query {
	if q.Date.IsZero() {
		q.Date = time.Now()
	}
	if q.Status == "" {
		q.Status = StatusUnpaid
	}
	if q.Category == "" {
		q.Category = CategoryAll
	}
	return q
}

// CreateTransaction is the creation payload. Value is in minor units.
// Installments >= 2 fans the transaction out into one eagerly persisted
// row per installment.
type CreateTransaction struct {
	Name         string
	Description  string
	Type         core.TransactionType
	Interval     core.Interval
	Value        int64
	Category     string
	DueAt        time.Time
	Installments int
}

// All returns the ordered month view: concrete rows dued in the month
// plus virtual occurrences of recurring parents not materialized there,
// both under the same status and category filters.
func (s *TransactionService) All(ctx context.Context, user string, q Query) ([]core.Transaction, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	q = q.normalized()
	start, end := core.MonthWindow(q.Date)
	filter := TransactionFilter{From: start, To: end, Status: q.Status, Category: q.Category}

	concrete, err := s.store.ListByDue(ctx, user, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	virtual, err := s.projectMonth(ctx, user, start, end, filter)
	if err != nil {
		return nil, err
	}

	merged := append(concrete, virtual...)
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].DueAt.Equal(merged[j].DueAt) {
			return merged[i].DueAt.Before(merged[j].DueAt)
		}
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged, nil
}

// projectMonth runs the store-facing half of the recurrence projection:
// collect the parent ids already materialized in the window, fetch the
// remaining due parents and expand them. Virtual occurrences are unpaid
// by definition, so a paid-only view never contains any.
func (s *TransactionService) projectMonth(ctx context.Context, user string, start, end time.Time, filter TransactionFilter) ([]core.Transaction, error) {
	if filter.Status == StatusPaid {
		return nil, nil
	}

	// References must be collected across every status and category,
	// not just the filtered view: a parent paid for this month is still
	// materialized here.
	window, err := s.store.ListByDue(ctx, user, TransactionFilter{From: start, To: end, Status: StatusAll, Category: CategoryAll})
	if err != nil {
		return nil, fmt.Errorf("list window references: %w", err)
	}
	materialized := make([]string, 0, len(window))
	for _, t := range window {
		if t.Reference != nil {
			materialized = append(materialized, *t.Reference)
		}
	}

	parents, err := s.store.ListRecurringParents(ctx, user, end, materialized, filter.Category)
	if err != nil {
		return nil, fmt.Errorf("list recurring parents: %w", err)
	}

	occurrences := core.ProjectOccurrences(parents, start)
	kept := occurrences[:0]
	for _, occ := range occurrences {
		// A YEARLY parent passes the next-due cutoff in every month
		// past its anniversary but only projects into the anniversary
		// month itself; anything landing outside the window is noise.
		if occ.DueAt.Before(start) || !occ.DueAt.Before(end) {
			continue
		}
		if filter.Matches(occ) {
			kept = append(kept, occ)
		}
	}
	return kept, nil
}

// Create validates the payload and persists it: a single row for plain
// intervals (next due date from the interval calculator), or the whole
// installment ladder in one atomic batch.
func (s *TransactionService) Create(ctx context.Context, user string, in CreateTransaction) ([]core.Transaction, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}

	category, err := s.categories.Get(ctx, user, in.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidCategory, in.Category)
	}

	now := time.Now().UTC()
	base := core.Transaction{
		ID:          uuid.NewString(),
		User:        user,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		Interval:    in.Interval,
		Value:       in.Value,
		Category:    core.CategoryRef{ID: category.ID, Name: category.Name},
		DueAt:       in.DueAt,
		CreatedAt:   now,
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}

	var rows []core.Transaction
	switch {
	case in.Interval == core.Installments:
		if in.Installments < 2 {
			return nil, fmt.Errorf("%w: installments require a count of at least 2", core.ErrInvalidInterval)
		}
		rows = installmentLadder(base, in.Installments)
	default:
		base.NextDueAt = core.NextDueDate(in.Interval, in.DueAt)
		rows = []core.Transaction{base}
	}

	if err := s.store.CreateTransactions(ctx, user, rows); err != nil {
		return nil, fmt.Errorf("create transactions: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"user", user,
		"name", base.Name,
		"interval", string(base.Interval),
		"rows", len(rows),
		"value_cents", base.Value)

	s.notifyStale(ctx, user)
	return rows, nil
}

// installmentLadder lays out n concrete rows starting at base. The
// first row anchors the family (reference nil), the others point at it;
// due dates advance one clamped month per step and the terminal row has
// no next due date.
func installmentLadder(base core.Transaction, n int) []core.Transaction {
	rows := make([]core.Transaction, n)
	anchor := base.ID
	for i := 0; i < n; i++ {
		row := base
		if i > 0 {
			row.ID = uuid.NewString()
			ref := anchor
			row.Reference = &ref
		}
		seq := i + 1
		row.Installment = &seq
		row.DueAt = core.AddMonthsClamped(base.DueAt, i)
		if i < n-1 {
			next := core.AddMonthsClamped(base.DueAt, i+1)
			row.NextDueAt = &next
		}
		rows[i] = row
	}
	return rows
}

// Remove deletes a whole recurring or installment family: every row
// matching the id, referencing it, or matching the explicit family
// reference. Callers are expected to warn the user first; there is no
// single-row escape hatch here.
func (s *TransactionService) Remove(ctx context.Context, user string, id string, reference *string) (int64, error) {
	if err := requireUser(user); err != nil {
		return 0, err
	}

	removed, err := s.store.RemoveFamily(ctx, user, id, reference)
	if err != nil {
		return 0, fmt.Errorf("remove transaction family: %w", err)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: transaction %q", core.ErrNotFound, id)
	}

	slog.InfoContext(ctx, "Transaction family removed",
		"user", user,
		"id", id,
		"rows", removed)

	s.notifyStale(ctx, user)
	return removed, nil
}

// UpdatePaidStatus toggles paid state. When the id belongs to a virtual
// occurrence the store materializes it from upd.Row; either way a new
// balance snapshot is appended inside the same atomic unit.
func (s *TransactionService) UpdatePaidStatus(ctx context.Context, user string, upd PaidStatusUpdate) (core.Transaction, error) {
	if err := requireUser(user); err != nil {
		return core.Transaction{}, err
	}
	if upd.ID == "" {
		return core.Transaction{}, fmt.Errorf("%w: missing transaction id", core.ErrNotFound)
	}

	stored, err := s.store.SetPaidStatus(ctx, user, upd)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update paid status: %w", err)
	}

	slog.InfoContext(ctx, "Paid status updated",
		"user", user,
		"id", stored.ID,
		"paid", stored.Paid(),
		"value_cents", stored.Value)

	s.notifyStale(ctx, user)
	return stored, nil
}

func (s *TransactionService) notifyStale(ctx context.Context, user string) {
	if s.signal == nil {
		return
	}
	if err := s.signal.DashboardStale(ctx, user); err != nil {
		slog.ErrorContext(ctx, "Failed to publish revalidation signal",
			"user", user, "error", err)
	}
}

func requireUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return core.ErrUnauthenticated
	}
	return nil
}
