// Package services implements the transaction query/mutation engine and
// the balance ledger on top of narrow collaborator ports. Every
// operation takes the resolved user id explicitly; nothing reads
// identity from ambient state.
package services

import (
	"context"
	"time"

	"github.com/hiwllc/tracker/internal/core"
)

const (
	StatusAll    Status = "all"
	StatusPaid   Status = "paid"
	StatusUnpaid Status = "unpaid"
)

// CategoryAll disables category filtering.
const CategoryAll = "all"

type (
	Status string

	// TransactionFilter narrows a dued-in-window read.
	TransactionFilter struct {
		From     time.Time // inclusive
		To       time.Time // exclusive
		Status   Status
		Category string // CategoryAll or empty means no filter
	}

	// PaidStatusUpdate is the payload of a paid toggle. Row carries the
	// full transaction fields so the store can materialize a virtual
	// occurrence that has no concrete row yet.
	PaidStatusUpdate struct {
		ID     string
		PaidAt *time.Time
		Row    core.Transaction
	}

	// ExpectedBalance is the month-end projection next to the exact
	// month totals shown on the dashboard.
	ExpectedBalance struct {
		Current      int64
		Expected     int64
		MonthIncome  int64
		MonthOutcome int64
	}
)

// Matches reports whether a transaction passes the status and category
// predicates of the filter. The store applies this on reads; the query
// engine reuses it for virtual occurrences.
func (f TransactionFilter) Matches(t core.Transaction) bool {
	switch f.Status {
	case StatusPaid:
		if !t.Paid() {
			return false
		}
	case StatusUnpaid:
		if t.Paid() {
			return false
		}
	}
	if f.Category != "" && f.Category != CategoryAll && t.Category.ID != f.Category {
		return false
	}
	return true
}

// TransactionStore is the persistence port for transactions. All reads
// and writes are scoped to a single user.
type TransactionStore interface {
	// ListByDue returns concrete transactions whose dueAt falls in
	// [f.From, f.To), filtered by f.Status and f.Category, ordered by
	// (dueAt, createdAt).
	ListByDue(ctx context.Context, user string, f TransactionFilter) ([]core.Transaction, error)

	// ListRecurringParents returns recurring templates (reference is
	// null, interval MONTHLY or YEARLY) with a next due date before
	// until, excluding the given ids. The category filter applies, the
	// status filter does not: status is judged on the projected
	// occurrence, which is unpaid by definition.
	ListRecurringParents(ctx context.Context, user string, until time.Time, exclude []string, category string) ([]core.Transaction, error)

	// CreateTransactions inserts the given rows as one atomic batch.
	CreateTransactions(ctx context.Context, user string, rows []core.Transaction) error

	// RemoveFamily deletes every row whose id or reference matches the
	// target id, or the explicit family reference when supplied, and
	// returns the number of rows removed.
	RemoveFamily(ctx context.Context, user string, id string, reference *string) (int64, error)

	// SetPaidStatus runs the paid toggle as one atomic unit: read the
	// latest balance snapshot, update the row's paidAt when it exists or
	// insert the materialized row when it does not, then append the new
	// snapshot derived from the delta. Fails with core.ErrNoBalance when
	// the ledger was never bootstrapped; a cancelled context aborts the
	// whole unit.
	SetPaidStatus(ctx context.Context, user string, upd PaidStatusUpdate) (core.Transaction, error)
}

// CategoryStore is the persistence port for categories.
type CategoryStore interface {
	// ListVisible returns SYSTEM categories plus the user's own.
	ListVisible(ctx context.Context, user string) ([]core.Category, error)

	// Get returns a category by id when it is visible to the user,
	// core.ErrNotFound otherwise.
	Get(ctx context.Context, user string, id string) (core.Category, error)
}

// BalanceStore is the persistence port for the append-only ledger.
type BalanceStore interface {
	// LatestSnapshot returns the most recent snapshot for the user or
	// core.ErrNoBalance when the ledger is empty.
	LatestSnapshot(ctx context.Context, user string) (core.BalanceSnapshot, error)

	// AppendSnapshot appends a snapshot; snapshots are never updated.
	AppendSnapshot(ctx context.Context, snapshot core.BalanceSnapshot) error

	// ExpectedBalance computes the month-end projection inside one
	// consistent read: current balance adjusted by every unpaid
	// transaction due up to until, plus the exact income and outcome
	// totals of until's month.
	ExpectedBalance(ctx context.Context, user string, until time.Time) (ExpectedBalance, error)
}

// Identity resolves the current user from the caller's context. The
// binaries use it at the boundary; core operations receive the id
// explicitly.
type Identity interface {
	UserID(ctx context.Context) (string, error)
}

// Revalidator signals that a user's dashboard view went stale after a
// mutation. Fire-and-forget: failures are logged, never surfaced.
type Revalidator interface {
	DashboardStale(ctx context.Context, user string) error
}
