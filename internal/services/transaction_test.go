package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/services"
	"github.com/hiwllc/tracker/internal/storage/memory"
)

const testUser = "user-1"

type signalRecorder struct {
	mu    sync.Mutex
	users []string
}

func (r *signalRecorder) DashboardStale(_ context.Context, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, user)
	return nil
}

func (r *signalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type env struct {
	store        *memory.Store
	transactions *services.TransactionService
	balances     *services.BalanceService
	signal       *signalRecorder
	category     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	category := store.AddCategory(core.Category{Name: "Moradia", Type: core.Outcome, Source: core.SourceSystem})
	signal := &signalRecorder{}
	return &env{
		store:        store,
		transactions: services.NewTransactionService(store, store, signal),
		balances:     services.NewBalanceService(store, signal),
		signal:       signal,
		category:     category,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *env) create(t *testing.T, in services.CreateTransaction) []core.Transaction {
	t.Helper()
	if in.Category == "" {
		in.Category = e.category
	}
	rows, err := e.transactions.Create(context.Background(), testUser, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rows
}

func TestAllMergesVirtualOccurrences(t *testing.T) {
	e := newEnv(t)
	e.create(t, services.CreateTransaction{
		Name:     "Apartamento",
		Type:     core.Outcome,
		Interval: core.Monthly,
		Value:    140000,
		DueAt:    date(2024, time.January, 10),
	})

	got, err := e.transactions.All(context.Background(), testUser, services.Query{Date: date(2024, time.March, 5)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("All() returned %d transactions, want 1", len(got))
	}
	occ := got[0]
	if !occ.Virtual {
		t.Error("expected a virtual occurrence for a future month")
	}
	if want := date(2024, time.March, 10); !occ.DueAt.Equal(want) {
		t.Errorf("occurrence dueAt = %v, want %v", occ.DueAt, want)
	}
	if occ.Category.Name != "Moradia" {
		t.Errorf("occurrence category = %+v, want reduced {id, name}", occ.Category)
	}
}

func TestAllCurrentMonthReturnsConcreteParent(t *testing.T) {
	e := newEnv(t)
	rows := e.create(t, services.CreateTransaction{
		Name:     "Apartamento",
		Type:     core.Outcome,
		Interval: core.Monthly,
		Value:    140000,
		DueAt:    date(2024, time.January, 10),
	})

	got, err := e.transactions.All(context.Background(), testUser, services.Query{Date: date(2024, time.January, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("All() returned %d transactions, want 1", len(got))
	}
	if got[0].Virtual || got[0].ID != rows[0].ID {
		t.Errorf("expected the persisted parent row itself, got %+v", got[0])
	}
}

// A YEARLY parent is due past its anniversary in every later month, but
// it only belongs to the anniversary month's view.
func TestYearlyProjectionStaysInAnniversaryMonth(t *testing.T) {
	e := newEnv(t)
	e.create(t, services.CreateTransaction{
		Name:     "IPVA",
		Type:     core.Outcome,
		Interval: core.Yearly,
		Value:    250000,
		DueAt:    date(2024, time.March, 15),
	})

	ctx := context.Background()
	january, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2026, time.January, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(january) != 0 {
		t.Errorf("January view = %+v, want empty outside the anniversary month", january)
	}

	march, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2026, time.March, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(march) != 1 {
		t.Fatalf("March view has %d rows, want 1", len(march))
	}
	if want := date(2026, time.March, 15); !march[0].DueAt.Equal(want) {
		t.Errorf("occurrence dueAt = %v, want %v", march[0].DueAt, want)
	}
}

// The id printed for a virtual occurrence must resolve against a later
// query for the same month, or paying by id could never find it again.
func TestVirtualOccurrenceIDStableAcrossQueries(t *testing.T) {
	e := newEnv(t)
	e.create(t, services.CreateTransaction{
		Name:     "Apartamento",
		Type:     core.Outcome,
		Interval: core.Monthly,
		Value:    140000,
		DueAt:    date(2024, time.January, 10),
	})

	ctx := context.Background()
	first, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.March, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	second, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.March, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("All() returned %d and %d rows, want 1 and 1", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("occurrence id changed between queries: %q then %q", first[0].ID, second[0].ID)
	}
}

// A parent materialized in a month must not also project a virtual
// occurrence into the same month.
func TestNoDuplicateProjection(t *testing.T) {
	e := newEnv(t)
	if _, err := e.balances.CreateInitial(context.Background(), testUser, 500000); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	e.create(t, services.CreateTransaction{
		Name:     "Apartamento",
		Type:     core.Outcome,
		Interval: core.Monthly,
		Value:    140000,
		DueAt:    date(2024, time.January, 10),
	})

	ctx := context.Background()
	feb, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.February, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(feb) != 1 || !feb[0].Virtual {
		t.Fatalf("February view = %+v, want one virtual occurrence", feb)
	}

	// Pay the virtual occurrence: it materializes under its computed id.
	paidAt := date(2024, time.February, 10)
	if _, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{
		ID:     feb[0].ID,
		PaidAt: &paidAt,
		Row:    feb[0],
	}); err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}

	got, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.February, 1), Status: services.StatusAll})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("February view after materialization has %d rows, want 1", len(got))
	}
	if got[0].Virtual {
		t.Error("materialized month still projects a virtual occurrence")
	}
	if got[0].ID != feb[0].ID {
		t.Errorf("materialized row id = %q, want the virtual occurrence id %q", got[0].ID, feb[0].ID)
	}
}

func TestInstallmentCreation(t *testing.T) {
	e := newEnv(t)
	rows := e.create(t, services.CreateTransaction{
		Name:         "Notebook",
		Type:         core.Outcome,
		Interval:     core.Installments,
		Value:        120000,
		DueAt:        date(2024, time.January, 15),
		Installments: 3,
	})

	if len(rows) != 3 {
		t.Fatalf("Create() produced %d rows, want 3", len(rows))
	}

	wantDue := []time.Time{
		date(2024, time.January, 15),
		date(2024, time.February, 15),
		date(2024, time.March, 15),
	}
	for i, row := range rows {
		if !row.DueAt.Equal(wantDue[i]) {
			t.Errorf("row %d dueAt = %v, want %v", i, row.DueAt, wantDue[i])
		}
		if row.Installment == nil || *row.Installment != i+1 {
			t.Errorf("row %d installment = %v, want %d", i, row.Installment, i+1)
		}
	}

	if rows[0].Reference != nil {
		t.Errorf("anchor reference = %v, want nil", rows[0].Reference)
	}
	for i := 1; i < 3; i++ {
		if rows[i].Reference == nil || *rows[i].Reference != rows[0].ID {
			t.Errorf("row %d reference = %v, want anchor id %q", i, rows[i].Reference, rows[0].ID)
		}
	}
	if rows[2].NextDueAt != nil {
		t.Errorf("terminal installment nextDueAt = %v, want nil", rows[2].NextDueAt)
	}
	if rows[1].NextDueAt == nil || !rows[1].NextDueAt.Equal(wantDue[2]) {
		t.Errorf("middle installment nextDueAt = %v, want %v", rows[1].NextDueAt, wantDue[2])
	}
}

func TestCreateRejectsTooFewInstallments(t *testing.T) {
	e := newEnv(t)
	_, err := e.transactions.Create(context.Background(), testUser, services.CreateTransaction{
		Name:         "Notebook",
		Type:         core.Outcome,
		Interval:     core.Installments,
		Value:        120000,
		Category:     e.category,
		DueAt:        date(2024, time.January, 15),
		Installments: 1,
	})
	if !errors.Is(err, core.ErrInvalidInterval) {
		t.Errorf("Create() error = %v, want ErrInvalidInterval", err)
	}
}

func TestCreateRejectsUnknownCategory(t *testing.T) {
	e := newEnv(t)
	_, err := e.transactions.Create(context.Background(), testUser, services.CreateTransaction{
		Name:     "Escola",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    122000,
		Category: "no-such-category",
		DueAt:    date(2024, time.January, 15),
	})
	if !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("Create() error = %v, want ErrInvalidCategory", err)
	}
}

func TestCreateRejectsMissingUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.transactions.Create(context.Background(), "", services.CreateTransaction{
		Name:     "Escola",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    122000,
		Category: e.category,
		DueAt:    date(2024, time.January, 15),
	})
	if !errors.Is(err, core.ErrUnauthenticated) {
		t.Errorf("Create() error = %v, want ErrUnauthenticated", err)
	}
}

func TestUpdatePaidStatusBalanceDeltas(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.balances.CreateInitial(ctx, testUser, 1000); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	rows := e.create(t, services.CreateTransaction{
		Name:     "Mercado",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    300,
		DueAt:    date(2024, time.January, 15),
	})

	paidAt := date(2024, time.January, 16)
	if _, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: rows[0].ID, PaidAt: &paidAt}); err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}
	snapshot, err := e.balances.Current(ctx, testUser)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snapshot.Balance != 700 {
		t.Errorf("balance after paying outcome = %d, want 700", snapshot.Balance)
	}
	if snapshot.Transaction == nil || *snapshot.Transaction != rows[0].ID {
		t.Errorf("snapshot transaction = %v, want %q", snapshot.Transaction, rows[0].ID)
	}

	if _, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: rows[0].ID, PaidAt: nil}); err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}
	snapshot, err = e.balances.Current(ctx, testUser)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if snapshot.Balance != 1000 {
		t.Errorf("balance after un-paying outcome = %d, want 1000", snapshot.Balance)
	}
}

func TestUpdatePaidStatusRequiresBootstrappedLedger(t *testing.T) {
	e := newEnv(t)
	rows := e.create(t, services.CreateTransaction{
		Name:     "Mercado",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    300,
		DueAt:    date(2024, time.January, 15),
	})

	paidAt := date(2024, time.January, 16)
	_, err := e.transactions.UpdatePaidStatus(context.Background(), testUser, services.PaidStatusUpdate{ID: rows[0].ID, PaidAt: &paidAt})
	if !errors.Is(err, core.ErrNoBalance) {
		t.Errorf("UpdatePaidStatus() error = %v, want ErrNoBalance", err)
	}
}

func TestCascadingFamilyDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.balances.CreateInitial(ctx, testUser, 500000); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	parent := e.create(t, services.CreateTransaction{
		Name:     "Apartamento",
		Type:     core.Outcome,
		Interval: core.Monthly,
		Value:    140000,
		DueAt:    date(2024, time.January, 10),
	})[0]

	// Materialize February's occurrence as a concrete child.
	feb, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.February, 1)})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	paidAt := date(2024, time.February, 10)
	child, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: feb[0].ID, PaidAt: &paidAt, Row: feb[0]})
	if err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}

	// Deleting via the child id plus the family reference removes the
	// parent, the child and every future projection.
	removed, err := e.transactions.Remove(ctx, testUser, child.ID, &parent.ID)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Remove() removed %d rows, want 2", removed)
	}

	march, err := e.transactions.All(ctx, testUser, services.Query{Date: date(2024, time.March, 1), Status: services.StatusAll})
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(march) != 0 {
		t.Errorf("March view after family delete has %d rows, want 0", len(march))
	}
}

func TestRemoveUnknownTransaction(t *testing.T) {
	e := newEnv(t)
	_, err := e.transactions.Remove(context.Background(), testUser, "no-such-id", nil)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
}

func TestAllStatusAndCategoryFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.balances.CreateInitial(ctx, testUser, 1000000); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	other := e.store.AddCategory(core.Category{Name: "Salário", Type: core.Income, Source: core.SourceSystem})

	outcome := e.create(t, services.CreateTransaction{
		Name:     "Escola",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    122000,
		DueAt:    date(2024, time.January, 5),
	})[0]
	e.create(t, services.CreateTransaction{
		Name:     "Salário",
		Type:     core.Income,
		Interval: core.Unique,
		Value:    872000,
		Category: other,
		DueAt:    date(2024, time.January, 1),
	})

	paidAt := date(2024, time.January, 6)
	if _, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: outcome.ID, PaidAt: &paidAt}); err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}

	tests := []struct {
		name      string
		query     services.Query
		wantNames []string
	}{
		{
			name:      "default unpaid",
			query:     services.Query{Date: date(2024, time.January, 1)},
			wantNames: []string{"Salário"},
		},
		{
			name:      "paid only",
			query:     services.Query{Date: date(2024, time.January, 1), Status: services.StatusPaid},
			wantNames: []string{"Escola"},
		},
		{
			name:      "all ordered by due date",
			query:     services.Query{Date: date(2024, time.January, 1), Status: services.StatusAll},
			wantNames: []string{"Salário", "Escola"},
		},
		{
			name:      "category filter",
			query:     services.Query{Date: date(2024, time.January, 1), Status: services.StatusAll, Category: other},
			wantNames: []string{"Salário"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.transactions.All(ctx, testUser, tt.query)
			if err != nil {
				t.Fatalf("All() error = %v", err)
			}
			var names []string
			for _, trx := range got {
				names = append(names, trx.Name)
			}
			if len(names) != len(tt.wantNames) {
				t.Fatalf("All() = %v, want %v", names, tt.wantNames)
			}
			for i := range names {
				if names[i] != tt.wantNames[i] {
					t.Errorf("All()[%d] = %q, want %q", i, names[i], tt.wantNames[i])
				}
			}
		})
	}
}

// Concurrent toggles for the same user must not lose snapshots: the
// final balance reflects every delta regardless of interleaving.
func TestConcurrentTogglesKeepEveryDelta(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const initial = int64(100000)
	if _, err := e.balances.CreateInitial(ctx, testUser, initial); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}

	const n = 24
	var wantDelta int64
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		typ := core.Outcome
		value := int64(100 + i)
		if i%3 == 0 {
			typ = core.Income
			wantDelta += value
		} else {
			wantDelta -= value
		}
		rows := e.create(t, services.CreateTransaction{
			Name:     "Trx",
			Type:     typ,
			Interval: core.Unique,
			Value:    value,
			DueAt:    date(2024, time.January, 1+i%28),
		})
		ids[i] = rows[0].ID
	}

	var g errgroup.Group
	paidAt := date(2024, time.January, 31)
	for _, id := range ids {
		g.Go(func() error {
			_, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: id, PaidAt: &paidAt})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent UpdatePaidStatus() error = %v", err)
	}

	snapshot, err := e.balances.Current(ctx, testUser)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if want := initial + wantDelta; snapshot.Balance != want {
		t.Errorf("final balance = %d, want %d", snapshot.Balance, want)
	}
}

func TestMutationsSignalDashboardStale(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.balances.CreateInitial(ctx, testUser, 1000); err != nil {
		t.Fatalf("CreateInitial() error = %v", err)
	}
	rows := e.create(t, services.CreateTransaction{
		Name:     "Mercado",
		Type:     core.Outcome,
		Interval: core.Unique,
		Value:    300,
		DueAt:    date(2024, time.January, 15),
	})
	paidAt := date(2024, time.January, 16)
	if _, err := e.transactions.UpdatePaidStatus(ctx, testUser, services.PaidStatusUpdate{ID: rows[0].ID, PaidAt: &paidAt}); err != nil {
		t.Fatalf("UpdatePaidStatus() error = %v", err)
	}

	// CreateInitial, Create and UpdatePaidStatus each signal once.
	if got := e.signal.count(); got != 3 {
		t.Errorf("revalidation signals = %d, want 3", got)
	}
}
