package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hiwllc/tracker/internal/core"
)

// BalanceService reads the append-only ledger and bootstraps it with
// the initial deposit. Snapshot appends caused by paid toggles happen
// inside the store's atomic unit, not here.
type BalanceService struct {
	store  BalanceStore
	signal Revalidator
}

func NewBalanceService(store BalanceStore, signal Revalidator) *BalanceService {
	return &BalanceService{store: store, signal: signal}
}

// Current returns the latest snapshot. core.ErrNoBalance means the user
// never deposited an initial balance; callers prompt for setup.
func (s *BalanceService) Current(ctx context.Context, user string) (core.BalanceSnapshot, error) {
	if err := requireUser(user); err != nil {
		return core.BalanceSnapshot{}, err
	}
	snapshot, err := s.store.LatestSnapshot(ctx, user)
	if err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	return snapshot, nil
}

// CreateInitial appends the bootstrap snapshot, the only one without a
// triggering transaction. Every later snapshot derives from a prior one
// through a paid toggle.
func (s *BalanceService) CreateInitial(ctx context.Context, user string, value int64) (core.BalanceSnapshot, error) {
	if err := requireUser(user); err != nil {
		return core.BalanceSnapshot{}, err
	}

	snapshot := core.BalanceSnapshot{
		ID:        uuid.NewString(),
		User:      user,
		Balance:   value,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendSnapshot(ctx, snapshot); err != nil {
		return core.BalanceSnapshot{}, fmt.Errorf("append initial snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Initial balance created",
		"user", user,
		"balance_cents", value)

	if s.signal != nil {
		if err := s.signal.DashboardStale(ctx, user); err != nil {
			slog.ErrorContext(ctx, "Failed to publish revalidation signal",
				"user", user, "error", err)
		}
	}
	return snapshot, nil
}

// Expected projects the month-end balance for the month `until` falls
// in. The store computes it inside one consistent read so a concurrent
// toggle cannot skew the three aggregates against each other.
func (s *BalanceService) Expected(ctx context.Context, user string, until time.Time) (ExpectedBalance, error) {
	if err := requireUser(user); err != nil {
		return ExpectedBalance{}, err
	}
	expected, err := s.store.ExpectedBalance(ctx, user, until)
	if err != nil {
		return ExpectedBalance{}, fmt.Errorf("expected balance: %w", err)
	}
	return expected, nil
}
