// Package worker turns dashboard-stale signals into month-view exports:
// each message triggers a fresh fetch of the user's current month and a
// full rewrite of the mirrored sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hiwllc/tracker/internal/amqp"
	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/export"
	"github.com/hiwllc/tracker/internal/services"
)

type ExportWorker struct {
	transactions *services.TransactionService
	balances     *services.BalanceService
	writer       export.Writer
	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewExportWorker(transactions *services.TransactionService, balances *services.BalanceService, writer export.Writer) *ExportWorker {
	return &ExportWorker{
		transactions: transactions,
		balances:     balances,
		writer:       writer,
		now:          time.Now,
	}
}

// HandleStaleMessage processes one dashboard-stale signal. The message
// carries only the user id; everything else comes from the store, so
// out-of-order deliveries cannot write stale data.
func (w *ExportWorker) HandleStaleMessage(ctx context.Context, msg *amqp.DashboardStaleMessage) error {
	if msg.User == "" {
		return errors.New("stale message without user")
	}

	view, err := w.buildMonthView(ctx, msg.User, w.now())
	if err != nil {
		return fmt.Errorf("build month view: %w", err)
	}

	if err := w.writer.WriteMonthView(ctx, view); err != nil {
		return fmt.Errorf("write month view: %w", err)
	}

	slog.InfoContext(ctx, "Month view exported",
		"user", msg.User,
		"month", view.Month.Format("2006-01"),
		"rows", len(view.Transactions))
	return nil
}

func (w *ExportWorker) buildMonthView(ctx context.Context, user string, at time.Time) (export.MonthView, error) {
	month, _ := core.MonthWindow(at)
	view := export.MonthView{User: user, Month: month}

	balance, err := w.balances.Expected(ctx, user, at)
	switch {
	case errors.Is(err, core.ErrNoBalance):
		// Ledger not bootstrapped yet; export the transaction list with
		// zeroed figures instead of dropping the message.
	case err != nil:
		return export.MonthView{}, err
	default:
		view.Balance = balance
	}

	rows, err := w.transactions.All(ctx, user, services.Query{Date: at, Status: services.StatusAll})
	if err != nil {
		return export.MonthView{}, err
	}
	view.Transactions = rows
	return view, nil
}
