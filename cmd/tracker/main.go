// Command tracker is the terminal dashboard: it shows the month view
// with projected recurring occurrences and runs the mutations behind
// it (create, pay, remove, init-balance).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hiwllc/tracker/internal/amqp"
	"github.com/hiwllc/tracker/internal/cli"
	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/log"
	"github.com/hiwllc/tracker/internal/services"
)

type app struct {
	user         string
	transactions *services.TransactionService
	balances     *services.BalanceService
	categories   *services.CategoryService
}

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger().WithComponent(log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	user, err := cli.EnvIdentity{User: cfg.User}.UserID(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracker: set TRACKER_USER to identify yourself")
		os.Exit(1)
	}

	stores := cli.InitStores(logger, cfg)
	if stores.Cleanup != nil {
		defer stores.Cleanup()
	}

	signal := initRevalidator(logger, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)

	a := &app{
		user:         user,
		transactions: services.NewTransactionService(stores.Transactions, stores.Categories, signal),
		balances:     services.NewBalanceService(stores.Balances, signal),
		categories:   services.NewCategoryService(stores.Categories),
	}

	cmd, args := "view", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "view":
		err = a.view(ctx, args)
	case "create":
		err = a.create(ctx, args)
	case "pay":
		err = a.pay(ctx, args)
	case "remove":
		err = a.remove(ctx, args)
	case "init-balance":
		err = a.initBalance(ctx, args)
	case "categories":
		err = a.listCategories(ctx)
	default:
		err = fmt.Errorf("unknown command %q (expected view, create, pay, remove, init-balance or categories)", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

// initRevalidator connects the stale signal when AMQP is configured.
// The CLI works fine without it; mutations just skip the publish.
func initRevalidator(logger *log.Logger, url, exchange, queue string) services.Revalidator {
	if url == "" {
		return nil
	}
	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without revalidation signal", log.FieldError, err)
		return nil
	}
	return amqp.NewRevalidator(client)
}

// view prints the dashboard: balance figures and the month's merged
// transaction list, fetched in parallel.
func (a *app) view(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	month := fs.String("month", "", "month to show (YYYY-MM, default current)")
	status := fs.String("status", "all", "status filter: all, paid or unpaid")
	category := fs.String("category", "all", "category id filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	date, err := parseMonth(*month)
	if err != nil {
		return err
	}

	var (
		current  core.BalanceSnapshot
		expected services.ExpectedBalance
		rows     []core.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = a.balances.Current(gctx, a.user)
		if errors.Is(err, core.ErrNoBalance) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		expected, err = a.balances.Expected(gctx, a.user, date)
		if errors.Is(err, core.ErrNoBalance) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = a.transactions.All(gctx, a.user, services.Query{
			Date:     date,
			Status:   services.Status(*status),
			Category: *category,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if current.ID == "" {
		fmt.Println("No balance yet. Run: tracker init-balance -value <amount>")
	} else {
		fmt.Printf("Balance   %s\n", core.FormatAmount(current.Balance))
		fmt.Printf("Expected  %s\n", core.FormatAmount(expected.Expected))
		fmt.Printf("Income    %s\n", core.FormatAmount(expected.MonthIncome))
		fmt.Printf("Outcome   %s\n\n", core.FormatAmount(expected.MonthOutcome))
	}

	if len(rows) == 0 {
		fmt.Printf("No transactions in %s.\n", date.Format("2006-01"))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DUE\tNAME\tCATEGORY\tTYPE\tVALUE\tSTATUS\tID")
	for _, t := range rows {
		status := "pending"
		switch {
		case t.Paid():
			status = "paid"
		case t.Virtual:
			status = "upcoming"
		}
		name := t.Name
		if t.Installment != nil {
			name = fmt.Sprintf("%s (%d)", name, *t.Installment)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.DueAt.Format("2006-01-02"), name, t.Category.Name,
			strings.ToLower(string(t.Type)), core.FormatAmount(t.Value), status, t.ID)
	}
	return w.Flush()
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "transaction name")
	description := fs.String("description", "", "optional description")
	typ := fs.String("type", "outcome", "income or outcome")
	interval := fs.String("interval", "unique", "unique, daily, weekly, monthly, yearly or installments")
	installments := fs.Int("installments", 0, "number of installments (interval=installments)")
	value := fs.String("value", "", "amount, free form (e.g. \"R$ 1.234,56\")")
	category := fs.String("category", "", "category id (see: tracker categories)")
	due := fs.String("due", "", "due date (YYYY-MM-DD, default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dueAt := time.Now().UTC()
	if *due != "" {
		parsed, err := time.Parse("2006-01-02", *due)
		if err != nil {
			return fmt.Errorf("invalid due date %q: %w", *due, err)
		}
		dueAt = parsed
	}

	rows, err := a.transactions.Create(ctx, a.user, services.CreateTransaction{
		Name:         *name,
		Description:  *description,
		Type:         core.TransactionType(strings.ToUpper(*typ)),
		Interval:     core.Interval(strings.ToUpper(*interval)),
		Value:        core.ParseAmount(*value),
		Category:     *category,
		DueAt:        dueAt,
		Installments: *installments,
	})
	if err != nil {
		return err
	}

	if len(rows) > 1 {
		fmt.Printf("Created %q in %d installments of %s.\n", rows[0].Name, len(rows), core.FormatAmount(rows[0].Value))
	} else {
		fmt.Printf("Created %q, %s due %s.\n", rows[0].Name, core.FormatAmount(rows[0].Value), rows[0].DueAt.Format("2006-01-02"))
	}
	return nil
}

func (a *app) pay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	id := fs.String("id", "", "transaction id from the view listing")
	month := fs.String("month", "", "month the row was listed in (YYYY-MM, default current)")
	undo := fs.Bool("undo", false, "mark as unpaid instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("pay requires -id")
	}

	// Virtual occurrence ids only exist inside a rendered month view, so
	// resolve the row through the same query before toggling.
	row, err := a.findInMonth(ctx, *id, *month)
	if err != nil {
		return err
	}

	upd := services.PaidStatusUpdate{ID: row.ID, Row: row}
	if !*undo {
		now := time.Now().UTC()
		upd.PaidAt = &now
	}

	stored, err := a.transactions.UpdatePaidStatus(ctx, a.user, upd)
	if err != nil {
		if errors.Is(err, core.ErrNoBalance) {
			return errors.New("no balance yet, run: tracker init-balance -value <amount>")
		}
		return err
	}

	state := "unpaid"
	if stored.Paid() {
		state = "paid"
	}
	fmt.Printf("Marked %q as %s (%s).\n", stored.Name, state, core.FormatAmount(stored.Value))
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	id := fs.String("id", "", "transaction id from the view listing")
	month := fs.String("month", "", "month the row was listed in (YYYY-MM, default current)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("remove requires -id")
	}

	// Recurring and installment rows are removed as a whole family, so
	// surface the reference of the selected row.
	var reference *string
	if row, err := a.findInMonth(ctx, *id, *month); err == nil {
		reference = row.Reference
		if row.Virtual {
			// A virtual occurrence has no row of its own; removing it
			// means removing the whole recurrence.
			*id = *row.Reference
			reference = nil
		}
	}

	removed, err := a.transactions.Remove(ctx, a.user, *id, reference)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d row(s).\n", removed)
	return nil
}

func (a *app) initBalance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init-balance", flag.ExitOnError)
	value := fs.String("value", "", "initial balance, free form (e.g. \"R$ 1.000,00\")")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snapshot, err := a.balances.CreateInitial(ctx, a.user, core.ParseAmount(*value))
	if err != nil {
		return err
	}
	fmt.Printf("Balance initialized at %s.\n", core.FormatAmount(snapshot.Balance))
	return nil
}

func (a *app) listCategories(ctx context.Context) error {
	options, err := a.categories.All(ctx, a.user)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE")
	for _, c := range options {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, strings.ToLower(string(c.Type)))
	}
	return w.Flush()
}

// findInMonth resolves an id against the month view it was listed in,
// virtual occurrences included.
func (a *app) findInMonth(ctx context.Context, id, month string) (core.Transaction, error) {
	date, err := parseMonth(month)
	if err != nil {
		return core.Transaction{}, err
	}

	rows, err := a.transactions.All(ctx, a.user, services.Query{Date: date, Status: services.StatusAll})
	if err != nil {
		return core.Transaction{}, err
	}
	for _, row := range rows {
		if row.ID == id {
			return row, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: transaction %q in %s", core.ErrNotFound, id, date.Format("2006-01"))
}

func parseMonth(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	date, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return date, nil
}
