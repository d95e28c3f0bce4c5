// Package storage implements the persistence ports on SQLite. The
// paid-status toggle runs as one database transaction so a row update
// can never land without its balance snapshot or vice versa.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/hiwllc/tracker/internal/core"
	"github.com/hiwllc/tracker/internal/services"

	_ "modernc.org/sqlite"
)

// timeLayout is a fixed-width UTC format so lexicographic comparison of
// stored values matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteStore struct {
	db *sql.DB
}

// Ensure interface conformance
var (
	_ services.TransactionStore = (*SQLiteStore)(nil)
	_ services.CategoryStore    = (*SQLiteStore)(nil)
	_ services.BalanceStore     = (*SQLiteStore)(nil)
)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas ride on the DSN so every pooled connection gets them, not
	// just the one a bare PRAGMA exec happens to land on. _txlock=immediate
	// makes write transactions take the write lock up front: concurrent
	// writers queue on the busy timeout instead of failing the deferred
	// read-to-write lock upgrade with SQLITE_BUSY.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies pending schema migrations, including the SYSTEM
// category seed, on a connection of its own.
func runMigrations(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const transactionColumns = `t.id, t.user_id, t.name, t.description, t.type, t.interval,
	t.installment, t.value, t.reference, t.due_at, t.next_due_at, t.paid_at,
	t.created_at, t.updated_at, c.id, c.name`

func (s *SQLiteStore) ListByDue(ctx context.Context, user string, f services.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.deleted_at IS NULL
		  AND t.due_at >= ? AND t.due_at < ?`
	args := []any{user, encodeTime(f.From), encodeTime(f.To)}

	switch f.Status {
	case services.StatusPaid:
		query += " AND t.paid_at IS NOT NULL"
	case services.StatusUnpaid:
		query += " AND t.paid_at IS NULL"
	}
	if f.Category != "" && f.Category != services.CategoryAll {
		query += " AND t.category_id = ?"
		args = append(args, f.Category)
	}
	query += " ORDER BY t.due_at, t.created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list transactions by due date", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *SQLiteStore) ListRecurringParents(ctx context.Context, user string, until time.Time, exclude []string, category string) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.deleted_at IS NULL
		  AND t.reference IS NULL
		  AND t.interval IN ('MONTHLY', 'YEARLY')
		  AND t.next_due_at IS NOT NULL AND t.next_due_at < ?`
	args := []any{user, encodeTime(until)}

	if len(exclude) > 0 {
		query += " AND t.id NOT IN (?" + strings.Repeat(", ?", len(exclude)-1) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	if category != "" && category != services.CategoryAll {
		query += " AND t.category_id = ?"
		args = append(args, category)
	}
	query += " ORDER BY t.due_at, t.created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list recurring parents", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (s *SQLiteStore) CreateTransactions(ctx context.Context, user string, batch []core.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("begin transaction", err)
	}
	defer tx.Rollback()

	for _, row := range batch {
		if row.User != user {
			return fmt.Errorf("%w: row %q belongs to another user", core.ErrConflict, row.ID)
		}
		if err := insertTransaction(ctx, tx, row); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return mapErr("commit transaction batch", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, row core.Transaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO transactions
		(id, user_id, name, description, type, interval, installment, value,
		 category_id, reference, due_at, next_due_at, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.User, row.Name, row.Description, string(row.Type), string(row.Interval),
		row.Installment, row.Value, row.Category.ID, row.Reference,
		encodeTime(row.DueAt), encodeTimePtr(row.NextDueAt), encodeTimePtr(row.PaidAt),
		encodeTime(row.CreatedAt), encodeTimePtr(row.UpdatedAt))
	if err != nil {
		return mapErr("insert transaction", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveFamily(ctx context.Context, user string, id string, reference *string) (int64, error) {
	query := `DELETE FROM transactions
		WHERE user_id = ? AND (id = ? OR reference = ?`
	args := []any{user, id, id}
	if reference != nil {
		query += " OR id = ? OR reference = ?"
		args = append(args, *reference, *reference)
	}
	query += ")"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr("remove transaction family", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr("count removed rows", err)
	}
	return removed, nil
}

// SetPaidStatus is the materialization unit: latest snapshot read, the
// explicit exists/absent branch and the ledger append commit together
// or not at all.
func (s *SQLiteStore) SetPaidStatus(ctx context.Context, user string, upd services.PaidStatusUpdate) (core.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, mapErr("begin paid status update", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM balance
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, user).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNoBalance
	}
	if err != nil {
		return core.Transaction{}, mapErr("read latest snapshot", err)
	}

	now := time.Now().UTC()
	stored, err := findTransaction(ctx, tx, user, upd.ID)
	switch {
	case err == nil:
		// Concrete row: only the paid marker moves.
		if _, err := tx.ExecContext(ctx, `UPDATE transactions SET paid_at = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			encodeTimePtr(upd.PaidAt), encodeTime(now), user, upd.ID); err != nil {
			return core.Transaction{}, mapErr("update paid status", err)
		}
		stored.PaidAt = upd.PaidAt
		stored.UpdatedAt = &now
	case errors.Is(err, core.ErrNotFound):
		// Virtual occurrence paid for the first time: materialize it
		// under the id the projection handed out.
		stored = upd.Row
		stored.ID = upd.ID
		stored.User = user
		stored.PaidAt = upd.PaidAt
		stored.Virtual = false
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		if err := insertTransaction(ctx, tx, stored); err != nil {
			return core.Transaction{}, err
		}
	default:
		return core.Transaction{}, err
	}

	delta := core.BalanceDelta(stored.Type, upd.PaidAt != nil, stored.Value)
	if _, err := tx.ExecContext(ctx, `INSERT INTO balance (id, user_id, balance, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), user, current+delta, stored.ID, encodeTime(now)); err != nil {
		return core.Transaction{}, mapErr("append balance snapshot", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, mapErr("commit paid status update", err)
	}
	return stored, nil
}

func findTransaction(ctx context.Context, tx *sql.Tx, user, id string) (core.Transaction, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ? AND t.id = ? AND t.deleted_at IS NULL`, user, id)

	trx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("%w: transaction %q", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Transaction{}, mapErr("find transaction", err)
	}
	return trx, nil
}

func (s *SQLiteStore) ListVisible(ctx context.Context, user string) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, name, description, type, source, created_at
		FROM categories
		WHERE deleted_at IS NULL AND (source = 'SYSTEM' OR (source = 'USER' AND user_id = ?))
		ORDER BY name`, user)
	if err != nil {
		return nil, mapErr("list categories", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, user string, id string) (core.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, description, type, source, created_at
		FROM categories
		WHERE id = ? AND deleted_at IS NULL
		  AND (source = 'SYSTEM' OR (source = 'USER' AND user_id = ?))`, id, user)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Category{}, mapErr("get category", err)
	}
	return c, nil
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, user string) (core.BalanceSnapshot, error) {
	return latestSnapshot(ctx, s.db, user)
}

func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snapshot core.BalanceSnapshot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO balance (id, user_id, balance, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.User, snapshot.Balance, snapshot.Transaction, encodeTime(snapshot.CreatedAt))
	if err != nil {
		return mapErr("append balance snapshot", err)
	}
	return nil
}

// ExpectedBalance runs its three aggregates inside one transaction so a
// concurrent toggle cannot skew them against each other.
func (s *SQLiteStore) ExpectedBalance(ctx context.Context, user string, until time.Time) (services.ExpectedBalance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.ExpectedBalance{}, mapErr("begin expected balance read", err)
	}
	defer tx.Rollback()

	current, err := latestSnapshot(ctx, tx, user)
	if err != nil {
		return services.ExpectedBalance{}, err
	}

	start, end := core.MonthWindow(until)
	out := services.ExpectedBalance{Current: current.Balance}

	var pending int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(CASE WHEN type = 'INCOME' THEN value ELSE -value END), 0)
		FROM transactions
		WHERE user_id = ? AND deleted_at IS NULL AND paid_at IS NULL AND due_at < ?`,
		user, encodeTime(end)).Scan(&pending)
	if err != nil {
		return services.ExpectedBalance{}, mapErr("sum unpaid transactions", err)
	}
	out.Expected = current.Balance + pending

	err = tx.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN type = 'INCOME' THEN value ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'OUTCOME' THEN value ELSE 0 END), 0)
		FROM transactions
		WHERE user_id = ? AND deleted_at IS NULL AND due_at >= ? AND due_at < ?`,
		user, encodeTime(start), encodeTime(end)).Scan(&out.MonthIncome, &out.MonthOutcome)
	if err != nil {
		return services.ExpectedBalance{}, mapErr("sum month totals", err)
	}

	if err := tx.Commit(); err != nil {
		return services.ExpectedBalance{}, mapErr("commit expected balance read", err)
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestSnapshot(ctx context.Context, q queryRower, user string) (core.BalanceSnapshot, error) {
	var (
		s         core.BalanceSnapshot
		trx       sql.NullString
		createdAt string
	)
	err := q.QueryRowContext(ctx, `SELECT id, user_id, balance, transaction_id, created_at
		FROM balance
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, user).
		Scan(&s.ID, &s.User, &s.Balance, &trx, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BalanceSnapshot{}, core.ErrNoBalance
	}
	if err != nil {
		return core.BalanceSnapshot{}, mapErr("read latest snapshot", err)
	}
	if trx.Valid {
		s.Transaction = &trx.String
	}
	if s.CreatedAt, err = decodeTime(createdAt); err != nil {
		return core.BalanceSnapshot{}, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(r rowScanner) (core.Transaction, error) {
	var (
		t           core.Transaction
		installment sql.NullInt64
		reference   sql.NullString
		dueAt       string
		nextDueAt   sql.NullString
		paidAt      sql.NullString
		createdAt   string
		updatedAt   sql.NullString
	)
	err := r.Scan(&t.ID, &t.User, &t.Name, &t.Description, &t.Type, &t.Interval,
		&installment, &t.Value, &reference, &dueAt, &nextDueAt, &paidAt,
		&createdAt, &updatedAt, &t.Category.ID, &t.Category.Name)
	if err != nil {
		return core.Transaction{}, err
	}

	if installment.Valid {
		v := int(installment.Int64)
		t.Installment = &v
	}
	if reference.Valid {
		t.Reference = &reference.String
	}
	if t.DueAt, err = decodeTime(dueAt); err != nil {
		return core.Transaction{}, err
	}
	if t.NextDueAt, err = decodeTimePtr(nextDueAt); err != nil {
		return core.Transaction{}, err
	}
	if t.PaidAt, err = decodeTimePtr(paidAt); err != nil {
		return core.Transaction{}, err
	}
	if t.CreatedAt, err = decodeTime(createdAt); err != nil {
		return core.Transaction{}, err
	}
	if t.UpdatedAt, err = decodeTimePtr(updatedAt); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

func scanCategory(r rowScanner) (core.Category, error) {
	var (
		c         core.Category
		user      sql.NullString
		createdAt string
	)
	err := r.Scan(&c.ID, &user, &c.Name, &c.Description, &c.Type, &c.Source, &createdAt)
	if err != nil {
		return core.Category{}, err
	}
	if user.Valid {
		c.User = &user.String
	}
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeTime(*t)
	return &s
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode stored time %q: %w", s, err)
	}
	return t, nil
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mapErr folds driver failures into the error taxonomy: constraint
// violations become ErrConflict, everything else ErrStoreUnavailable.
func mapErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") || strings.Contains(msg, "unique") {
		return fmt.Errorf("%s: %w: %v", op, core.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}
