package core

import (
	"strings"
	"time"
)

const (
	Income  TransactionType = "INCOME"
	Outcome TransactionType = "OUTCOME"
)

const (
	Unique       Interval = "UNIQUE"
	Daily        Interval = "DAILY"
	Weekly       Interval = "WEEKLY"
	Monthly      Interval = "MONTHLY"
	Yearly       Interval = "YEARLY"
	Installments Interval = "INSTALLMENTS"
)

const (
	SourceSystem CategorySource = "SYSTEM"
	SourceUser   CategorySource = "USER"
)

type (
	TransactionType string

	Interval string

	CategorySource string

	// Transaction is either a persisted row or a projected virtual
	// occurrence of a recurring parent. Virtual rows carry a fresh id,
	// Reference set to the parent id and Virtual = true; they are never
	// written to the store until paid.
	Transaction struct {
		ID          string
		User        string
		Name        string
		Description string
		Type        TransactionType
		Interval    Interval
		Installment *int
		Value       int64 // minor units, never negative; sign comes from Type
		Category    CategoryRef
		Reference   *string
		DueAt       time.Time
		NextDueAt   *time.Time
		PaidAt      *time.Time
		Virtual     bool
		CreatedAt   time.Time
		UpdatedAt   *time.Time
		DeletedAt   *time.Time
	}

	// CategoryRef is the reduced category shape exposed on query results.
	CategoryRef struct {
		ID   string
		Name string
	}

	Category struct {
		ID          string
		User        *string // nil for SYSTEM categories, shared across users
		Name        string
		Description string
		Type        TransactionType
		Source      CategorySource
		CreatedAt   time.Time
		UpdatedAt   *time.Time
		DeletedAt   *time.Time
	}

	// BalanceSnapshot is one immutable entry of the append-only ledger.
	// The current balance for a user is the snapshot with the latest
	// CreatedAt; snapshots are never updated or deleted in place.
	BalanceSnapshot struct {
		ID          string
		User        string
		Balance     int64 // minor units, may go negative
		Transaction *string
		CreatedAt   time.Time
	}
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Outcome
}

func (i Interval) Valid() bool {
	switch i {
	case Unique, Daily, Weekly, Monthly, Yearly, Installments:
		return true
	}
	return false
}

// Recurring reports whether the interval projects future occurrences.
// INSTALLMENTS is excluded: installment rows are materialized eagerly
// at creation time.
func (i Interval) Recurring() bool {
	return i == Monthly || i == Yearly
}

func (t Transaction) Paid() bool {
	return t.PaidAt != nil
}

// IsParent reports whether the transaction is the canonical recurring
// template virtual occurrences derive from.
func (t Transaction) IsParent() bool {
	return t.Reference == nil && t.Interval.Recurring()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 120 {
		return ErrNameTooLong
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Interval.Valid() {
		return ErrInvalidInterval
	}
	if t.Value < 0 {
		return ErrInvalidAmount
	}
	if t.Category.ID == "" {
		return ErrInvalidCategory
	}
	if t.DueAt.IsZero() {
		return ErrInvalidDueDate
	}
	return nil
}

// VisibleTo reports whether the category can be used by the given user:
// SYSTEM categories are shared, USER categories belong to their owner.
func (c Category) VisibleTo(user string) bool {
	if c.Source == SourceSystem {
		return true
	}
	return c.User != nil && *c.User == user
}
