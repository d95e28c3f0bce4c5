package core

import (
	"errors"
	"testing"
	"time"
)

func validTransaction() Transaction {
	return Transaction{
		ID:       "trx-1",
		User:     "user-1",
		Name:     "Escola",
		Type:     Outcome,
		Interval: Unique,
		Value:    122000,
		Category: CategoryRef{ID: "cat-1", Name: "Educação"},
		DueAt:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{name: "valid", mutate: func(*Transaction) {}, wantErr: nil},
		{name: "empty name", mutate: func(trx *Transaction) { trx.Name = "  " }, wantErr: ErrEmptyName},
		{name: "invalid type", mutate: func(trx *Transaction) { trx.Type = "TRANSFER" }, wantErr: ErrInvalidType},
		{name: "invalid interval", mutate: func(trx *Transaction) { trx.Interval = "HOURLY" }, wantErr: ErrInvalidInterval},
		{name: "negative value", mutate: func(trx *Transaction) { trx.Value = -1 }, wantErr: ErrInvalidAmount},
		{name: "missing category", mutate: func(trx *Transaction) { trx.Category = CategoryRef{} }, wantErr: ErrInvalidCategory},
		{name: "zero due date", mutate: func(trx *Transaction) { trx.DueAt = time.Time{} }, wantErr: ErrInvalidDueDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trx := validTransaction()
			tt.mutate(&trx)
			err := trx.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCategoryVisibleTo(t *testing.T) {
	owner := "user-1"

	tests := []struct {
		name     string
		category Category
		user     string
		want     bool
	}{
		{
			name:     "system category visible to everyone",
			category: Category{Source: SourceSystem},
			user:     "user-2",
			want:     true,
		},
		{
			name:     "user category visible to owner",
			category: Category{Source: SourceUser, User: &owner},
			user:     "user-1",
			want:     true,
		},
		{
			name:     "user category hidden from others",
			category: Category{Source: SourceUser, User: &owner},
			user:     "user-2",
			want:     false,
		},
		{
			name:     "user category without owner hidden",
			category: Category{Source: SourceUser},
			user:     "user-1",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.category.VisibleTo(tt.user)
			if got != tt.want {
				t.Errorf("VisibleTo(%q) = %v, want %v", tt.user, got, tt.want)
			}
		})
	}
}

func TestIsParent(t *testing.T) {
	ref := "other"

	tests := []struct {
		name string
		trx  Transaction
		want bool
	}{
		{name: "monthly template", trx: Transaction{Interval: Monthly}, want: true},
		{name: "yearly template", trx: Transaction{Interval: Yearly}, want: true},
		{name: "materialized occurrence", trx: Transaction{Interval: Monthly, Reference: &ref}, want: false},
		{name: "unique", trx: Transaction{Interval: Unique}, want: false},
		{name: "installments anchor", trx: Transaction{Interval: Installments}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trx.IsParent(); got != tt.want {
				t.Errorf("IsParent() = %v, want %v", got, tt.want)
			}
		})
	}
}
