package core

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateTransactionInputRejectsFutureDate(t *testing.T) {
	today := NewDate(2024, 3, 10)
	in := CreateTransactionInput{
		UserID: 1, AccountID: 1, CategoryID: 1,
		Amount:      MustParseMoney("10"),
		Description: "salary",
		Date:        today,
		Type:        Income,
	}
	if err := in.Validate(today); err != nil {
		t.Fatalf("today should be accepted: %v", err)
	}
	in.Date = today.AddDays(1)
	if err := in.Validate(today); !errors.Is(err, ErrFutureDate) {
		t.Fatalf("expected ErrFutureDate, got %v", err)
	}
}

func TestCreateTransactionInputDropsRecurrenceWhenNotRecurring(t *testing.T) {
	in := CreateTransactionInput{
		Frequency:     Monthly,
		RecurrenceEnd: NewDate(2025, 1, 1),
	}
	tx := in.Transaction()
	if tx.Frequency != "" || !tx.RecurrenceEnd.IsZero() {
		t.Fatalf("non-recurring transaction kept recurrence fields: %+v", tx)
	}
	if !tx.ID.IsDraft() {
		t.Fatal("new transaction must be a draft")
	}
}

func TestUpdateTransactionInputApply(t *testing.T) {
	tx := validTransaction()
	tx.Posting = &Posting{AccountID: tx.AccountID, Delta: tx.Amount.Neg()}

	newAmount := MustParseMoney("45.00")
	typ := Income
	in := UpdateTransactionInput{Amount: &newAmount, Type: &typ}
	got := in.Apply(tx)

	if !got.Amount.Equal(newAmount) || got.Type != Income {
		t.Fatalf("fields not applied: %+v", got)
	}
	if got.Posting == nil || !got.Posting.Delta.Equal(MustParseMoney("-30.00")) {
		t.Fatalf("apply must keep the previous posting, got %+v", got.Posting)
	}
	if !in.ChangesBalance() {
		t.Fatal("amount/type edit changes the balance")
	}
	desc := "renamed"
	if (UpdateTransactionInput{Description: &desc}).ChangesBalance() {
		t.Fatal("description edit does not change the balance")
	}
}

func TestUpdateTransactionInputValidate(t *testing.T) {
	today := NewDate(2024, 1, 20)
	zero := ZeroMoney()
	if err := (UpdateTransactionInput{Amount: &zero}).Validate(validTransaction(), today); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	future := today.AddDays(3)
	if err := (UpdateTransactionInput{Date: &future}).Validate(validTransaction(), today); !errors.Is(err, ErrFutureDate) {
		t.Fatalf("expected ErrFutureDate, got %v", err)
	}
}

func TestCreateGoalInputValidate(t *testing.T) {
	today := NewDate(2024, 5, 1)
	in := CreateGoalInput{UserID: 1, Name: "Emergency fund", Target: MustParseMoney("1000")}
	if err := in.Validate(today); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if g := in.Goal(); !g.Current.IsZero() {
		t.Fatalf("new goal must start at zero, got %s", g.Current)
	}
	in.EndDate = today.AddDays(-1)
	if err := in.Validate(today); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
}

func TestCreateUserInputPasswordHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want error
	}{
		{"missing", "", ErrInvalidPassword},
		{"too short", "1234567", ErrInvalidPassword},
		{"shortest", "12345678", nil},
		{"longest", strings.Repeat("x", 100), nil},
		{"too long", strings.Repeat("x", 101), ErrInvalidPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreateUserInput{Username: "ana@example.com", FullName: "Ana Souza", PasswordHash: tt.hash}
			err := in.Validate()
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
			if tt.want == nil && in.User().PasswordHash != tt.hash {
				t.Fatal("hash must be carried to the user unchanged")
			}
		})
	}
}
