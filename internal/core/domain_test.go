package core

import (
	"errors"
	"strings"
	"testing"
)

func validTransaction() Transaction {
	return Transaction{
		UserID:      1,
		AccountID:   2,
		CategoryID:  3,
		Amount:      MustParseMoney("30.00"),
		Description: "groceries",
		Date:        NewDate(2024, 1, 15),
		Type:        Expense,
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"zero amount", func(tx *Transaction) { tx.Amount = ZeroMoney() }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = MoneyFromCents(-1) }, ErrInvalidAmount},
		{"empty description", func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		{"long description", func(tx *Transaction) { tx.Description = strings.Repeat("x", 256) }, ErrDescriptionTooLong},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrZeroDate},
		{"bad type", func(tx *Transaction) { tx.Type = "TRANSFER" }, ErrInvalidType},
		{"missing account", func(tx *Transaction) { tx.AccountID = 0 }, ErrMissingReference},
		{"missing category", func(tx *Transaction) { tx.CategoryID = 0 }, ErrMissingReference},
		{"recurring without frequency", func(tx *Transaction) { tx.Recurring = true }, ErrMissingFrequency},
		{"unknown frequency", func(tx *Transaction) { tx.Recurring = true; tx.Frequency = "HOURLY" }, ErrInvalidFrequency},
		{"end before start", func(tx *Transaction) {
			tx.Recurring = true
			tx.Frequency = Monthly
			tx.RecurrenceEnd = NewDate(2024, 1, 14)
		}, ErrEndBeforeStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !IsValidation(err) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
		})
	}
}

func TestRecurrenceEndMayEqualStart(t *testing.T) {
	tx := validTransaction()
	tx.Recurring = true
	tx.Frequency = Weekly
	tx.RecurrenceEnd = tx.Date
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestAccountValidate(t *testing.T) {
	good := Account{UserID: 1, Name: "Checking", Balance: MustParseMoney("100")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Account{
		{UserID: 1, Name: "", Balance: ZeroMoney()},
		{UserID: 1, Name: strings.Repeat("a", 101), Balance: ZeroMoney()},
		{UserID: 0, Name: "x", Balance: ZeroMoney()},
		{UserID: 1, Name: "x", Balance: MoneyFromCents(-1)},
	}
	for i, a := range bads {
		if err := a.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestGoalValidate(t *testing.T) {
	good := Goal{UserID: 1, Name: "Trip", Target: MustParseMoney("500"), Current: MustParseMoney("480")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Goal{
		{UserID: 1, Name: "", Target: MustParseMoney("1")},
		{UserID: 1, Name: "x", Target: ZeroMoney()},
		{UserID: 1, Name: "x", Target: MustParseMoney("1"), Current: MustParseMoney("2")},
		{UserID: 1, Name: "x", Target: MustParseMoney("1"), Description: strings.Repeat("d", 1001)},
	}
	for i, g := range bads {
		if err := g.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestUserValidate(t *testing.T) {
	if err := (User{Username: "ana@example.com", FullName: "Ana Souza"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (User{Username: "not-an-email", FullName: "Ana Souza"}).Validate(); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if err := (User{Username: "ana@example.com", FullName: "Ana"}).Validate(); !errors.Is(err, ErrInvalidFullName) {
		t.Fatalf("expected ErrInvalidFullName, got %v", err)
	}

	for _, name := range []string{"Ana <ana@example.com>", "<ana@example.com>", " ana@example.com"} {
		t.Run(name, func(t *testing.T) {
			if err := (User{Username: name, FullName: "Ana Souza"}).Validate(); !errors.Is(err, ErrInvalidUsername) {
				t.Fatalf("expected ErrInvalidUsername for %q, got %v", name, err)
			}
		})
	}
}

func TestIdentitySame(t *testing.T) {
	if Draft().Same(Draft()) {
		t.Fatal("two drafts must never be the same entity")
	}
	if !Persisted(7).Same(Persisted(7)) {
		t.Fatal("equal keys must be the same entity")
	}
	if Persisted(7).Same(Persisted(8)) || Persisted(7).Same(Draft()) {
		t.Fatal("different identities reported as same")
	}
	a := Account{ID: Draft(), UserID: 1, Name: "x"}
	b := a
	if a.ID.Same(b.ID) {
		t.Fatal("unpersisted accounts with identical fields must not be equal")
	}
}

func TestErrorKinds(t *testing.T) {
	nf := NotFound("account", 9)
	if !errors.Is(nf, ErrNotFound) || !IsNotFound(nf) {
		t.Fatalf("NotFound should match ErrNotFound: %v", nf)
	}
	if nf.Error() != "account 9 not found" {
		t.Fatalf("unexpected message %q", nf.Error())
	}
	ce := Inconsistent("reverse", ErrNotPosted)
	if !IsConsistency(ce) || !errors.Is(ce, ErrNotPosted) || IsValidation(ce) {
		t.Fatalf("unexpected classification of %v", ce)
	}
}
