package core

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// TransactionType decides the direction of a transaction's balance effect.
type TransactionType string

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

// RecurrenceFrequency is the period between instances of a recurring
// transaction.
type RecurrenceFrequency string

const (
	Daily        RecurrenceFrequency = "DAILY"
	Weekly       RecurrenceFrequency = "WEEKLY"
	Fortnightly  RecurrenceFrequency = "FORTNIGHTLY"
	Monthly      RecurrenceFrequency = "MONTHLY"
	Quarterly    RecurrenceFrequency = "QUARTERLY"
	SemiAnnually RecurrenceFrequency = "SEMI_ANNUALLY"
	Annual       RecurrenceFrequency = "ANNUAL"
)

// Frequencies lists every supported frequency, shortest period first.
func Frequencies() []RecurrenceFrequency {
	return []RecurrenceFrequency{Daily, Weekly, Fortnightly, Monthly, Quarterly, SemiAnnually, Annual}
}

func (f RecurrenceFrequency) Validate() error {
	for _, known := range Frequencies() {
		if f == known {
			return nil
		}
	}
	return ErrInvalidFrequency
}

type (
	// User is the root aggregate; every other entity stores its key.
	User struct {
		ID       Identity
		Username string
		FullName string
		// PasswordHash is opaque to the ledger; it is stored as given.
		PasswordHash string
		CreatedAt    time.Time
	}

	Account struct {
		ID     Identity
		UserID int64
		Name   string
		// Balance is maintained incrementally by postings and corrections.
		Balance Money
		// Opening is the balance the account was created with.
		Opening Money
		// Version guards against lost updates in storage.
		Version int64
	}

	Category struct {
		ID     Identity
		UserID int64
		Name   string
	}

	// Posting records the balance effect a transaction currently has.
	Posting struct {
		AccountID int64
		Delta     Money
	}

	Transaction struct {
		ID          Identity
		UserID      int64
		AccountID   int64
		CategoryID  int64
		Amount      Money
		Description string
		Date        Date
		Type        TransactionType

		Recurring     bool
		Frequency     RecurrenceFrequency // required when Recurring
		RecurrenceEnd Date                // zero when open-ended

		// TemplateID is set on instances materialized from a recurring
		// template; 0 otherwise.
		TemplateID int64
		// Posting is nil while the transaction has no effect on any balance.
		Posting *Posting
	}

	Goal struct {
		ID          Identity
		UserID      int64
		Name        string
		Target      Money
		Current     Money
		EndDate     Date // optional
		Description string
	}

	// Adjustment is the audit record of an administrative balance correction.
	Adjustment struct {
		ID        Identity
		AccountID int64
		Previous  Money
		New       Money
		Reason    string
		At        time.Time
	}
)

// IsPosted reports whether the transaction currently affects a balance.
func (t Transaction) IsPosted() bool { return t.Posting != nil }

// IsTemplate reports whether the transaction drives a recurrence schedule.
func (t Transaction) IsTemplate() bool { return t.Recurring }

func checkText(s string, max int, empty, tooLong error) error {
	if strings.TrimSpace(s) == "" {
		return empty
	}
	if utf8.RuneCountInString(s) > max {
		return tooLong
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" || utf8.RuneCountInString(u.Username) > 100 {
		return Invalid("username", ErrInvalidUsername)
	}
	if addr, err := mail.ParseAddress(u.Username); err != nil || addr.Address != u.Username {
		return Invalid("username", ErrInvalidUsername)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(u.FullName)); n < 4 || n > 100 {
		return Invalid("full_name", ErrInvalidFullName)
	}
	if utf8.RuneCountInString(u.PasswordHash) > 255 {
		return Invalid("password_hash", ErrInvalidPassword)
	}
	return nil
}

func (a Account) Validate() error {
	if err := checkText(a.Name, 100, ErrEmptyName, ErrNameTooLong); err != nil {
		return Invalid("name", err)
	}
	if a.UserID == 0 {
		return Invalid("user_id", ErrMissingReference)
	}
	if err := a.Balance.Validate(); err != nil {
		return Invalid("balance", err)
	}
	if a.Balance.IsNegative() {
		return Invalid("balance", ErrNegativeBalance)
	}
	return nil
}

func (c Category) Validate() error {
	if err := checkText(c.Name, 100, ErrEmptyName, ErrNameTooLong); err != nil {
		return Invalid("name", err)
	}
	if c.UserID == 0 {
		return Invalid("user_id", ErrMissingReference)
	}
	return nil
}

// Validate checks the structural invariants of a transaction. Checks that
// depend on the current date live in the input types.
func (t Transaction) Validate() error {
	if err := t.Amount.ValidatePositive(); err != nil {
		return Invalid("amount", err)
	}
	if err := checkText(t.Description, 255, ErrEmptyDescription, ErrDescriptionTooLong); err != nil {
		return Invalid("description", err)
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if err := t.Type.Validate(); err != nil {
		return Invalid("type", err)
	}
	switch {
	case t.UserID == 0:
		return Invalid("user_id", ErrMissingReference)
	case t.AccountID == 0:
		return Invalid("account_id", ErrMissingReference)
	case t.CategoryID == 0:
		return Invalid("category_id", ErrMissingReference)
	}
	return t.validateRecurrence()
}

func (t Transaction) validateRecurrence() error {
	if !t.Recurring {
		return nil
	}
	if t.Frequency == "" {
		return Invalid("recurrence_frequency", ErrMissingFrequency)
	}
	if err := t.Frequency.Validate(); err != nil {
		return Invalid("recurrence_frequency", err)
	}
	if !t.RecurrenceEnd.IsZero() && t.RecurrenceEnd.Before(t.Date) {
		return Invalid("recurrence_end_date", ErrEndBeforeStart)
	}
	return nil
}

func (g Goal) Validate() error {
	if err := checkText(g.Name, 200, ErrEmptyName, ErrNameTooLong); err != nil {
		return Invalid("name", err)
	}
	if g.UserID == 0 {
		return Invalid("user_id", ErrMissingReference)
	}
	if err := g.Target.ValidatePositive(); err != nil {
		return Invalid("target_amount", err)
	}
	if err := g.Current.Validate(); err != nil {
		return Invalid("current_amount", err)
	}
	if g.Current.IsNegative() || g.Current.GreaterThan(g.Target) {
		return Invalid("current_amount", ErrInvalidAmount)
	}
	if utf8.RuneCountInString(g.Description) > 1000 {
		return Invalid("description", ErrDescriptionTooLong)
	}
	return nil
}
