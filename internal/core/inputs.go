package core

import "unicode/utf8"

// Operation-specific inputs. Each carries only the fields its operation
// accepts and is validated by a pure function before reaching the ledger.

type CreateUserInput struct {
	Username     string
	FullName     string
	PasswordHash string
}

func (in CreateUserInput) Validate() error {
	if err := in.User().Validate(); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(in.PasswordHash); n < 8 || n > 100 {
		return Invalid("password_hash", ErrInvalidPassword)
	}
	return nil
}

func (in CreateUserInput) User() User {
	return User{ID: Draft(), Username: in.Username, FullName: in.FullName, PasswordHash: in.PasswordHash}
}

type CreateAccountInput struct {
	UserID         int64
	Name           string
	InitialBalance Money
}

func (in CreateAccountInput) Validate() error {
	return in.Account().Validate()
}

func (in CreateAccountInput) Account() Account {
	return Account{
		ID:      Draft(),
		UserID:  in.UserID,
		Name:    in.Name,
		Balance: in.InitialBalance,
		Opening: in.InitialBalance,
	}
}

type CreateCategoryInput struct {
	UserID int64
	Name   string
}

func (in CreateCategoryInput) Validate() error {
	return in.Category().Validate()
}

func (in CreateCategoryInput) Category() Category {
	return Category{ID: Draft(), UserID: in.UserID, Name: in.Name}
}

type CreateTransactionInput struct {
	UserID        int64
	AccountID     int64
	CategoryID    int64
	Amount        Money
	Description   string
	Date          Date
	Type          TransactionType
	Recurring     bool
	Frequency     RecurrenceFrequency
	RecurrenceEnd Date
}

// Validate checks the input against today's date.
func (in CreateTransactionInput) Validate(today Date) error {
	tx := in.Transaction()
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Date.After(today) {
		return Invalid("date", ErrFutureDate)
	}
	return nil
}

// Transaction returns the draft transaction described by the input.
func (in CreateTransactionInput) Transaction() Transaction {
	tx := Transaction{
		ID:          Draft(),
		UserID:      in.UserID,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		Type:        in.Type,
		Recurring:   in.Recurring,
	}
	if in.Recurring {
		tx.Frequency = in.Frequency
		tx.RecurrenceEnd = in.RecurrenceEnd
	}
	return tx
}

// UpdateTransactionInput changes only the non-nil fields. The owning user
// and the recurrence link of materialized instances cannot be edited.
type UpdateTransactionInput struct {
	AccountID     *int64
	CategoryID    *int64
	Amount        *Money
	Description   *string
	Date          *Date
	Type          *TransactionType
	Recurring     *bool
	Frequency     *RecurrenceFrequency
	RecurrenceEnd *Date
}

// Apply returns tx with the input's fields applied. The posting is left
// untouched so the previous effect can still be reversed.
func (in UpdateTransactionInput) Apply(tx Transaction) Transaction {
	if in.AccountID != nil {
		tx.AccountID = *in.AccountID
	}
	if in.CategoryID != nil {
		tx.CategoryID = *in.CategoryID
	}
	if in.Amount != nil {
		tx.Amount = *in.Amount
	}
	if in.Description != nil {
		tx.Description = *in.Description
	}
	if in.Date != nil {
		tx.Date = *in.Date
	}
	if in.Type != nil {
		tx.Type = *in.Type
	}
	if in.Recurring != nil {
		tx.Recurring = *in.Recurring
	}
	if in.Frequency != nil {
		tx.Frequency = *in.Frequency
	}
	if in.RecurrenceEnd != nil {
		tx.RecurrenceEnd = *in.RecurrenceEnd
	}
	if !tx.Recurring {
		tx.Frequency = ""
		tx.RecurrenceEnd = Date{}
	}
	return tx
}

// Validate checks the transaction that results from applying the input.
func (in UpdateTransactionInput) Validate(tx Transaction, today Date) error {
	updated := in.Apply(tx)
	if err := updated.Validate(); err != nil {
		return err
	}
	if in.Date != nil && updated.Date.After(today) {
		return Invalid("date", ErrFutureDate)
	}
	return nil
}

// ChangesBalance reports whether applying the input alters the balance
// effect of a transaction (account, amount or direction).
func (in UpdateTransactionInput) ChangesBalance() bool {
	return in.AccountID != nil || in.Amount != nil || in.Type != nil
}

// ChangesSchedule reports whether the input moves the recurrence grid of tx:
// a new start date or a new frequency.
func (in UpdateTransactionInput) ChangesSchedule(tx Transaction) bool {
	return (in.Date != nil && in.Date.Compare(tx.Date) != 0) ||
		(in.Frequency != nil && *in.Frequency != tx.Frequency)
}

type CreateGoalInput struct {
	UserID      int64
	Name        string
	Target      Money
	EndDate     Date
	Description string
}

func (in CreateGoalInput) Validate(today Date) error {
	if err := in.Goal().Validate(); err != nil {
		return err
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(today) {
		return Invalid("end_date", ErrPastDate)
	}
	return nil
}

// Goal returns the draft goal with no progress yet.
func (in CreateGoalInput) Goal() Goal {
	return Goal{
		ID:          Draft(),
		UserID:      in.UserID,
		Name:        in.Name,
		Target:      in.Target,
		Current:     ZeroMoney(),
		EndDate:     in.EndDate,
		Description: in.Description,
	}
}
