package storage

import "database/sql"

// Row types mirror the tables in migrations/. Amounts and dates are kept as
// their TEXT column values and converted at the repository boundary.

type User struct {
	ID           int64
	Username     string
	FullName     string
	PasswordHash string
	CreatedAt    string
}

type Account struct {
	ID             int64
	UserID         int64
	Name           string
	Balance        string
	OpeningBalance string
	Version        int64
}

type Category struct {
	ID     int64
	UserID int64
	Name   string
}

type Transaction struct {
	ID                  int64
	UserID              int64
	AccountID           int64
	CategoryID          int64
	Amount              string
	Description         string
	Date                string
	Type                string
	IsRecurring         bool
	RecurrenceFrequency sql.NullString
	RecurrenceEndDate   sql.NullString
	TemplateID          sql.NullInt64
	PostedAccountID     sql.NullInt64
	PostedDelta         sql.NullString
}

type Goal struct {
	ID            int64
	UserID        int64
	Name          string
	TargetAmount  string
	CurrentAmount string
	EndDate       sql.NullString
	Description   string
}

type BalanceAdjustment struct {
	ID              int64
	AccountID       int64
	PreviousBalance string
	NewBalance      string
	Reason          string
	CreatedAt       string
}
