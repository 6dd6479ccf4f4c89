package storage

import (
	"context"

	"finapp/internal/core"
)

// Store opens units of work. Everything fn does through its Tx either
// commits together or not at all; a non-nil return rolls back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside a unit of work. Lookups of
// missing rows return a *core.NotFoundError.
type Tx interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	// DeleteUser removes the user and everything it owns.
	DeleteUser(ctx context.Context, id int64) error

	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]core.Account, error)
	// UpdateAccount persists name and balance. It fails with
	// core.ErrConcurrentUpdate when a.Version is stale and returns the
	// account with its new version otherwise.
	UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
	// DeleteAccount removes the account and its transactions.
	DeleteAccount(ctx context.Context, id int64) error

	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	// DeleteCategory removes the category and any transaction still
	// referencing it.
	DeleteCategory(ctx context.Context, id int64) error

	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id int64) error
	ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error)
	ListTransactionsByCategory(ctx context.Context, categoryID int64) ([]core.Transaction, error)
	ListRecurringTemplates(ctx context.Context) ([]core.Transaction, error)
	// MaterializedDates lists the dates already materialized from a template.
	MaterializedDates(ctx context.Context, templateID int64) ([]core.Date, error)

	CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
	GetGoal(ctx context.Context, id int64) (core.Goal, error)
	UpdateGoal(ctx context.Context, g core.Goal) error

	CreateAdjustment(ctx context.Context, adj core.Adjustment) (core.Adjustment, error)
	ListAdjustments(ctx context.Context, accountID int64) ([]core.Adjustment, error)
}
