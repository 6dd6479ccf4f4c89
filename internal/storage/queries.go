package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// users

const createUser = `
INSERT INTO users (username, full_name, password_hash, created_at)
VALUES (?, ?, ?, ?)
RETURNING id, username, full_name, password_hash, created_at`

type CreateUserParams struct {
	Username     string
	FullName     string
	PasswordHash string
	CreatedAt    string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Username, arg.FullName, arg.PasswordHash, arg.CreatedAt)
	var i User
	err := row.Scan(&i.ID, &i.Username, &i.FullName, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const getUser = `SELECT id, username, full_name, password_hash, created_at FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, id)
	var i User
	err := row.Scan(&i.ID, &i.Username, &i.FullName, &i.PasswordHash, &i.CreatedAt)
	return i, err
}

const deleteUser = `DELETE FROM users WHERE id = ?`

func (q *Queries) DeleteUser(ctx context.Context, id int64) (int64, error) {
	return q.execRows(ctx, deleteUser, id)
}

// accounts

const accountColumns = `id, user_id, name, balance, opening_balance, version`

const createAccount = `
INSERT INTO accounts (user_id, name, balance, opening_balance)
VALUES (?, ?, ?, ?)
RETURNING ` + accountColumns

type CreateAccountParams struct {
	UserID         int64
	Name           string
	Balance        string
	OpeningBalance string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount, arg.UserID, arg.Name, arg.Balance, arg.OpeningBalance)
	return scanAccount(row)
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, id))
}

const listAccountsByUser = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = ? ORDER BY id`

func (q *Queries) ListAccountsByUser(ctx context.Context, userID int64) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccountsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		i, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateAccount = `
UPDATE accounts SET name = ?, balance = ?, version = version + 1
WHERE id = ? AND version = ?`

type UpdateAccountParams struct {
	Name    string
	Balance string
	ID      int64
	Version int64
}

// UpdateAccount returns the number of rows changed: 0 means the row is
// missing or its version moved on.
func (q *Queries) UpdateAccount(ctx context.Context, arg UpdateAccountParams) (int64, error) {
	return q.execRows(ctx, updateAccount, arg.Name, arg.Balance, arg.ID, arg.Version)
}

const deleteAccount = `DELETE FROM accounts WHERE id = ?`

func (q *Queries) DeleteAccount(ctx context.Context, id int64) (int64, error) {
	return q.execRows(ctx, deleteAccount, id)
}

// categories

const createCategory = `
INSERT INTO categories (user_id, name) VALUES (?, ?)
RETURNING id, user_id, name`

type CreateCategoryParams struct {
	UserID int64
	Name   string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, arg.UserID, arg.Name)
	var i Category
	err := row.Scan(&i.ID, &i.UserID, &i.Name)
	return i, err
}

const getCategory = `SELECT id, user_id, name FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id)
	var i Category
	err := row.Scan(&i.ID, &i.UserID, &i.Name)
	return i, err
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	return q.execRows(ctx, deleteCategory, id)
}

// transactions

const transactionColumns = `id, user_id, account_id, category_id, amount, description, date, type,
	is_recurring, recurrence_frequency, recurrence_end_date, template_id, posted_account_id, posted_delta`

const createTransaction = `
INSERT INTO transactions (
	user_id, account_id, category_id, amount, description, date, type,
	is_recurring, recurrence_frequency, recurrence_end_date, template_id, posted_account_id, posted_delta
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type TransactionParams struct {
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

func (q *Queries) CreateTransaction(ctx context.Context, arg TransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID,
		arg.AccountID,
		arg.CategoryID,
		arg.Amount,
		arg.Description,
		arg.Date,
		arg.Type,
		arg.IsRecurring,
		arg.RecurrenceFrequency,
		arg.RecurrenceEndDate,
		arg.TemplateID,
		arg.PostedAccountID,
		arg.PostedDelta,
	)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const updateTransaction = `
UPDATE transactions SET
	account_id = ?, category_id = ?, amount = ?, description = ?, date = ?, type = ?,
	is_recurring = ?, recurrence_frequency = ?, recurrence_end_date = ?,
	posted_account_id = ?, posted_delta = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, arg TransactionParams) (int64, error) {
	return q.execRows(ctx, updateTransaction,
		arg.AccountID,
		arg.CategoryID,
		arg.Amount,
		arg.Description,
		arg.Date,
		arg.Type,
		arg.IsRecurring,
		arg.RecurrenceFrequency,
		arg.RecurrenceEndDate,
		arg.PostedAccountID,
		arg.PostedDelta,
		arg.ID,
	)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	return q.execRows(ctx, deleteTransaction, id)
}

const listTransactionsByAccount = `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ? ORDER BY date, id`

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByAccount, accountID)
}

const listTransactionsByCategory = `SELECT ` + transactionColumns + ` FROM transactions WHERE category_id = ? ORDER BY date, id`

func (q *Queries) ListTransactionsByCategory(ctx context.Context, categoryID int64) ([]Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByCategory, categoryID)
}

const listRecurringTemplates = `SELECT ` + transactionColumns + ` FROM transactions WHERE is_recurring = 1 ORDER BY account_id, id`

func (q *Queries) ListRecurringTemplates(ctx context.Context) ([]Transaction, error) {
	return q.listTransactions(ctx, listRecurringTemplates)
}

const listMaterializedDates = `SELECT date FROM transactions WHERE template_id = ? ORDER BY date`

func (q *Queries) ListMaterializedDates(ctx context.Context, templateID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listMaterializedDates, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		items = append(items, date)
	}
	return items, rows.Err()
}

// goals

const goalColumns = `id, user_id, name, target_amount, current_amount, end_date, description`

const createGoal = `
INSERT INTO goals (user_id, name, target_amount, current_amount, end_date, description)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + goalColumns

type CreateGoalParams struct {
	UserID        int64
	Name          string
	TargetAmount  string
	CurrentAmount string
	EndDate       sql.NullString
	Description   string
}

func (q *Queries) CreateGoal(ctx context.Context, arg CreateGoalParams) (Goal, error) {
	row := q.db.QueryRowContext(ctx, createGoal,
		arg.UserID, arg.Name, arg.TargetAmount, arg.CurrentAmount, arg.EndDate, arg.Description)
	return scanGoal(row)
}

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ?`

func (q *Queries) GetGoal(ctx context.Context, id int64) (Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id))
}

const updateGoalProgress = `UPDATE goals SET current_amount = ? WHERE id = ?`

func (q *Queries) UpdateGoalProgress(ctx context.Context, currentAmount string, id int64) (int64, error) {
	return q.execRows(ctx, updateGoalProgress, currentAmount, id)
}

// balance adjustments

const createBalanceAdjustment = `
INSERT INTO balance_adjustments (account_id, previous_balance, new_balance, reason, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id, account_id, previous_balance, new_balance, reason, created_at`

type CreateBalanceAdjustmentParams struct {
	AccountID       int64
	PreviousBalance string
	NewBalance      string
	Reason          string
	CreatedAt       string
}

func (q *Queries) CreateBalanceAdjustment(ctx context.Context, arg CreateBalanceAdjustmentParams) (BalanceAdjustment, error) {
	row := q.db.QueryRowContext(ctx, createBalanceAdjustment,
		arg.AccountID, arg.PreviousBalance, arg.NewBalance, arg.Reason, arg.CreatedAt)
	var i BalanceAdjustment
	err := row.Scan(&i.ID, &i.AccountID, &i.PreviousBalance, &i.NewBalance, &i.Reason, &i.CreatedAt)
	return i, err
}

const listBalanceAdjustments = `
SELECT id, account_id, previous_balance, new_balance, reason, created_at
FROM balance_adjustments WHERE account_id = ? ORDER BY id`

func (q *Queries) ListBalanceAdjustments(ctx context.Context, accountID int64) ([]BalanceAdjustment, error) {
	rows, err := q.db.QueryContext(ctx, listBalanceAdjustments, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BalanceAdjustment
	for rows.Next() {
		var i BalanceAdjustment
		if err := rows.Scan(&i.ID, &i.AccountID, &i.PreviousBalance, &i.NewBalance, &i.Reason, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (Account, error) {
	var i Account
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.Balance, &i.OpeningBalance, &i.Version)
	return i, err
}

func scanTransaction(row scanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.AccountID,
		&i.CategoryID,
		&i.Amount,
		&i.Description,
		&i.Date,
		&i.Type,
		&i.IsRecurring,
		&i.RecurrenceFrequency,
		&i.RecurrenceEndDate,
		&i.TemplateID,
		&i.PostedAccountID,
		&i.PostedDelta,
	)
	return i, err
}

func scanGoal(row scanner) (Goal, error) {
	var i Goal
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.TargetAmount, &i.CurrentAmount, &i.EndDate, &i.Description)
	return i, err
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (q *Queries) execRows(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
