package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finapp/internal/core"
	"finapp/internal/log"
)

// SQLiteRepository is the SQLite-backed Store. Units of work run in
// BEGIN IMMEDIATE transactions so writers are serialized by SQLite itself.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

// DSN builds the connection string used for ledger connections.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx implements Store.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &sqliteTx{q: r.queries.WithTx(sqlTx)}); err != nil {
		r.logger.DebugContext(ctx, "Unit of work rolled back", log.FieldError, err)
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	q *Queries
}

func (t *sqliteTx) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	row, err := t.q.CreateUser(ctx, CreateUserParams{
		Username:     u.Username,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    created.Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.User{}, translate(err, "user", 0, "username", core.ErrDuplicateUsername)
	}
	return userFromRow(row)
}

func (t *sqliteTx) GetUser(ctx context.Context, id int64) (core.User, error) {
	row, err := t.q.GetUser(ctx, id)
	if err != nil {
		return core.User{}, translate(err, "user", id, "", nil)
	}
	return userFromRow(row)
}

func (t *sqliteTx) DeleteUser(ctx context.Context, id int64) error {
	n, err := t.q.DeleteUser(ctx, id)
	return affected(n, err, "user", id)
}

func (t *sqliteTx) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	row, err := t.q.CreateAccount(ctx, CreateAccountParams{
		UserID:         a.UserID,
		Name:           a.Name,
		Balance:        a.Balance.String(),
		OpeningBalance: a.Opening.String(),
	})
	if err != nil {
		return core.Account{}, translate(err, "account", 0, "user_id", nil)
	}
	return accountFromRow(row)
}

func (t *sqliteTx) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	row, err := t.q.GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, translate(err, "account", id, "", nil)
	}
	return accountFromRow(row)
}

func (t *sqliteTx) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := t.q.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, 0, len(rows))
	for _, row := range rows {
		a, err := accountFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *sqliteTx) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	id := a.ID.Int64()
	n, err := t.q.UpdateAccount(ctx, UpdateAccountParams{
		Name:    a.Name,
		Balance: a.Balance.String(),
		ID:      id,
		Version: a.Version,
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("update account %d: %w", id, err)
	}
	if n == 0 {
		if _, err := t.q.GetAccount(ctx, id); err != nil {
			return core.Account{}, translate(err, "account", id, "", nil)
		}
		return core.Account{}, core.Inconsistent("update account", core.ErrConcurrentUpdate)
	}
	a.Version++
	return a, nil
}

func (t *sqliteTx) DeleteAccount(ctx context.Context, id int64) error {
	n, err := t.q.DeleteAccount(ctx, id)
	return affected(n, err, "account", id)
}

func (t *sqliteTx) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := t.q.CreateCategory(ctx, CreateCategoryParams{UserID: c.UserID, Name: c.Name})
	if err != nil {
		return core.Category{}, translate(err, "category", 0, "name", core.ErrDuplicateName)
	}
	return core.Category{ID: core.Persisted(row.ID), UserID: row.UserID, Name: row.Name}, nil
}

func (t *sqliteTx) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row, err := t.q.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, translate(err, "category", id, "", nil)
	}
	return core.Category{ID: core.Persisted(row.ID), UserID: row.UserID, Name: row.Name}, nil
}

func (t *sqliteTx) DeleteCategory(ctx context.Context, id int64) error {
	n, err := t.q.DeleteCategory(ctx, id)
	return affected(n, err, "category", id)
}

func (t *sqliteTx) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	row, err := t.q.CreateTransaction(ctx, transactionParams(tx))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return core.Transaction{}, core.Inconsistent("materialize", core.ErrDuplicateInstance)
		}
		return core.Transaction{}, translate(err, "transaction", 0, "", nil)
	}
	return transactionFromRow(row)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := t.q.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, translate(err, "transaction", id, "", nil)
	}
	return transactionFromRow(row)
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	id := tx.ID.Int64()
	n, err := t.q.UpdateTransaction(ctx, transactionParams(tx))
	if err != nil {
		return translate(err, "transaction", id, "", nil)
	}
	return affected(n, nil, "transaction", id)
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, id int64) error {
	n, err := t.q.DeleteTransaction(ctx, id)
	return affected(n, err, "transaction", id)
}

func (t *sqliteTx) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := t.q.ListTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by account: %w", err)
	}
	return transactionsFromRows(rows)
}

func (t *sqliteTx) ListTransactionsByCategory(ctx context.Context, categoryID int64) ([]core.Transaction, error) {
	rows, err := t.q.ListTransactionsByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list transactions by category: %w", err)
	}
	return transactionsFromRows(rows)
}

func (t *sqliteTx) ListRecurringTemplates(ctx context.Context) ([]core.Transaction, error) {
	rows, err := t.q.ListRecurringTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurring templates: %w", err)
	}
	return transactionsFromRows(rows)
}

func (t *sqliteTx) MaterializedDates(ctx context.Context, templateID int64) ([]core.Date, error) {
	rows, err := t.q.ListMaterializedDates(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("list materialized dates: %w", err)
	}
	out := make([]core.Date, 0, len(rows))
	for _, s := range rows {
		d, err := core.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", templateID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (t *sqliteTx) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	row, err := t.q.CreateGoal(ctx, CreateGoalParams{
		UserID:        g.UserID,
		Name:          g.Name,
		TargetAmount:  g.Target.String(),
		CurrentAmount: g.Current.String(),
		EndDate:       nullDate(g.EndDate),
		Description:   g.Description,
	})
	if err != nil {
		return core.Goal{}, translate(err, "goal", 0, "user_id", nil)
	}
	return goalFromRow(row)
}

func (t *sqliteTx) GetGoal(ctx context.Context, id int64) (core.Goal, error) {
	row, err := t.q.GetGoal(ctx, id)
	if err != nil {
		return core.Goal{}, translate(err, "goal", id, "", nil)
	}
	return goalFromRow(row)
}

func (t *sqliteTx) UpdateGoal(ctx context.Context, g core.Goal) error {
	id := g.ID.Int64()
	n, err := t.q.UpdateGoalProgress(ctx, g.Current.String(), id)
	return affected(n, err, "goal", id)
}

func (t *sqliteTx) CreateAdjustment(ctx context.Context, adj core.Adjustment) (core.Adjustment, error) {
	row, err := t.q.CreateBalanceAdjustment(ctx, CreateBalanceAdjustmentParams{
		AccountID:       adj.AccountID,
		PreviousBalance: adj.Previous.String(),
		NewBalance:      adj.New.String(),
		Reason:          adj.Reason,
		CreatedAt:       adj.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.Adjustment{}, translate(err, "adjustment", 0, "account_id", nil)
	}
	return adjustmentFromRow(row)
}

func (t *sqliteTx) ListAdjustments(ctx context.Context, accountID int64) ([]core.Adjustment, error) {
	rows, err := t.q.ListBalanceAdjustments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list balance adjustments: %w", err)
	}
	out := make([]core.Adjustment, 0, len(rows))
	for _, row := range rows {
		adj, err := adjustmentFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, nil
}

// translate maps driver errors onto the core error kinds. dup is the
// sentinel reported for unique violations on field.
func translate(err error, entity string, id int64, field string, dup error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.NotFound(entity, id)
	case dup != nil && isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE):
		return core.Invalid(field, dup)
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
		return core.Invalid(field, core.ErrMissingReference)
	default:
		return fmt.Errorf("%s: %w", entity, err)
	}
}

func isConstraint(err error, code int) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code() == code {
		return true
	}
	// Depending on the connection, only the primary result code is set.
	msg := err.Error()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return strings.Contains(msg, "UNIQUE constraint failed")
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return strings.Contains(msg, "FOREIGN KEY constraint failed")
	}
	return false
}

func affected(n int64, err error, entity string, id int64) error {
	if err != nil {
		return fmt.Errorf("%s %d: %w", entity, id, err)
	}
	if n == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

func userFromRow(row User) (core.User, error) {
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.User{}, fmt.Errorf("user %d created_at: %w", row.ID, err)
	}
	return core.User{
		ID:           core.Persisted(row.ID),
		Username:     row.Username,
		FullName:     row.FullName,
		PasswordHash: row.PasswordHash,
		CreatedAt:    created,
	}, nil
}

func accountFromRow(row Account) (core.Account, error) {
	a := core.Account{ID: core.Persisted(row.ID), UserID: row.UserID, Name: row.Name, Version: row.Version}
	if err := a.Balance.Scan(row.Balance); err != nil {
		return core.Account{}, fmt.Errorf("account %d balance: %w", row.ID, err)
	}
	if err := a.Opening.Scan(row.OpeningBalance); err != nil {
		return core.Account{}, fmt.Errorf("account %d opening balance: %w", row.ID, err)
	}
	return a, nil
}

func transactionParams(tx core.Transaction) TransactionParams {
	p := TransactionParams{
		ID:          tx.ID.Int64(),
		UserID:      tx.UserID,
		AccountID:   tx.AccountID,
		CategoryID:  tx.CategoryID,
		Amount:      tx.Amount.String(),
		Description: tx.Description,
		Date:        tx.Date.String(),
		Type:        string(tx.Type),
		IsRecurring: tx.Recurring,
	}
	if tx.Recurring {
		p.RecurrenceFrequency = sql.NullString{String: string(tx.Frequency), Valid: true}
		p.RecurrenceEndDate = nullDate(tx.RecurrenceEnd)
	}
	if tx.TemplateID != 0 {
		p.TemplateID = sql.NullInt64{Int64: tx.TemplateID, Valid: true}
	}
	if tx.Posting != nil {
		p.PostedAccountID = sql.NullInt64{Int64: tx.Posting.AccountID, Valid: true}
		p.PostedDelta = sql.NullString{String: tx.Posting.Delta.String(), Valid: true}
	}
	return p
}

func transactionFromRow(row Transaction) (core.Transaction, error) {
	tx := core.Transaction{
		ID:          core.Persisted(row.ID),
		UserID:      row.UserID,
		AccountID:   row.AccountID,
		CategoryID:  row.CategoryID,
		Description: row.Description,
		Type:        core.TransactionType(row.Type),
		Recurring:   row.IsRecurring,
		TemplateID:  row.TemplateID.Int64,
	}
	if err := tx.Amount.Scan(row.Amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d amount: %w", row.ID, err)
	}
	if err := tx.Date.Scan(row.Date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d date: %w", row.ID, err)
	}
	if row.RecurrenceFrequency.Valid {
		tx.Frequency = core.RecurrenceFrequency(row.RecurrenceFrequency.String)
	}
	if row.RecurrenceEndDate.Valid {
		if err := tx.RecurrenceEnd.Scan(row.RecurrenceEndDate.String); err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %d recurrence end: %w", row.ID, err)
		}
	}
	if row.PostedAccountID.Valid {
		p := &core.Posting{AccountID: row.PostedAccountID.Int64}
		if err := p.Delta.Scan(row.PostedDelta.String); err != nil {
			return core.Transaction{}, fmt.Errorf("transaction %d posted delta: %w", row.ID, err)
		}
		tx.Posting = p
	}
	return tx, nil
}

func transactionsFromRows(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func goalFromRow(row Goal) (core.Goal, error) {
	g := core.Goal{ID: core.Persisted(row.ID), UserID: row.UserID, Name: row.Name, Description: row.Description}
	if err := g.Target.Scan(row.TargetAmount); err != nil {
		return core.Goal{}, fmt.Errorf("goal %d target: %w", row.ID, err)
	}
	if err := g.Current.Scan(row.CurrentAmount); err != nil {
		return core.Goal{}, fmt.Errorf("goal %d current: %w", row.ID, err)
	}
	if row.EndDate.Valid {
		if err := g.EndDate.Scan(row.EndDate.String); err != nil {
			return core.Goal{}, fmt.Errorf("goal %d end date: %w", row.ID, err)
		}
	}
	return g, nil
}

func adjustmentFromRow(row BalanceAdjustment) (core.Adjustment, error) {
	adj := core.Adjustment{ID: core.Persisted(row.ID), AccountID: row.AccountID, Reason: row.Reason}
	if err := adj.Previous.Scan(row.PreviousBalance); err != nil {
		return core.Adjustment{}, fmt.Errorf("adjustment %d previous: %w", row.ID, err)
	}
	if err := adj.New.Scan(row.NewBalance); err != nil {
		return core.Adjustment{}, fmt.Errorf("adjustment %d new: %w", row.ID, err)
	}
	at, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.Adjustment{}, fmt.Errorf("adjustment %d created_at: %w", row.ID, err)
	}
	adj.At = at
	return adj, nil
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
