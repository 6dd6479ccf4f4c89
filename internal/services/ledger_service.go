// Package services runs ledger operations as storage units of work and
// publishes what they committed.
package services

import (
	"context"
	"time"

	"finapp/internal/amqp"
	"finapp/internal/cache"
	"finapp/internal/core"
	"finapp/internal/ledger"
	"finapp/internal/log"
	"finapp/internal/storage"
)

// LedgerService orchestrates balance-affecting operations. Every method is
// one unit of work: the balance and the transaction records change together
// or not at all.
type LedgerService struct {
	unit
	clock core.Clock
	now   func() time.Time
}

// NewLedgerService wires the service. publisher and accounts may be nil.
func NewLedgerService(store storage.Store, publisher EventPublisher, accounts cache.Cache[int64, core.Account], clock core.Clock, logger *log.Logger) *LedgerService {
	if clock == nil {
		clock = core.SystemClock(time.UTC)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerService{
		unit: unit{
			store:     store,
			publisher: publisher,
			accounts:  newAccountCache(accounts),
			logger:    logger.WithComponent(log.ComponentLedger),
		},
		clock: clock,
		now:   time.Now,
	}
}

func (s *LedgerService) CreateUser(ctx context.Context, in core.CreateUserInput) (core.User, error) {
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}
	var user core.User
	err := s.run(ctx, "create user", func(ctx context.Context, tx storage.Tx, _ *work) error {
		var err error
		user, err = tx.CreateUser(ctx, in.User())
		return err
	})
	if err != nil {
		return core.User{}, err
	}
	s.logger.InfoContext(ctx, "Created user", log.FieldUserID, user.ID.Int64())
	return user, nil
}

// DeleteUser removes the user with every account, category, transaction and
// goal it owns.
func (s *LedgerService) DeleteUser(ctx context.Context, id int64) error {
	return s.run(ctx, "delete user", func(ctx context.Context, tx storage.Tx, w *work) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		accts, err := tx.ListAccounts(ctx, id)
		if err != nil {
			return err
		}
		for _, a := range accts {
			w.touch(a.ID.Int64())
		}
		return tx.DeleteUser(ctx, id)
	})
}

func (s *LedgerService) CreateAccount(ctx context.Context, in core.CreateAccountInput) (core.Account, error) {
	if err := in.Validate(); err != nil {
		return core.Account{}, err
	}
	var acct core.Account
	err := s.run(ctx, "create account", func(ctx context.Context, tx storage.Tx, _ *work) error {
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		var err error
		acct, err = tx.CreateAccount(ctx, in.Account())
		return err
	})
	if err != nil {
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Created account",
		log.NewFields().WithOperation(log.OpCreate).WithBalance(acct.ID.Int64(), acct.Balance.String(), "").ToSlice()...)
	return acct, nil
}

// GetAccount returns the committed account, served from cache when possible.
func (s *LedgerService) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	acct, gen, ok := s.accounts.get(id)
	if ok {
		return acct, nil
	}
	err := s.run(ctx, "get account", func(ctx context.Context, tx storage.Tx, _ *work) error {
		var err error
		acct, err = tx.GetAccount(ctx, id)
		return err
	})
	if err != nil {
		return core.Account{}, err
	}
	s.accounts.fill(id, acct, gen)
	return acct, nil
}

// DeleteAccount removes the account and its transactions.
func (s *LedgerService) DeleteAccount(ctx context.Context, id int64) error {
	return s.run(ctx, "delete account", func(ctx context.Context, tx storage.Tx, w *work) error {
		if _, err := tx.GetAccount(ctx, id); err != nil {
			return err
		}
		w.touch(id)
		return tx.DeleteAccount(ctx, id)
	})
}

func (s *LedgerService) CreateCategory(ctx context.Context, in core.CreateCategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	var cat core.Category
	err := s.run(ctx, "create category", func(ctx context.Context, tx storage.Tx, _ *work) error {
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		var err error
		cat, err = tx.CreateCategory(ctx, in.Category())
		return err
	})
	return cat, err
}

// DeleteCategory removes a category. A category still referenced by
// transactions is only removed when cascade is set; its transactions are
// then reversed and deleted with it.
func (s *LedgerService) DeleteCategory(ctx context.Context, id int64, cascade bool) error {
	removed := 0
	err := s.run(ctx, "delete category", func(ctx context.Context, tx storage.Tx, w *work) error {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			return err
		}
		txs, err := tx.ListTransactionsByCategory(ctx, id)
		if err != nil {
			return err
		}
		if len(txs) > 0 && !cascade {
			return core.Inconsistent("delete category", core.ErrCategoryInUse)
		}

		accts := make(map[int64]core.Account)
		for _, t := range txs {
			if !t.IsPosted() {
				continue
			}
			acct, ok := accts[t.Posting.AccountID]
			if !ok {
				if acct, err = tx.GetAccount(ctx, t.Posting.AccountID); err != nil {
					return err
				}
			}
			delta := t.Posting.Delta
			if acct, t, err = ledger.Reverse(acct, t); err != nil {
				return err
			}
			accts[acct.ID.Int64()] = acct
			w.emit(amqp.TransactionEvent(amqp.EventTransactionReversed, t, delta.Neg(), acct))
		}
		for _, acct := range accts {
			if _, err := saveAccount(ctx, tx, w, acct); err != nil {
				return err
			}
		}
		removed = len(txs)
		return tx.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Deleted category", log.FieldCategoryID, id, log.FieldCount, removed)
	return nil
}

// CreateTransaction validates in, stores the transaction and posts it to
// its account.
func (s *LedgerService) CreateTransaction(ctx context.Context, in core.CreateTransactionInput) (core.Transaction, error) {
	if err := in.Validate(s.clock.Today()); err != nil {
		return core.Transaction{}, err
	}
	var created core.Transaction
	err := s.run(ctx, "create transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		acct, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if err := checkCategory(ctx, tx, in.CategoryID, in.UserID); err != nil {
			return err
		}
		acct, posted, err := ledger.Post(acct, in.Transaction())
		if err != nil {
			return err
		}
		if created, err = tx.CreateTransaction(ctx, posted); err != nil {
			return err
		}
		if acct, err = saveAccount(ctx, tx, w, acct); err != nil {
			return err
		}
		w.emit(amqp.TransactionEvent(amqp.EventTransactionPosted, created, created.Posting.Delta, acct))
		return nil
	})
	if err != nil {
		s.logFailure(ctx, log.OpCreate, err)
		return core.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "Created transaction", transactionFields(log.OpCreate, created).ToSlice()...)
	return created, nil
}

// UpdateTransaction edits a transaction. When a posted transaction changes
// account, amount or type its effect is moved with ledger.Reassign.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id int64, in core.UpdateTransactionInput) (core.Transaction, error) {
	today := s.clock.Today()
	var updated core.Transaction
	err := s.run(ctx, "update transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		current, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := in.Validate(current, today); err != nil {
			return err
		}
		// Instances are matched to their template by date only.
		if current.IsTemplate() && in.ChangesSchedule(current) {
			dates, err := tx.MaterializedDates(ctx, id)
			if err != nil {
				return err
			}
			if len(dates) > 0 {
				return core.Inconsistent("reschedule", core.ErrScheduleLocked)
			}
		}
		updated = in.Apply(current)
		if in.CategoryID != nil {
			if err := checkCategory(ctx, tx, updated.CategoryID, updated.UserID); err != nil {
				return err
			}
		}
		if in.AccountID != nil {
			acct, err := tx.GetAccount(ctx, updated.AccountID)
			if err != nil {
				return err
			}
			if acct.UserID != updated.UserID {
				return core.Invalid("account_id", core.ErrOwnerMismatch)
			}
		}

		if current.IsPosted() && in.ChangesBalance() {
			if _, _, updated, err = s.reassign(ctx, tx, w, updated); err != nil {
				return err
			}
		}
		return tx.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		s.logFailure(ctx, log.OpUpdate, err)
		return core.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "Updated transaction", transactionFields(log.OpUpdate, updated).ToSlice()...)
	return updated, nil
}

// DeleteTransaction reverses the transaction's effect, then deletes it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	err := s.run(ctx, "delete transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.IsPosted() {
			if _, _, err := s.reverse(ctx, tx, w, t); err != nil {
				return err
			}
		}
		return tx.DeleteTransaction(ctx, id)
	})
	if err != nil {
		s.logFailure(ctx, log.OpDelete, err)
		return err
	}
	s.logger.InfoContext(ctx, "Deleted transaction", log.FieldTxID, id)
	return nil
}

// PostTransaction applies a stored, unposted transaction to its account.
func (s *LedgerService) PostTransaction(ctx context.Context, id int64) (core.Account, error) {
	var acct core.Account
	var posted core.Transaction
	err := s.run(ctx, "post transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.IsPosted() {
			return core.Inconsistent("post", core.ErrAlreadyPosted)
		}
		if acct, err = tx.GetAccount(ctx, t.AccountID); err != nil {
			return err
		}
		if acct, posted, err = ledger.Post(acct, t); err != nil {
			return err
		}
		if err := tx.UpdateTransaction(ctx, posted); err != nil {
			return err
		}
		if acct, err = saveAccount(ctx, tx, w, acct); err != nil {
			return err
		}
		w.emit(amqp.TransactionEvent(amqp.EventTransactionPosted, posted, posted.Posting.Delta, acct))
		return nil
	})
	if err != nil {
		s.logFailure(ctx, log.OpPost, err)
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Posted transaction",
		transactionFields(log.OpPost, posted).WithBalance(acct.ID.Int64(), acct.Balance.String(), "").ToSlice()...)
	return acct, nil
}

// ReverseTransaction removes a posted transaction's effect and leaves the
// record in place, detached from any balance.
func (s *LedgerService) ReverseTransaction(ctx context.Context, id int64) (core.Account, error) {
	var acct core.Account
	var detached core.Transaction
	err := s.run(ctx, "reverse transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if acct, detached, err = s.reverse(ctx, tx, w, t); err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, detached)
	})
	if err != nil {
		s.logFailure(ctx, log.OpReverse, err)
		return core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Reversed transaction",
		transactionFields(log.OpReverse, detached).WithBalance(acct.ID.Int64(), acct.Balance.String(), "").ToSlice()...)
	return acct, nil
}

// ReassignTransaction moves a posted transaction to another account. The
// old and new accounts are returned in that order; they are the same value
// when the transaction stays on its account.
func (s *LedgerService) ReassignTransaction(ctx context.Context, id, accountID int64) (core.Account, core.Account, error) {
	var oldAcct, newAcct core.Account
	err := s.run(ctx, "reassign transaction", func(ctx context.Context, tx storage.Tx, w *work) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if !t.IsPosted() {
			return core.Inconsistent("reassign", core.ErrNotPosted)
		}
		t.AccountID = accountID
		if oldAcct, newAcct, t, err = s.reassign(ctx, tx, w, t); err != nil {
			return err
		}
		return tx.UpdateTransaction(ctx, t)
	})
	if err != nil {
		s.logFailure(ctx, log.OpReassign, err)
		return core.Account{}, core.Account{}, err
	}
	s.logger.InfoContext(ctx, "Reassigned transaction",
		log.FieldTxID, id, "from_account_id", oldAcct.ID.Int64(), "to_account_id", newAcct.ID.Int64())
	return oldAcct, newAcct, nil
}

// CorrectBalance overwrites an account balance outside of any transaction.
// The correction is recorded as an adjustment and logged at WARN.
func (s *LedgerService) CorrectBalance(ctx context.Context, accountID int64, balance core.Money, reason string) (core.Account, error) {
	var acct core.Account
	var adj core.Adjustment
	err := s.run(ctx, "correct balance", func(ctx context.Context, tx storage.Tx, w *work) error {
		current, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct, adj, err = ledger.Correct(current, balance, reason, s.now().UTC()); err != nil {
			return err
		}
		if acct, err = saveAccount(ctx, tx, w, acct); err != nil {
			return err
		}
		if adj, err = tx.CreateAdjustment(ctx, adj); err != nil {
			return err
		}
		ev := amqp.NewLedgerEvent(amqp.EventBalanceCorrected, acct.UserID)
		ev.AccountID = acct.ID.Int64()
		ev.Amount = adj.New.Sub(adj.Previous)
		ev.Balance = acct.Balance
		ev.Reason = reason
		w.emit(ev)
		return nil
	})
	if err != nil {
		s.logFailure(ctx, log.OpCorrect, err)
		return core.Account{}, err
	}
	s.logger.WarnContext(ctx, "Balance corrected administratively",
		log.NewFields().
			WithOperation(log.OpCorrect).
			WithBalance(acct.ID.Int64(), adj.New.String(), adj.Previous.String()).
			ToSlice()...,
	)
	return acct, nil
}

// AuditReport compares an account's stored balance with the balance its
// history implies.
type AuditReport struct {
	AccountID   int64
	Stored      core.Money
	Expected    core.Money
	Postings    int
	Adjustments int
}

// Drift is Stored - Expected.
func (r AuditReport) Drift() core.Money { return r.Stored.Sub(r.Expected) }

func (r AuditReport) Consistent() bool { return r.Drift().IsZero() }

// Audit recomputes the balance from the opening balance, the deltas of the
// transactions currently posted to the account and the recorded
// corrections.
func (s *LedgerService) Audit(ctx context.Context, accountID int64) (AuditReport, error) {
	var report AuditReport
	err := s.run(ctx, "audit account", func(ctx context.Context, tx storage.Tx, _ *work) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		txs, err := tx.ListTransactionsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		adjs, err := tx.ListAdjustments(ctx, accountID)
		if err != nil {
			return err
		}

		report = AuditReport{AccountID: accountID, Stored: acct.Balance, Expected: acct.Opening}
		for _, t := range txs {
			if t.IsPosted() && t.Posting.AccountID == accountID {
				report.Expected = report.Expected.Add(t.Posting.Delta)
				report.Postings++
			}
		}
		for _, a := range adjs {
			report.Expected = report.Expected.Add(a.New.Sub(a.Previous))
			report.Adjustments++
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	fields := log.NewFields().WithOperation(log.OpAudit).WithBalance(accountID, report.Stored.String(), "")
	if !report.Consistent() {
		s.logger.WarnContext(ctx, "Account balance drifted from its history",
			append(fields.ToSlice(), "expected", report.Expected.String(), "drift", report.Drift().String())...)
	} else {
		s.logger.DebugContext(ctx, "Account balance consistent", fields.ToSlice()...)
	}
	return report, nil
}

// reverse detaches a posted transaction from its account and persists the
// account.
func (s *LedgerService) reverse(ctx context.Context, tx storage.Tx, w *work, t core.Transaction) (core.Account, core.Transaction, error) {
	if !t.IsPosted() {
		return core.Account{}, t, core.Inconsistent("reverse", core.ErrNotPosted)
	}
	acct, err := tx.GetAccount(ctx, t.Posting.AccountID)
	if err != nil {
		return core.Account{}, t, err
	}
	delta := t.Posting.Delta
	acct, detached, err := ledger.Reverse(acct, t)
	if err != nil {
		return core.Account{}, t, err
	}
	if acct, err = saveAccount(ctx, tx, w, acct); err != nil {
		return core.Account{}, t, err
	}
	w.emit(amqp.TransactionEvent(amqp.EventTransactionReversed, detached, delta.Neg(), acct))
	return acct, detached, nil
}

// reassign reverses t's current posting and posts its current fields,
// persisting both accounts.
func (s *LedgerService) reassign(ctx context.Context, tx storage.Tx, w *work, t core.Transaction) (core.Account, core.Account, core.Transaction, error) {
	var none core.Account
	oldAcct, err := tx.GetAccount(ctx, t.Posting.AccountID)
	if err != nil {
		return none, none, t, err
	}
	newAcct := oldAcct
	if t.AccountID != t.Posting.AccountID {
		if newAcct, err = tx.GetAccount(ctx, t.AccountID); err != nil {
			return none, none, t, err
		}
		if newAcct.UserID != t.UserID {
			return none, none, t, core.Invalid("account_id", core.ErrOwnerMismatch)
		}
	}
	oldDelta := t.Posting.Delta

	oldAcct, newAcct, moved, err := ledger.Reassign(t, oldAcct, newAcct)
	if err != nil {
		return none, none, t, err
	}
	if oldAcct, err = saveAccount(ctx, tx, w, oldAcct); err != nil {
		return none, none, t, err
	}
	if newAcct.ID.Same(oldAcct.ID) {
		newAcct = oldAcct
	} else if newAcct, err = saveAccount(ctx, tx, w, newAcct); err != nil {
		return none, none, t, err
	}

	reversed := moved
	reversed.AccountID = oldAcct.ID.Int64()
	w.emit(amqp.TransactionEvent(amqp.EventTransactionReversed, reversed, oldDelta.Neg(), oldAcct))
	w.emit(amqp.TransactionEvent(amqp.EventTransactionPosted, moved, moved.Posting.Delta, newAcct))
	return oldAcct, newAcct, moved, nil
}

func checkCategory(ctx context.Context, tx storage.Tx, categoryID, userID int64) error {
	cat, err := tx.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if cat.UserID != userID {
		return core.Invalid("category_id", core.ErrOwnerMismatch)
	}
	return nil
}

func transactionFields(op string, t core.Transaction) log.LogFields {
	return log.NewFields().
		WithOperation(op).
		WithTransaction(t.ID.Int64(), t.AccountID, string(t.Type), t.Amount.String())
}

func (s *LedgerService) logFailure(ctx context.Context, op string, err error) {
	s.logger.WarnContext(ctx, "Ledger operation failed",
		log.NewFields().WithOperation(op).WithError(err).WithErrorType(errorType(err)).ToSlice()...)
}
