// Package ledger keeps account balances consistent with the transactions
// posted against them.
//
// Every function here is pure: it takes entity values and returns updated
// copies, so a failed operation never leaves a partially applied balance.
// Persisting the results atomically is the storage layer's job.
package ledger

import (
	"time"

	"finapp/internal/core"
)

// Delta returns the signed balance effect of tx: +amount for income,
// -amount for expense.
func Delta(tx core.Transaction) (core.Money, error) {
	if err := tx.Amount.ValidatePositive(); err != nil {
		return core.Money{}, core.Invalid("amount", err)
	}
	switch tx.Type {
	case core.Income:
		return tx.Amount, nil
	case core.Expense:
		return tx.Amount.Neg(), nil
	default:
		return core.Money{}, core.Invalid("type", core.ErrInvalidType)
	}
}

// Post applies tx to acct and returns both updated. The transaction must not
// be posted yet and must reference acct, its category and its user.
func Post(acct core.Account, tx core.Transaction) (core.Account, core.Transaction, error) {
	if tx.IsPosted() {
		return acct, tx, core.Inconsistent("post", core.ErrAlreadyPosted)
	}
	delta, err := checkReferences(acct, tx)
	if err != nil {
		return acct, tx, err
	}
	balance, err := applyDelta(acct.Balance, delta)
	if err != nil {
		return acct, tx, err
	}

	acct.Balance = balance
	tx.Posting = &core.Posting{AccountID: acct.ID.Int64(), Delta: delta}
	return acct, tx, nil
}

// Reverse removes the effect tx currently has on acct. It must be called
// before the transaction record is deleted or detached. The recorded posting
// delta is used, not the transaction's current fields, so edits made since
// posting cannot skew the reversal.
func Reverse(acct core.Account, tx core.Transaction) (core.Account, core.Transaction, error) {
	if !tx.IsPosted() {
		return acct, tx, core.Inconsistent("reverse", core.ErrNotPosted)
	}
	key, ok := acct.ID.Key()
	if !ok || key != tx.Posting.AccountID {
		return acct, tx, core.Inconsistent("reverse", core.ErrAccountMismatch)
	}
	balance := acct.Balance.Sub(tx.Posting.Delta)
	if balance.IsNegative() {
		return acct, tx, core.Inconsistent("reverse", core.ErrNegativeBalance)
	}

	acct.Balance = balance
	tx.Posting = nil
	return acct, tx, nil
}

// Reassign moves the effect of a posted transaction after it was edited:
// the old posting is reversed against oldAcct and the transaction's current
// fields are posted against newAcct. Either both halves apply or neither.
// oldAcct and newAcct may be the same account, in which case both halves
// apply to a single value and the two returned accounts are identical.
func Reassign(tx core.Transaction, oldAcct, newAcct core.Account) (core.Account, core.Account, core.Transaction, error) {
	reversedAcct, detached, err := Reverse(oldAcct, tx)
	if err != nil {
		return oldAcct, newAcct, tx, err
	}

	if reversedAcct.ID.Same(newAcct.ID) {
		postedAcct, posted, err := Post(reversedAcct, detached)
		if err != nil {
			return oldAcct, newAcct, tx, err
		}
		return postedAcct, postedAcct, posted, nil
	}

	postedAcct, posted, err := Post(newAcct, detached)
	if err != nil {
		return oldAcct, newAcct, tx, err
	}
	return reversedAcct, postedAcct, posted, nil
}

// Correct sets the account balance directly, bypassing transaction linkage.
// The returned Adjustment is the audit record callers must persist and log.
func Correct(acct core.Account, balance core.Money, reason string, at time.Time) (core.Account, core.Adjustment, error) {
	if err := balance.Validate(); err != nil {
		return acct, core.Adjustment{}, core.Invalid("balance", err)
	}
	if balance.IsNegative() {
		return acct, core.Adjustment{}, core.Invalid("balance", core.ErrNegativeBalance)
	}
	if reason == "" {
		return acct, core.Adjustment{}, core.Invalid("reason", core.ErrEmptyDescription)
	}
	key, ok := acct.ID.Key()
	if !ok {
		return acct, core.Adjustment{}, core.Invalid("account_id", core.ErrMissingReference)
	}

	adj := core.Adjustment{
		ID:        core.Draft(),
		AccountID: key,
		Previous:  acct.Balance,
		New:       balance,
		Reason:    reason,
		At:        at,
	}
	acct.Balance = balance
	return acct, adj, nil
}

// Replay sums the signed deltas of txs on top of opening, in order.
func Replay(opening core.Money, txs []core.Transaction) (core.Money, error) {
	balance := opening
	for _, tx := range txs {
		delta, err := Delta(tx)
		if err != nil {
			return core.Money{}, err
		}
		balance = balance.Add(delta)
	}
	return balance, nil
}

func checkReferences(acct core.Account, tx core.Transaction) (core.Money, error) {
	delta, err := Delta(tx)
	if err != nil {
		return core.Money{}, err
	}
	switch {
	case tx.UserID == 0:
		return core.Money{}, core.Invalid("user_id", core.ErrMissingReference)
	case tx.CategoryID == 0:
		return core.Money{}, core.Invalid("category_id", core.ErrMissingReference)
	case tx.AccountID == 0:
		return core.Money{}, core.Invalid("account_id", core.ErrMissingReference)
	}
	key, ok := acct.ID.Key()
	if !ok || key != tx.AccountID {
		return core.Money{}, core.NotFound("account", tx.AccountID)
	}
	if acct.UserID != tx.UserID {
		return core.Money{}, core.Invalid("account_id", core.ErrOwnerMismatch)
	}
	return delta, nil
}

func applyDelta(balance, delta core.Money) (core.Money, error) {
	next := balance.Add(delta)
	if next.IsNegative() {
		return core.Money{}, core.Invalid("balance", core.ErrNegativeBalance)
	}
	if err := next.Validate(); err != nil {
		return core.Money{}, core.Invalid("balance", err)
	}
	return next, nil
}
