package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finapp/internal/core"
)

// EventKind names a committed ledger mutation.
type EventKind string

const (
	EventTransactionPosted   EventKind = "transaction.posted"
	EventTransactionReversed EventKind = "transaction.reversed"
	EventBalanceCorrected    EventKind = "balance.corrected"
	EventGoalContributed     EventKind = "goal.contributed"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventTransactionPosted, EventTransactionReversed, EventBalanceCorrected, EventGoalContributed:
		return true
	}
	return false
}

var (
	ErrUnknownEventKind = errors.New("unknown ledger event kind")
	ErrMissingEventID   = errors.New("ledger event id must be a uuid")
)

// LedgerEvent is published after a ledger mutation commits. It carries
// enough of the committed state for consumers to act without reading the
// database. Amount is the signed balance delta for transaction events and
// the contribution for goal events.
type LedgerEvent struct {
	ID            string               `json:"id"`
	Kind          EventKind            `json:"kind"`
	OccurredAt    time.Time            `json:"occurred_at"`
	UserID        int64                `json:"user_id"`
	AccountID     int64                `json:"account_id,omitempty"`
	TransactionID int64                `json:"transaction_id,omitempty"`
	GoalID        int64                `json:"goal_id,omitempty"`
	Type          core.TransactionType `json:"type,omitempty"`
	Date          core.Date            `json:"date"`
	Description   string               `json:"description,omitempty"`
	Amount        core.Money           `json:"amount"`
	Balance       core.Money           `json:"balance"`
	Reason        string               `json:"reason,omitempty"`
}

// NewLedgerEvent creates an event of kind with a fresh id.
func NewLedgerEvent(kind EventKind, userID int64) *LedgerEvent {
	return &LedgerEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		UserID:     userID,
	}
}

// TransactionEvent describes a posting or reversal of tx that left acct
// with its current balance.
func TransactionEvent(kind EventKind, tx core.Transaction, delta core.Money, acct core.Account) *LedgerEvent {
	ev := NewLedgerEvent(kind, tx.UserID)
	ev.AccountID = acct.ID.Int64()
	ev.TransactionID = tx.ID.Int64()
	ev.Type = tx.Type
	ev.Date = tx.Date
	ev.Description = tx.Description
	ev.Amount = delta
	ev.Balance = acct.Balance
	return ev
}

func (e *LedgerEvent) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return ErrMissingEventID
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, e.Kind)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
