// Package export mirrors committed ledger events into an external sink.
package export

import (
	"context"
	"errors"
	"strconv"
	"time"

	"finapp/internal/amqp"
	"finapp/internal/core"
)

var ErrEmptyEvent = errors.New("export row has no event id")

// Row is a ledger event flattened for tabular sinks.
type Row struct {
	EventID       string
	Kind          string
	OccurredAt    time.Time
	Date          core.Date
	UserID        int64
	AccountID     int64
	TransactionID int64
	GoalID        int64
	Type          string
	Description   string
	Amount        core.Money
	Balance       core.Money
	Reason        string
}

// Exporter appends a row and returns a sink-specific reference to it.
// Exporting a row whose EventID was already exported must not duplicate it.
type Exporter interface {
	Export(ctx context.Context, r Row) (ref string, err error)
}

// RowFromEvent flattens ev. Events without a business date use the day
// they occurred.
func RowFromEvent(ev *amqp.LedgerEvent) Row {
	date := ev.Date
	if date.IsZero() {
		date = core.DateOf(ev.OccurredAt)
	}
	return Row{
		EventID:       ev.ID,
		Kind:          string(ev.Kind),
		OccurredAt:    ev.OccurredAt,
		Date:          date,
		UserID:        ev.UserID,
		AccountID:     ev.AccountID,
		TransactionID: ev.TransactionID,
		GoalID:        ev.GoalID,
		Type:          string(ev.Type),
		Description:   ev.Description,
		Amount:        ev.Amount,
		Balance:       ev.Balance,
		Reason:        ev.Reason,
	}
}

// Header names the columns produced by Cells.
func Header() []string {
	return []string{"Event", "Kind", "Occurred", "Date", "User", "Account", "Transaction", "Goal", "Type", "Description", "Amount", "Balance", "Reason"}
}

// Cells renders r in Header order. Zero references render as empty cells.
func (r Row) Cells() []string {
	return []string{
		r.EventID,
		r.Kind,
		r.OccurredAt.UTC().Format(time.RFC3339),
		r.Date.String(),
		ref(r.UserID),
		ref(r.AccountID),
		ref(r.TransactionID),
		ref(r.GoalID),
		r.Type,
		r.Description,
		r.Amount.String(),
		r.Balance.String(),
		r.Reason,
	}
}

func (r Row) Validate() error {
	if r.EventID == "" {
		return ErrEmptyEvent
	}
	return nil
}

func ref(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
