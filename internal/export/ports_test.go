package export

import (
	"strings"
	"testing"
	"time"

	"finapp/internal/amqp"
	"finapp/internal/core"
)

func TestRowFromEvent(t *testing.T) {
	ev := amqp.NewLedgerEvent(amqp.EventTransactionPosted, 7)
	ev.AccountID = 3
	ev.TransactionID = 11
	ev.Type = core.Expense
	ev.Date = core.NewDate(2024, 2, 29)
	ev.Description = "rent"
	ev.Amount = core.MustParseMoney("1200").Neg()
	ev.Balance = core.MustParseMoney("300.5")

	cells := RowFromEvent(ev).Cells()
	if len(cells) != len(Header()) {
		t.Fatalf("got %d cells for %d columns", len(cells), len(Header()))
	}
	want := map[int]string{
		0: ev.ID, 1: "transaction.posted", 3: "2024-02-29", 4: "7", 5: "3", 6: "11",
		7: "", 8: "EXPENSE", 9: "rent", 10: "-1200.00", 11: "300.50", 12: "",
	}
	for i, w := range want {
		if cells[i] != w {
			t.Errorf("column %s = %q, want %q", Header()[i], cells[i], w)
		}
	}
}

func TestRowFromEvent_DateFallsBackToOccurrence(t *testing.T) {
	ev := amqp.NewLedgerEvent(amqp.EventBalanceCorrected, 1)
	ev.OccurredAt = time.Date(2025, 3, 4, 22, 15, 0, 0, time.UTC)
	ev.Reason = "bank fee"

	r := RowFromEvent(ev)
	if r.Date != core.NewDate(2025, 3, 4) {
		t.Fatalf("expected occurrence day, got %s", r.Date)
	}
	if got := r.Cells()[2]; !strings.HasPrefix(got, "2025-03-04T22:15:00") {
		t.Fatalf("unexpected timestamp cell %q", got)
	}
}
