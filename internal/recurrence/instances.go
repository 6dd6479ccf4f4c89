package recurrence

import (
	"iter"

	"finapp/internal/core"
)

// Instance is one dated occurrence of a recurring template.
type Instance struct {
	Index       int
	Date        core.Date
	Transaction core.Transaction
}

// instanceOf builds the draft transaction for the occurrence on date. The
// instance is a plain, non-recurring transaction linked to its template and
// not yet posted.
func instanceOf(tpl core.Transaction, date core.Date) core.Transaction {
	tx := tpl
	tx.ID = core.Draft()
	tx.Date = date
	tx.Recurring = false
	tx.Frequency = ""
	tx.RecurrenceEnd = core.Date{}
	tx.TemplateID = tpl.ID.Int64()
	tx.Posting = nil
	return tx
}

// Expand lazily yields (date, instance) pairs for a recurring template,
// starting with the template's own date.
func Expand(tpl core.Transaction) (iter.Seq2[core.Date, core.Transaction], error) {
	s, err := ScheduleOf(tpl)
	if err != nil {
		return nil, err
	}
	return func(yield func(core.Date, core.Transaction) bool) {
		for d := range s.Dates() {
			if !yield(d, instanceOf(tpl, d)) {
				return
			}
		}
	}, nil
}

// Next materializes at most n instances from the start of the schedule.
func Next(tpl core.Transaction, n int) ([]Instance, error) {
	s, err := ScheduleOf(tpl)
	if err != nil {
		return nil, err
	}
	return instances(tpl, s.Next(n)), nil
}

// Until materializes every instance dated on or before horizon.
func Until(tpl core.Transaction, horizon core.Date) ([]Instance, error) {
	s, err := ScheduleOf(tpl)
	if err != nil {
		return nil, err
	}
	if horizon.IsZero() {
		return nil, core.Invalid("horizon", core.ErrZeroDate)
	}
	return instances(tpl, s.Until(horizon)), nil
}

// ExpandRecurrence materializes a template up to horizonOrEnd. A zero
// horizon means "up to the template's end date", which is only valid for
// bounded templates; otherwise the earlier of the two dates wins.
func ExpandRecurrence(tpl core.Transaction, horizonOrEnd core.Date) ([]Instance, error) {
	s, err := ScheduleOf(tpl)
	if err != nil {
		return nil, err
	}
	horizon := horizonOrEnd
	if horizon.IsZero() {
		if !s.Bounded() {
			return nil, core.Invalid("horizon", core.ErrUnbounded)
		}
		horizon = s.End()
	}
	return instances(tpl, s.Until(horizon)), nil
}

func instances(tpl core.Transaction, dates []core.Date) []Instance {
	out := make([]Instance, len(dates))
	for i, d := range dates {
		out[i] = Instance{Index: i, Date: d, Transaction: instanceOf(tpl, d)}
	}
	return out
}
