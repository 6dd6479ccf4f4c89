// Package recurrence expands recurring transaction templates into the dated
// instances they imply.
//
// Expansion is a pure function of (start date, frequency, end date): it holds
// no state, reads no clock and always yields the same dates for the same
// template, so it is safe to call concurrently and to re-run for idempotent
// synchronization. De-duplicating instances that were already materialized
// is the caller's job.
package recurrence

import (
	"iter"

	"finapp/internal/core"
)

// period is the advance rule of a frequency. Exactly one field is set.
type period struct {
	days   int
	months int
}

var periods = map[core.RecurrenceFrequency]period{
	core.Daily:        {days: 1},
	core.Weekly:       {days: 7},
	core.Fortnightly:  {days: 14},
	core.Monthly:      {months: 1},
	core.Quarterly:    {months: 3},
	core.SemiAnnually: {months: 6},
	core.Annual:       {months: 12},
}

// Schedule is the validated date rule of a recurrence.
type Schedule struct {
	start core.Date
	end   core.Date
	freq  core.RecurrenceFrequency
	p     period
}

// NewSchedule validates a recurrence rule. end may be zero for an
// open-ended schedule.
func NewSchedule(start core.Date, freq core.RecurrenceFrequency, end core.Date) (Schedule, error) {
	if start.IsZero() {
		return Schedule{}, core.Invalid("date", core.ErrZeroDate)
	}
	if freq == "" {
		return Schedule{}, core.Invalid("recurrence_frequency", core.ErrMissingFrequency)
	}
	p, ok := periods[freq]
	if !ok {
		return Schedule{}, core.Invalid("recurrence_frequency", core.ErrInvalidFrequency)
	}
	if !end.IsZero() && end.Before(start) {
		return Schedule{}, core.Invalid("recurrence_end_date", core.ErrEndBeforeStart)
	}
	return Schedule{start: start, end: end, freq: freq, p: p}, nil
}

// ScheduleOf returns the schedule of a recurring template.
func ScheduleOf(tpl core.Transaction) (Schedule, error) {
	if !tpl.Recurring {
		return Schedule{}, core.Invalid("is_recurring", core.ErrNotRecurring)
	}
	return NewSchedule(tpl.Date, tpl.Frequency, tpl.RecurrenceEnd)
}

func (s Schedule) Start() core.Date                    { return s.start }
func (s Schedule) End() core.Date                      { return s.end }
func (s Schedule) Frequency() core.RecurrenceFrequency { return s.freq }

// Bounded reports whether the schedule has an end date.
func (s Schedule) Bounded() bool { return !s.end.IsZero() }

// At returns the date of the k-th instance (k = 0 is the start date).
// Calendar-month periods are computed from the start date rather than from
// the previous instance, so a clamped short month never shifts later
// instances: a schedule starting Jan 31 yields Feb 29 and then Mar 31.
func (s Schedule) At(k int) core.Date {
	if s.p.months > 0 {
		return s.start.AddMonths(k * s.p.months)
	}
	return s.start.AddDays(k * s.p.days)
}

// Dates lazily yields the schedule's dates in order. For a bounded schedule
// the sequence stops at the last date on or before the end date; otherwise
// it is infinite and the consumer decides when to stop.
func (s Schedule) Dates() iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		for k := 0; ; k++ {
			d := s.At(k)
			if s.Bounded() && d.After(s.end) {
				return
			}
			if !yield(d) {
				return
			}
		}
	}
}

// Next returns at most n dates from the start of the schedule.
func (s Schedule) Next(n int) []core.Date {
	if n <= 0 {
		return nil
	}
	out := make([]core.Date, 0, n)
	for d := range s.Dates() {
		out = append(out, d)
		if len(out) == n {
			break
		}
	}
	return out
}

// Until returns every date on or before horizon (and on or before the end
// date, when set).
func (s Schedule) Until(horizon core.Date) []core.Date {
	var out []core.Date
	for d := range s.Dates() {
		if d.After(horizon) {
			break
		}
		out = append(out, d)
	}
	return out
}
