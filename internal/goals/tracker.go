// Package goals tracks progress of savings goals towards their target.
package goals

import (
	"github.com/shopspring/decimal"

	"finapp/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Contribute adds amount to the goal's current amount, clamped at the
// target. Contributions never reduce progress.
func Contribute(goal core.Goal, amount core.Money) (core.Goal, error) {
	if err := amount.ValidatePositive(); err != nil {
		return goal, core.Invalid("amount", err)
	}
	if err := goal.Target.ValidatePositive(); err != nil {
		return goal, core.Invalid("target_amount", err)
	}
	goal.Current = goal.Current.Add(amount).Min(goal.Target)
	return goal, nil
}

// ProgressPercentage returns current/target*100 in [0, 100]. A goal without
// a positive target reports 0.
func ProgressPercentage(goal core.Goal) float64 {
	if !goal.Target.IsPositive() {
		return 0
	}
	if IsAchieved(goal) {
		return 100
	}
	pct := goal.Current.Decimal().Mul(hundred).Div(goal.Target.Decimal())
	if pct.IsNegative() {
		return 0
	}
	return pct.InexactFloat64()
}

// IsAchieved reports whether the goal has reached its target.
func IsAchieved(goal core.Goal) bool {
	return goal.Target.IsPositive() && goal.Current.GreaterThanOrEqual(goal.Target)
}

// Remaining is the amount still needed to reach the target.
func Remaining(goal core.Goal) core.Money {
	left := goal.Target.Sub(goal.Current)
	if left.IsNegative() {
		return core.ZeroMoney()
	}
	return left
}
