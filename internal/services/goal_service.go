package services

import (
	"context"
	"time"

	"finapp/internal/amqp"
	"finapp/internal/core"
	"finapp/internal/goals"
	"finapp/internal/log"
	"finapp/internal/storage"
)

type GoalService struct {
	unit
	clock core.Clock
}

func NewGoalService(store storage.Store, publisher EventPublisher, clock core.Clock, logger *log.Logger) *GoalService {
	if clock == nil {
		clock = core.SystemClock(time.UTC)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GoalService{
		unit: unit{
			store:     store,
			publisher: publisher,
			logger:    logger.WithComponent(log.ComponentGoal),
		},
		clock: clock,
	}
}

func (s *GoalService) CreateGoal(ctx context.Context, in core.CreateGoalInput) (core.Goal, error) {
	if err := in.Validate(s.clock.Today()); err != nil {
		return core.Goal{}, err
	}
	var goal core.Goal
	err := s.run(ctx, "create goal", func(ctx context.Context, tx storage.Tx, _ *work) error {
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		var err error
		goal, err = tx.CreateGoal(ctx, in.Goal())
		return err
	})
	if err != nil {
		return core.Goal{}, err
	}
	s.logger.InfoContext(ctx, "Created goal", log.FieldGoalID, goal.ID.Int64(), log.FieldAmount, goal.Target.String())
	return goal, nil
}

// ContributeToGoal adds amount to the goal's progress, clamped at the
// target.
func (s *GoalService) ContributeToGoal(ctx context.Context, goalID int64, amount core.Money) (core.Goal, error) {
	var goal core.Goal
	var applied core.Money
	err := s.run(ctx, "contribute to goal", func(ctx context.Context, tx storage.Tx, w *work) error {
		current, err := tx.GetGoal(ctx, goalID)
		if err != nil {
			return err
		}
		if goal, err = goals.Contribute(current, amount); err != nil {
			return err
		}
		if err := tx.UpdateGoal(ctx, goal); err != nil {
			return err
		}
		applied = goal.Current.Sub(current.Current)

		ev := amqp.NewLedgerEvent(amqp.EventGoalContributed, goal.UserID)
		ev.GoalID = goal.ID.Int64()
		ev.Description = goal.Name
		ev.Amount = applied
		ev.Balance = goal.Current
		w.emit(ev)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Goal contribution failed",
			log.NewFields().WithOperation(log.OpContribute).WithError(err).WithErrorType(errorType(err)).ToSlice()...)
		return core.Goal{}, err
	}
	s.logger.InfoContext(ctx, "Contributed to goal",
		log.FieldOperation, log.OpContribute,
		log.FieldGoalID, goalID,
		log.FieldAmount, applied.String(),
		log.FieldBalance, goal.Current.String(),
	)
	return goal, nil
}

// Progress is a goal with its derived progress figures.
type Progress struct {
	Goal       core.Goal
	Percentage float64
	Achieved   bool
	Remaining  core.Money
}

func (s *GoalService) GoalProgress(ctx context.Context, goalID int64) (Progress, error) {
	var goal core.Goal
	err := s.run(ctx, "goal progress", func(ctx context.Context, tx storage.Tx, _ *work) error {
		var err error
		goal, err = tx.GetGoal(ctx, goalID)
		return err
	})
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Goal:       goal,
		Percentage: goals.ProgressPercentage(goal),
		Achieved:   goals.IsAchieved(goal),
		Remaining:  goals.Remaining(goal),
	}, nil
}
