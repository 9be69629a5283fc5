package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// SagaStep is one write in a multi-store operation.
type SagaStep struct {
	Name   string
	Action func(ctx context.Context) error
	// Compensate undoes Action after a later authoritative step fails. May be nil.
	Compensate func(ctx context.Context) error
	// BestEffort steps log failures instead of aborting; reconciliation repairs them.
	BestEffort bool
}

// SagaResult reports which best-effort steps failed.
type SagaResult struct {
	Skipped []string
}

// Saga runs steps in order and compensates completed steps in reverse when an authoritative step fails.
type Saga struct {
	name   string
	steps  []SagaStep
	logger zerolog.Logger
	// onSkip is called with the step name for each failed best-effort step.
	onSkip func(step string)
}

// NewSaga builds a saga from its steps.
func NewSaga(name string, logger zerolog.Logger, steps ...SagaStep) *Saga {
	return &Saga{name: name, steps: steps, logger: logger.With().Str("saga", name).Logger()}
}

// OnSkip registers a hook for failed best-effort steps.
func (s *Saga) OnSkip(fn func(step string)) *Saga {
	s.onSkip = fn
	return s
}

// Run executes the saga.
func (s *Saga) Run(ctx context.Context) (SagaResult, error) {
	var (
		result    SagaResult
		completed []SagaStep
	)

	for _, step := range s.steps {
		err := step.Action(ctx)
		if err == nil {
			completed = append(completed, step)
			continue
		}

		if step.BestEffort {
			s.logger.Warn().Err(err).Str("step", step.Name).Msg("best-effort saga step failed")
			result.Skipped = append(result.Skipped, step.Name)
			if s.onSkip != nil {
				s.onSkip(step.Name)
			}
			continue
		}

		return result, s.compensate(ctx, completed, fmt.Errorf("%s: %s: %w", s.name, step.Name, err))
	}
	return result, nil
}

func (s *Saga) compensate(ctx context.Context, completed []SagaStep, cause error) error {
	errs := []error{cause}
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error().Err(err).Str("step", step.Name).Msg("saga compensation failed")
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}
