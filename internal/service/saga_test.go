package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSagaCompensatesCompletedStepsInReverse(t *testing.T) {
	var trail []string
	boom := errors.New("boom")

	step := func(name string, fail bool) SagaStep {
		return SagaStep{
			Name: name,
			Action: func(context.Context) error {
				trail = append(trail, "do:"+name)
				if fail {
					return boom
				}
				return nil
			},
			Compensate: func(context.Context) error {
				trail = append(trail, "undo:"+name)
				return nil
			},
		}
	}

	saga := NewSaga("test", testLogger(), step("a", false), step("b", false), step("c", true), step("d", false))
	_, err := saga.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.EqualError(t, err, "test: c: boom")
	require.Equal(t, []string{"do:a", "do:b", "do:c", "undo:b", "undo:a"}, trail)
}

func TestSagaBestEffortStepsAreSkipped(t *testing.T) {
	var skipped []string
	ran := false

	saga := NewSaga("test", testLogger(),
		SagaStep{Name: "mirror", BestEffort: true, Action: func(context.Context) error { return errors.New("redis down") }},
		SagaStep{Name: "after", Action: func(context.Context) error { ran = true; return nil }},
	).OnSkip(func(step string) { skipped = append(skipped, step) })

	result, err := saga.Run(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, []string{"mirror"}, result.Skipped)
	require.Equal(t, []string{"mirror"}, skipped)
}

func TestSagaJoinsCompensationFailures(t *testing.T) {
	boom := errors.New("boom")
	undoFailed := errors.New("undo failed")

	saga := NewSaga("test", testLogger(),
		SagaStep{
			Name:       "first",
			Action:     func(context.Context) error { return nil },
			Compensate: func(context.Context) error { return undoFailed },
		},
		SagaStep{Name: "second", Action: func(context.Context) error { return boom }},
	)

	_, err := saga.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, undoFailed)
}
