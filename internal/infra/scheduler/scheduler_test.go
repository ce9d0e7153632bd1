package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"password_expiry_notifier/internal/app"
	"password_expiry_notifier/internal/infra/scheduler"
)

type countingRunner struct {
	calls       atomic.Int32
	err         error
	hadDeadline atomic.Bool
}

func (r *countingRunner) Run(ctx context.Context) (*app.RunSummary, error) {
	r.calls.Add(1)
	_, ok := ctx.Deadline()
	r.hadDeadline.Store(ok)
	if r.err != nil {
		return nil, r.err
	}
	return &app.RunSummary{RunID: uuid.New()}, nil
}

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := scheduler.NewNotificationScheduler(&countingRunner{}, logger, "every morning", time.Minute)
	assert.Error(t, s.Start())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := &countingRunner{}
	s := scheduler.NewNotificationScheduler(runner, logger, "@every 1s", time.Minute)
	require.NoError(t, s.Start())
	defer s.Stop()

	last, err := s.Last()
	assert.Nil(t, last)
	assert.NoError(t, err)
	assert.False(t, s.Next().IsZero())

	assert.Eventually(t, func() bool {
		last, _ := s.Last()
		return last != nil
	}, 3*time.Second, 50*time.Millisecond)
	assert.True(t, runner.hadDeadline.Load())
}

func TestScheduler_LogsRunErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	runner := &countingRunner{err: errors.New("directory unreachable")}
	s := scheduler.NewNotificationScheduler(runner, logger, "@every 1s", 0)
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
		}
	}
	assert.True(t, logged)
	assert.False(t, runner.hadDeadline.Load())
	_, lastErr := s.Last()
	assert.EqualError(t, lastErr, "directory unreachable")
}
