package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/student_portal/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingSweeper struct {
	runs        atomic.Int64
	hadDeadline atomic.Bool
	err         error
}

func (s *countingSweeper) SweepOverdue(ctx context.Context) (service.SweepResult, error) {
	s.runs.Add(1)
	if _, ok := ctx.Deadline(); ok {
		s.hadDeadline.Store(true)
	}
	return service.SweepResult{}, s.err
}

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, time.Second, zap.NewNop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.True(t, sweeper.hadDeadline.Load())

	runs := sweeper.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runs, sweeper.runs.Load())
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	s := NewScheduler(sweeper, time.Hour, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return sweeper.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	s.wg.Wait()
	s.Stop()

	assert.Equal(t, int64(1), sweeper.runs.Load())
}
