package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestScheduleIntervalRunsJob(t *testing.T) {
	s := New(time.UTC, nil)
	var runs atomic.Int32
	_, err := s.ScheduleInterval("tick", time.Second, time.Second, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("missing deadline")
		}
		runs.Add(1)
		return nil
	})
	assert.Equal(t, err, nil)

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, runs.Load() > 0, true)
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := New(time.UTC, nil)
	_, err := s.ScheduleInterval("never", 0, time.Second, func(context.Context) error { return nil })
	assert.NotEqual(t, err, nil)
}
