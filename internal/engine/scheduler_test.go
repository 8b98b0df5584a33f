package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DoBoundsConcurrency(t *testing.T) {
	s := NewScheduler(2)
	var running, peak atomic.Int32

	for i := 0; i < 8; i++ {
		_, err := s.Go(context.Background(), string(rune('a'+i)), func(ctx context.Context) error {
			return s.Do(ctx, func(ctx context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		})
		require.NoError(t, err)
	}

	require.NoError(t, s.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestScheduler_DoReturnsOnDeadline(t *testing.T) {
	s := NewScheduler(1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Do(ctx, func(context.Context) error {
		<-release
		return nil
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestScheduler_TaskLifecycle(t *testing.T) {
	s := NewScheduler(1)
	boom := errors.New("boom")

	task, err := s.Go(context.Background(), "t1", func(ctx context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, task.Err(), boom)

	_, ok := s.Task("t1")
	assert.False(t, ok)
}

func TestScheduler_ShutdownCancelsOnDeadline(t *testing.T) {
	s := NewScheduler(1)
	task, err := s.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
	assert.ErrorIs(t, task.Err(), context.Canceled)

	_, err = s.Go(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}
