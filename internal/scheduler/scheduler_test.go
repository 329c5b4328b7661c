package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Othernet-Project/fsal/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitWaitReturnsJobError(t *testing.T) {
	s := scheduler.New(0, nil)
	defer s.Stop()

	wantErr := errors.New("boom")
	err := s.SubmitWait("fails", func(ctx context.Context) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestJobsRunOneAtATime(t *testing.T) {
	s := scheduler.New(4, nil)
	defer s.Stop()

	var concurrent int32
	var maxConcurrent int32
	start := func(ctx context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		if n > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, n)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil
	}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		s.Submit("job", start)
	}
	go func() {
		_ = s.SubmitWait("last", func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs to drain")
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxConcurrent)), 1)
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := scheduler.New(0, nil)

	started := make(chan struct{})
	jobErr := make(chan error, 1)
	go func() {
		jobErr <- s.SubmitWait("long", func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	s.Stop()

	select {
	case err := <-jobErr:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("job did not observe cancellation")
	}
}
