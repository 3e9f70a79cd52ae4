package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stopFunc adapts a function to Stoppable for the tests below.
type stopFunc func(ctx context.Context) error

func (f stopFunc) Stop(ctx context.Context) error { return f(ctx) }

func TestStopWithTimeoutReturnsServiceResult(t *testing.T) {
	var calls int32
	svc := stopFunc(func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, StopWithTimeout(svc, time.Second))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStopWithTimeoutPropagatesServiceError(t *testing.T) {
	wantErr := errors.New("listener already closed")
	svc := stopFunc(func(ctx context.Context) error { return wantErr })

	assert.ErrorIs(t, StopWithTimeout(svc, time.Second), wantErr)
}

func TestStopWithTimeoutExpiresForStuckService(t *testing.T) {
	svc := stopFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := StopWithTimeout(svc, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStopWithTimeoutPassesDeadlineToService(t *testing.T) {
	svc := stopFunc(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok, "Stop should receive a deadline-bearing context")
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return nil
	})

	require.NoError(t, StopWithTimeout(svc, time.Minute))
}
