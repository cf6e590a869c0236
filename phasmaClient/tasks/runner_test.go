package tasks

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
)

func fastRetry() *perrors.RetryConfig {
	cfg := perrors.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	return cfg
}

func TestSubmit(t *testing.T) {
	r := NewRunner(Options{Retry: fastRetry()}, zerolog.Nop())

	var runs atomic.Int32
	require.True(t, r.Submit("ok", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	r.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestSubmitRetriesRetryableErrors(t *testing.T) {
	r := NewRunner(Options{Retry: fastRetry()}, zerolog.Nop())

	var runs atomic.Int32
	r.Submit("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return perrors.NewDatabaseError("database is locked", nil)
		}
		return nil
	})
	r.Wait()
	assert.Equal(t, int32(3), runs.Load())
}

func TestSubmitDoesNotRetryPermanentErrors(t *testing.T) {
	r := NewRunner(Options{Retry: fastRetry()}, zerolog.Nop())

	var runs atomic.Int32
	r.Submit("broken", func(context.Context) error {
		runs.Add(1)
		return errors.New("malformed record")
	})
	r.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestJobTimeout(t *testing.T) {
	r := NewRunner(Options{JobTimeout: 20 * time.Millisecond, Retry: fastRetry()}, zerolog.Nop())

	var sawDeadline atomic.Bool
	r.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	r.Wait()
	assert.True(t, sawDeadline.Load())
}

func TestCloseRejectsNewJobs(t *testing.T) {
	r := NewRunner(Options{}, zerolog.Nop())
	r.Close()
	r.Close()
	assert.False(t, r.Submit("late", func(context.Context) error { return nil }))
	assert.False(t, r.Schedule(context.Background(), "late", time.Second, func(context.Context) error { return nil }))
}

func TestSchedule(t *testing.T) {
	clk := clock.NewMock()
	r := NewRunner(Options{Clock: clk, Retry: fastRetry()}, zerolog.Nop())

	var runs atomic.Int32
	require.True(t, r.Schedule(context.Background(), "refresh", time.Minute, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	clk.Add(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)

	r.Close()
	clk.Add(5 * time.Minute)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestFailureLogLevelFollowsSeverity(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		level string
	}{
		{"low severity", perrors.NewValidationError("bad amount"), `"level":"warn"`},
		{"high severity", perrors.NewTransactionError("s", "sweep failed", nil), `"level":"error"`},
		{"plain error", errors.New("malformed record"), `"level":"error"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := NewRunner(Options{Retry: fastRetry()}, zerolog.New(&buf))
			r.Submit("job", func(context.Context) error { return tc.err })
			r.Close()
			assert.Contains(t, buf.String(), tc.level)
			assert.Contains(t, buf.String(), "background job failed")
		})
	}
}
