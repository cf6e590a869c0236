// Package tasks runs side effects that must not decide the outcome of the
// operation that triggered them.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
)

const defaultJobTimeout = 30 * time.Second

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Runner executes background jobs with retries and a per-job timeout.
// Failures are logged and counted, never returned to the submitter.
type Runner struct {
	jobTimeout time.Duration
	retry      *perrors.RetryConfig
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Options configures a Runner.
type Options struct {
	JobTimeout time.Duration
	Retry      *perrors.RetryConfig
	Clock      clock.Clock
	Metrics    *metrics.Metrics
}

// NewRunner creates a Runner.
func NewRunner(opts Options, logger zerolog.Logger) *Runner {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.Retry == nil {
		opts.Retry = perrors.DefaultRetryConfig()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Runner{
		jobTimeout: opts.JobTimeout,
		retry:      opts.Retry,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		stopCh:     make(chan struct{}),
		logger:     logger.With().Str("component", "task_runner").Logger(),
	}
}

// Submit runs job in the background. It returns false once the runner is closed.
func (r *Runner) Submit(name string, job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn().Str("job", name).Msg("runner closed, job dropped")
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runOnce(name, job)
	}()
	return true
}

// Schedule runs job every interval until ctx is done or the runner closes.
// The first run happens immediately.
func (r *Runner) Schedule(ctx context.Context, name string, interval time.Duration, job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	ticker := r.clock.Ticker(interval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()

		r.runOnce(name, job)
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.runOnce(name, job)
			}
		}
	}()
	return true
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting jobs, ends scheduled loops and waits for running jobs.
// Safe to call multiple times.
func (r *Runner) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.stopCh)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) runOnce(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.jobTimeout)
	defer cancel()

	retry := *r.retry
	retry.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.logger.Warn().Err(err).Str("job", name).Int("attempt", attempt).Dur("wait", wait).Msg("background job failed, retrying")
	}
	err := perrors.RetryWithConfig(ctx, func() error { return job(ctx) }, &retry)
	r.metrics.BackgroundJob(name, err)
	if err != nil {
		event := r.logger.Error()
		switch perrors.GetSeverity(err) {
		case perrors.SeverityMedium, perrors.SeverityLow, perrors.SeverityInfo:
			event = r.logger.Warn()
		}
		event.Err(err).Str("job", name).Msg("background job failed")
		return
	}
	r.logger.Debug().Str("job", name).Msg("background job done")
}
