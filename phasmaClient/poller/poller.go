// Package poller watches an ephemeral address until a payment lands on it.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 180 * time.Second
)

// CancelFunc stops a watch. It may be called any number of times.
type CancelFunc func()

// Config configures a Poller.
type Config struct {
	Mint     solana.PublicKey
	Interval time.Duration
	Timeout  time.Duration
	// CallTimeout bounds each balance query. Defaults to Interval.
	CallTimeout time.Duration
}

// Poller polls holding-account balances on a fixed interval.
type Poller struct {
	gateway     common.Gateway
	mint        solana.PublicKey
	interval    time.Duration
	timeout     time.Duration
	callTimeout time.Duration
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New creates a Poller. Zero durations fall back to the defaults.
func New(gateway common.Gateway, cfg Config, clk clock.Clock, m *metrics.Metrics, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = cfg.Interval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		gateway:     gateway,
		mint:        cfg.Mint,
		interval:    cfg.Interval,
		timeout:     cfg.Timeout,
		callTimeout: cfg.CallTimeout,
		clock:       clk,
		metrics:     m,
		logger:      logger.With().Str("component", "poller").Logger(),
	}
}

// watch is the settle-once state of one Watch call.
type watch struct {
	mu      sync.Mutex
	settled bool
	cancel  context.CancelFunc
}

// settle marks the watch finished and reports whether this call did it.
func (w *watch) settle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.settled {
		return false
	}
	w.settled = true
	return true
}

// Watch polls the holding account of owner until it holds at least expected
// units or the timeout elapses. Exactly one of onReceived and onTimeout runs,
// unless the watch is cancelled first. Once the returned CancelFunc returns,
// no callback starts. Cancelling ctx stops the watch without a callback.
func (p *Poller) Watch(
	ctx context.Context,
	owner solana.PublicKey,
	expected uint64,
	onReceived func(amount uint64),
	onTimeout func(),
) (CancelFunc, error) {
	account, err := svm.HoldingAccount(owner, p.mint)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	// Timers are armed before the goroutine starts so that a mock clock
	// advanced right after Watch returns is observed.
	ticker := p.clock.Ticker(p.interval)
	deadline := p.clock.Timer(p.timeout)

	logger := p.logger.With().
		Str("address", owner.String()).
		Uint64("expected", expected).
		Logger()
	logger.Debug().Dur("interval", p.interval).Dur("timeout", p.timeout).Msg("watching for payment")

	go func() {
		defer ticker.Stop()
		defer deadline.Stop()
		defer cancel()

		for {
			select {
			case <-watchCtx.Done():
				w.settle()
				return

			case <-deadline.C:
				if watchCtx.Err() == nil && w.settle() {
					p.metrics.PollTick("timeout")
					logger.Info().Msg("payment poll timed out")
					onTimeout()
				}
				return

			case <-ticker.C:
				callCtx, callCancel := context.WithTimeout(watchCtx, p.callTimeout)
				balance, err := p.gateway.GetTokenAccountBalance(callCtx, account)
				callCancel()
				switch {
				case errors.Is(err, common.ErrAccountNotFound):
					p.metrics.PollTick("not_found")
					continue
				case err != nil:
					if watchCtx.Err() != nil {
						continue
					}
					p.metrics.PollTick("error")
					logger.Warn().Err(err).Msg("balance poll failed")
					continue
				case balance.Amount < expected:
					p.metrics.PollTick("empty")
					continue
				}

				if watchCtx.Err() == nil && w.settle() {
					p.metrics.PollTick("funded")
					logger.Info().Uint64("amount", balance.Amount).Msg("payment received")
					onReceived(balance.Amount)
				}
				return
			}
		}
	}()

	return func() {
		if w.settle() {
			logger.Debug().Msg("payment watch cancelled")
		}
		w.cancel()
	}, nil
}
