// Package ghost runs anonymous claim-later receive sessions: a one-time
// keypair is generated and persisted, its address is published over the
// near-field channel, the ledger is polled until the funds land, and the
// funds are later swept to the connected wallet.
package ghost

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/keystore"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/poller"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

var errSessionReset = errors.New("session was reset")

// Config holds the token the sessions receive.
type Config struct {
	Mint     solana.PublicKey
	Decimals uint8
}

// Dependencies are the collaborators of a Receiver.
type Dependencies struct {
	Keys    *keystore.Store
	Poller  Watcher
	Sweeper SweepBuilder
	Gateway common.Gateway
	Channel nearfield.Publisher
	Signer  Signer
	History HistoryAppender
	Tasks   *tasks.Runner
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Receiver drives one ghost receive session at a time.
type Receiver struct {
	cfg  Config
	deps Dependencies

	logger zerolog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	stopPoll   poller.CancelFunc
	published  bool
	fee        *common.FeeContext
	observer   func(State)
}

// NewReceiver creates an idle Receiver.
func NewReceiver(cfg Config, deps Dependencies, logger zerolog.Logger) *Receiver {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Receiver{
		cfg:    cfg,
		deps:   deps,
		state:  Idle{},
		logger: logger.With().Str("component", "ghost_receiver").Logger(),
	}
}

// OnStateChange registers fn to be called after every transition. fn runs
// with the receiver locked and must not call back into it.
func (r *Receiver) OnStateChange(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// State returns the current state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start generates a keypair for amount, persists it, publishes its pay URL
// and starts polling. It returns once polling has begun.
func (r *Receiver) Start(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return perrors.NewValidationError("amount must be positive")
	}
	if _, ok := r.deps.Signer.PublicKey(); !ok {
		return perrors.NewValidationError("no wallet connected to receive the funds")
	}
	expected, err := utils.ToRaw(amount, r.cfg.Decimals)
	if err != nil {
		return perrors.NewValidationError(err.Error())
	}
	if expected == 0 {
		return perrors.NewValidationError(fmt.Sprintf("amount %s is below the smallest token unit", amount))
	}

	r.mu.Lock()
	if _, idle := r.state.(Idle); !idle {
		state := r.state.Name()
		r.mu.Unlock()
		return perrors.NewInvalidStateError("start", state)
	}
	r.generation++
	gen := r.generation
	r.setStateLocked(Generating{Amount: amount})
	r.mu.Unlock()

	kp, err := r.deps.Keys.Generate()
	if err != nil {
		return r.failStart(gen, "", perrors.NewInternalError("failed to generate keypair", err))
	}
	payment := keystore.NewPayment(kp, amount, r.deps.Clock.Now())
	if err := r.deps.Keys.Save(ctx, payment); err != nil {
		return r.failStart(gen, "", err)
	}
	logger := r.logger.With().Str("session", payment.ID).Str("address", kp.PublicKey.String()).Logger()
	r.deps.Metrics.GhostSession("started")

	if !r.transition(gen, Writing{SessionID: payment.ID, Address: kp.PublicKey, Amount: amount}) {
		return errSessionReset
	}

	url := nearfield.BuildPayURL(kp.PublicKey, amount, r.cfg.Mint, nearfield.GhostLabel)
	if err := r.deps.Channel.Publish(ctx, url); err != nil {
		r.deps.Metrics.GhostSession("publish_failed")
		logger.Warn().Err(err).Msg("failed to publish pay request")
		return r.failStart(gen, payment.ID, err)
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		r.release(ctx)
		return errSessionReset
	}
	r.published = true
	r.setStateLocked(Polling{SessionID: payment.ID, Address: kp.PublicKey, Amount: amount, Since: r.deps.Clock.Now()})
	r.mu.Unlock()
	logger.Info().Str("amount", amount.String()).Msg("ghost session published, polling for funds")

	stop, err := r.deps.Poller.Watch(
		context.WithoutCancel(ctx),
		kp.PublicKey,
		expected,
		func(raw uint64) { r.onReceived(gen, payment, raw) },
		func() { r.onTimeout(gen, payment) },
	)
	if err != nil {
		r.releaseIfCurrent(ctx, gen)
		return r.failStart(gen, payment.ID, err)
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		stop()
		return errSessionReset
	}
	r.stopPoll = stop
	r.mu.Unlock()
	return nil
}

func (r *Receiver) onReceived(gen uint64, payment keystore.EphemeralPayment, raw uint64) {
	ctx := context.Background()
	logger := r.logger.With().Str("session", payment.ID).Logger()

	// The record is updated even for a reset session so the funds stay claimable.
	if err := r.deps.Keys.Update(ctx, payment.ID, keystore.Received(raw)); err != nil {
		logger.Error().Err(err).Msg("failed to mark session received")
	}
	r.deps.Metrics.GhostSession("received")

	if !r.transition(gen, Received{
		SessionID: payment.ID,
		Address:   payment.PublicAddress,
		Amount:    utils.FromRaw(raw, r.cfg.Decimals),
		Raw:       raw,
	}) {
		return
	}
	logger.Info().Uint64("raw", raw).Msg("ghost payment received")
	r.releaseIfCurrent(ctx, gen)

	r.deps.Tasks.Submit("ghost_prefetch_fee", func(ctx context.Context) error {
		fee, err := r.deps.Gateway.GetLatestFeeContext(ctx)
		if err != nil {
			return err
		}
		r.mu.Lock()
		if r.generation == gen {
			r.fee = &fee
		}
		r.mu.Unlock()
		return nil
	})
}

func (r *Receiver) onTimeout(gen uint64, payment keystore.EphemeralPayment) {
	r.deps.Metrics.GhostSession("timeout")
	err := perrors.NewTimeoutError(payment.ID, "no payment received before the timeout")
	if r.transition(gen, Failed{SessionID: payment.ID, Err: err}) {
		r.releaseIfCurrent(context.Background(), gen)
	}
}

// Claim sweeps a received session to the connected wallet. id selects the
// record; an empty id claims the newest claimable one. Only allowed in the
// received and failed states.
func (r *Receiver) Claim(ctx context.Context, id string) (Done, error) {
	destination, ok := r.deps.Signer.PublicKey()
	if !ok {
		return Done{}, perrors.NewValidationError("no wallet connected to receive the funds")
	}

	r.mu.Lock()
	if !canClaim(r.state) {
		state := r.state.Name()
		r.mu.Unlock()
		return Done{}, perrors.NewInvalidStateError("claim", state)
	}
	gen := r.generation
	r.mu.Unlock()

	var (
		record keystore.EphemeralPayment
		err    error
	)
	if id != "" {
		record, err = r.deps.Keys.Get(ctx, id)
	} else {
		record, err = r.deps.Keys.LatestClaimable(ctx)
	}
	if err != nil {
		r.deps.Metrics.Claim("single", err, 0)
		return Done{}, err
	}

	r.mu.Lock()
	if r.generation != gen || !canClaim(r.state) {
		state := r.state.Name()
		r.mu.Unlock()
		return Done{}, perrors.NewInvalidStateError("claim", state)
	}
	fee := r.fee
	r.setStateLocked(Claiming{SessionID: record.ID})
	r.mu.Unlock()

	done, err := r.sweep(ctx, record, destination, fee)
	if err != nil {
		r.deps.Metrics.Claim("single", err, 0)
		if uerr := r.deps.Keys.Update(context.WithoutCancel(ctx), record.ID, keystore.WithStatus(keystore.StatusFailed)); uerr != nil {
			r.logger.Error().Err(uerr).Str("session", record.ID).Msg("failed to mark claim failed")
		}
		r.transition(gen, Failed{SessionID: record.ID, Err: err})
		return Done{}, err
	}

	r.transition(gen, done)
	return done, nil
}

func canClaim(s State) bool {
	switch s.(type) {
	case Received, Failed:
		return true
	}
	return false
}

func (r *Receiver) sweep(ctx context.Context, record keystore.EphemeralPayment, destination solana.PublicKey, fee *common.FeeContext) (Done, error) {
	logger := r.logger.With().Str("session", record.ID).Logger()

	if err := r.deps.Keys.Update(ctx, record.ID, keystore.WithStatus(keystore.StatusClaiming)); err != nil {
		return Done{}, err
	}

	sw, err := r.deps.Sweeper.Build(ctx, record.PublicAddress, destination, fee)
	if err != nil {
		return Done{}, perrors.WrapPaymentError(err, perrors.ErrCodeInternal, record.ID, "failed to build sweep")
	}
	if err := svm.PartialSign(sw.Transaction, record.SecretKey); err != nil {
		return Done{}, perrors.NewInternalError("failed to sign sweep with ephemeral key", err)
	}

	sig, err := r.deps.Signer.SignAndSend(ctx, sw.Transaction)
	if err != nil {
		logger.Warn().Err(err).Msg("wallet did not send the sweep")
		return Done{}, err
	}
	logger.Info().Str("signature", sig.String()).Uint64("raw", sw.Amount).Msg("sweep sent, confirming")

	if err := common.ConfirmWithFallback(ctx, r.deps.Gateway, sig, sw.Fee, record.ID, r.logger); err != nil {
		return Done{}, err
	}

	amount := utils.FromRaw(sw.Amount, r.cfg.Decimals)
	r.deps.Metrics.Claim("single", nil, sw.Amount)
	r.deps.Metrics.GhostSession("claimed")
	r.cleanup(record, destination, sig, amount)
	logger.Info().Str("amount", amount.String()).Msg("ghost payment claimed")

	return Done{SessionID: record.ID, Signature: sig, Amount: amount}, nil
}

func (r *Receiver) cleanup(record keystore.EphemeralPayment, destination solana.PublicKey, sig solana.Signature, amount decimal.Decimal) {
	r.deps.Tasks.Submit("ghost_remove_record", func(ctx context.Context) error {
		return r.deps.Keys.Remove(ctx, record.ID)
	})
	r.deps.Tasks.Submit("ghost_append_history", func(ctx context.Context) error {
		return r.deps.History.Append(ctx, history.StoredTransaction{
			Signature: sig.String(),
			Sender:    record.PublicAddress.String(),
			Recipient: destination.String(),
			Amount:    amount,
			Timestamp: r.deps.Clock.Now(),
			SavedGas:  decimal.Zero,
			Cashback:  decimal.Zero,
			Strategy:  history.StrategyReceived,
			Direction: history.DirectionReceived,
		})
	})
}

// Reset abandons the current session and returns to idle. Polling stops and
// the channel is released; the persisted record is kept.
func (r *Receiver) Reset(ctx context.Context) {
	r.mu.Lock()
	r.generation++
	stop := r.stopPoll
	r.stopPoll = nil
	published := r.published
	r.published = false
	r.fee = nil
	prev := r.state.Name()
	r.setStateLocked(Idle{})
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if published {
		r.release(ctx)
	}
	if prev != (Idle{}).Name() {
		r.deps.Metrics.GhostSession("reset")
		r.logger.Debug().Str("from", prev).Msg("ghost session reset")
	}
}

func (r *Receiver) failStart(gen uint64, sessionID string, err error) error {
	if !r.transition(gen, Failed{SessionID: sessionID, Err: err}) {
		return errSessionReset
	}
	return err
}

// transition moves to next when gen is still the live session.
func (r *Receiver) transition(gen uint64, next State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return false
	}
	if _, polling := r.state.(Polling); polling {
		r.stopPoll = nil
	}
	r.setStateLocked(next)
	return true
}

func (r *Receiver) setStateLocked(next State) {
	r.state = next
	if r.observer != nil {
		r.observer(next)
	}
}

func (r *Receiver) releaseIfCurrent(ctx context.Context, gen uint64) {
	r.mu.Lock()
	if r.generation != gen || !r.published {
		r.mu.Unlock()
		return
	}
	r.published = false
	r.mu.Unlock()
	r.release(ctx)
}

func (r *Receiver) release(ctx context.Context) {
	if err := r.deps.Channel.Release(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("failed to release near-field channel")
	}
}
