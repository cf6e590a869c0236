// Package payment runs a tap-to-pay request from reading the tag to the
// confirmed transfer.
package payment

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/loyalty"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/router"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . Optimizer,LoyaltyReader

// Optimizer chooses the funding route of a request.
type Optimizer interface {
	Optimize(ctx context.Context, sender solana.PublicKey, req nearfield.PayRequest) (*router.Plan, error)
}

// Signer is the connected wallet session.
type Signer interface {
	PublicKey() (solana.PublicKey, bool)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// LoyaltyReader reads the staked balance that sets the cashback rate.
type LoyaltyReader interface {
	Balance(ctx context.Context, wallet solana.PublicKey) decimal.Decimal
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Optimizer Optimizer
	Signer    Signer
	Gateway   common.Gateway
	Reader    nearfield.Reader
	Loyalty   LoyaltyReader
	History   interface {
		Append(ctx context.Context, tx history.StoredTransaction) error
	}
	Tasks   *tasks.Runner
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Pipeline drives one payment at a time.
type Pipeline struct {
	mint   solana.PublicKey
	deps   Dependencies
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	staked decimal.Decimal
}

// NewPipeline creates an idle Pipeline. mint is the default token of
// requests that do not name one.
func NewPipeline(mint solana.PublicKey, deps Dependencies, logger zerolog.Logger) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Pipeline{
		mint:   mint,
		deps:   deps,
		state:  Idle{},
		logger: logger.With().Str("component", "payment").Logger(),
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Read waits for a pay request on the near-field channel and prepares it.
func (p *Pipeline) Read(ctx context.Context) (*router.Plan, error) {
	if p.deps.Reader == nil {
		return nil, perrors.NewConfigError("no near-field reader configured")
	}
	if err := p.enter("read", Reading{}); err != nil {
		return nil, err
	}

	req, err := nearfield.ReadRequest(ctx, p.deps.Reader, p.mint)
	if err != nil {
		p.fail(err)
		return nil, err
	}
	p.set(Idle{})
	return p.Prepare(ctx, req)
}

// PrepareURL parses a pay URL and prepares it.
func (p *Pipeline) PrepareURL(ctx context.Context, raw string) (*router.Plan, error) {
	req, err := nearfield.ParsePayURL(raw, p.mint)
	if err != nil {
		return nil, err
	}
	return p.Prepare(ctx, req)
}

// Prepare picks a route for req and prebuilds its transaction. Every ledger
// read of the payment happens here, before any signing is requested.
func (p *Pipeline) Prepare(ctx context.Context, req nearfield.PayRequest) (*router.Plan, error) {
	sender, ok := p.deps.Signer.PublicKey()
	if !ok {
		return nil, perrors.NewValidationError("wallet not connected")
	}
	if err := p.enter("prepare", Optimizing{}); err != nil {
		return nil, err
	}

	plan, err := p.deps.Optimizer.Optimize(ctx, sender, req)
	if err != nil {
		p.fail(err)
		return nil, err
	}
	if plan.Strategy == router.StrategyInsufficient {
		err := perrors.NewValidationError(plan.Reason).WithContext("strategy", string(plan.Strategy))
		p.deps.Metrics.Payment(string(plan.Strategy), err)
		p.fail(err)
		return plan, err
	}

	staked := decimal.Zero
	if p.deps.Loyalty != nil {
		staked = p.deps.Loyalty.Balance(ctx, sender)
	}

	p.mu.Lock()
	p.staked = staked
	p.state = AwaitingApproval{Plan: plan}
	p.mu.Unlock()

	p.logger.Info().
		Str("strategy", string(plan.Strategy)).
		Str("recipient", plan.Request.Recipient.String()).
		Str("amount", plan.Request.Amount.String()).
		Msg("payment ready for approval")
	return plan, nil
}

// Approve signs and sends the prepared plan and waits for confirmation.
// A cancellation in the wallet returns the pipeline to AwaitingApproval.
func (p *Pipeline) Approve(ctx context.Context) (Success, error) {
	p.mu.Lock()
	awaiting, ok := p.state.(AwaitingApproval)
	if !ok {
		state := p.state.Name()
		p.mu.Unlock()
		return Success{}, perrors.NewInvalidStateError("approve", state)
	}
	plan := awaiting.Plan
	staked := p.staked
	p.state = Signing{Plan: plan}
	p.mu.Unlock()

	strategy := string(plan.Strategy)
	sig, err := p.deps.Signer.SignAndSend(ctx, plan.Transaction)
	if err != nil {
		p.deps.Metrics.Payment(strategy, err)
		if perrors.IsCode(err, perrors.ErrCodeUserCancelled) {
			p.logger.Info().Msg("payment cancelled in wallet")
			p.set(awaiting)
			return Success{}, err
		}
		p.fail(err)
		return Success{}, err
	}

	if err := common.ConfirmWithFallback(ctx, p.deps.Gateway, sig, plan.Fee, "", p.logger); err != nil {
		p.deps.Metrics.Payment(strategy, err)
		p.fail(err)
		return Success{}, err
	}

	sender, _ := p.deps.Signer.PublicKey()
	cashback := loyalty.Cashback(plan.Request.Amount, staked)
	success := Success{Signature: sig, Plan: plan, Cashback: cashback, SavedGas: plan.SavedGas}
	p.record(sender, success)
	p.deps.Metrics.Payment(strategy, nil)
	p.set(success)

	p.logger.Info().
		Str("signature", sig.String()).
		Str("strategy", strategy).
		Str("cashback", cashback.String()).
		Msg("payment confirmed")
	return success, nil
}

// Reset drops any prepared plan. It is ignored while signing.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, signing := p.state.(Signing); signing {
		return
	}
	p.state = Idle{}
	p.staked = decimal.Zero
}

func (p *Pipeline) record(sender solana.PublicKey, s Success) {
	entry := history.StoredTransaction{
		Signature: s.Signature.String(),
		Sender:    sender.String(),
		Recipient: s.Plan.Request.Recipient.String(),
		Amount:    s.Plan.Request.Amount,
		Timestamp: p.deps.Clock.Now(),
		SavedGas:  s.SavedGas,
		Cashback:  s.Cashback,
		Strategy:  history.Strategy(s.Plan.Strategy),
		Direction: history.DirectionSent,
	}
	p.deps.Tasks.Submit("payment_history", func(ctx context.Context) error {
		return p.deps.History.Append(ctx, entry)
	})
}

// enter moves to next unless a payment is already in flight.
func (p *Pipeline) enter(op string, next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state.(type) {
	case Reading, Optimizing, Signing:
		return perrors.NewInvalidStateError(op, p.state.Name())
	}
	p.state = next
	return nil
}

func (p *Pipeline) set(next State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = next
}

func (p *Pipeline) fail(err error) {
	p.set(Failed{Err: err})
}
