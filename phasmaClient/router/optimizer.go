// Package router picks how a payment is funded: a direct stablecoin transfer
// when the balance covers it, otherwise a SOL conversion through a quote
// service.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/constant"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

// Strategy is the funding route of a payment.
type Strategy string

const (
	StrategyDirect       Strategy = "direct"
	StrategySwap         Strategy = "swap"
	StrategyInsufficient Strategy = "insufficient"
)

// Fee estimates in USD.
var (
	DirectTransferFee = decimal.RequireFromString("0.00025")
	SwapOverhead      = decimal.RequireFromString("0.00037")

	// minSwapSOL is the SOL balance below which no conversion is attempted.
	minSwapSOL = decimal.RequireFromString("0.01")
)

const (
	DefaultTransferComputeUnitLimit = 40_000
	DefaultComputeUnitPrice         = 5_000

	// swapPercent of the SOL balance is quoted, leaving room for fees.
	swapPercent = 99
)

var solMint = solana.MustPublicKeyFromBase58(constant.SOLMint)

// Plan is a ready-to-sign payment.
type Plan struct {
	Strategy    Strategy
	Transaction *solana.Transaction
	// Fee is the context Transaction was built against.
	Fee          common.FeeContext
	Request      nearfield.PayRequest
	Raw          uint64
	SavedGas     decimal.Decimal
	EstimatedFee decimal.Decimal
	Reason       string
	TokenBalance decimal.Decimal
	SOLBalance   decimal.Decimal
}

// Config configures an Optimizer.
type Config struct {
	Mint             solana.PublicKey
	Decimals         uint8
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

// Optimizer chooses and prebuilds the cheapest viable payment route.
type Optimizer struct {
	gateway common.Gateway
	quoter  Quoter
	cfg     Config
	logger  zerolog.Logger
}

// NewOptimizer creates an Optimizer. quoter may be nil, disabling conversions.
func NewOptimizer(gateway common.Gateway, quoter Quoter, cfg Config, logger zerolog.Logger) *Optimizer {
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = DefaultTransferComputeUnitLimit
	}
	if cfg.ComputeUnitPrice == 0 {
		cfg.ComputeUnitPrice = DefaultComputeUnitPrice
	}
	return &Optimizer{
		gateway: gateway,
		quoter:  quoter,
		cfg:     cfg,
		logger:  logger.With().Str("component", "router").Logger(),
	}
}

// Optimize evaluates sender's balances against req. An insufficient plan is
// returned without error; errors mean the balances could not be read or the
// direct transaction could not be built.
func (o *Optimizer) Optimize(ctx context.Context, sender solana.PublicKey, req nearfield.PayRequest) (*Plan, error) {
	if !req.Amount.IsPositive() {
		return nil, perrors.NewValidationError("payment amount must be positive")
	}
	if !req.Mint.IsZero() && !req.Mint.Equals(o.cfg.Mint) {
		return nil, perrors.NewValidationError(fmt.Sprintf("unsupported payment token %s", req.Mint))
	}
	raw, err := utils.ToRaw(req.Amount, o.cfg.Decimals)
	if err != nil {
		return nil, perrors.NewValidationError(err.Error())
	}
	if raw == 0 {
		return nil, perrors.NewValidationError(fmt.Sprintf("payment amount %s is below the smallest token unit", req.Amount))
	}

	tokenBalance, lamports, err := o.balances(ctx, sender)
	if err != nil {
		return nil, err
	}
	solBalance := utils.FromRaw(lamports, constant.SOLDecimals)
	plan := &Plan{
		Request:      req,
		Raw:          raw,
		TokenBalance: utils.FromRaw(tokenBalance, o.cfg.Decimals),
		SOLBalance:   solBalance,
	}

	if tokenBalance >= raw {
		tx, fee, err := o.BuildTransfer(ctx, sender, req.Recipient, raw)
		if err != nil {
			return nil, err
		}
		plan.Strategy = StrategyDirect
		plan.Transaction = tx
		plan.Fee = fee
		plan.SavedGas = SwapOverhead
		plan.EstimatedFee = DirectTransferFee
		plan.Reason = fmt.Sprintf("Direct transfer (balance: %s)", plan.TokenBalance.StringFixed(2))
		o.logger.Debug().Str("recipient", req.Recipient.String()).Uint64("raw", raw).Msg("direct route chosen")
		return plan, nil
	}

	if o.quoter != nil && solBalance.GreaterThan(minSwapSOL) {
		swap, err := o.swapRoute(ctx, sender, lamports, raw)
		switch {
		case err != nil:
			o.logger.Info().Err(err).Msg("conversion route unavailable")
		case swap != nil:
			plan.Strategy = StrategySwap
			plan.Transaction = swap.Transaction
			plan.Fee = common.FeeContext{
				Blockhash:            swap.Transaction.Message.RecentBlockhash,
				LastValidBlockHeight: swap.LastValidBlockHeight,
			}
			plan.SavedGas = decimal.Zero
			plan.EstimatedFee = DirectTransferFee.Add(SwapOverhead)
			plan.Reason = fmt.Sprintf("Auto-swap SOL to USDC (%s SOL available)", solBalance.StringFixed(4))
			return plan, nil
		}
	}

	plan.Strategy = StrategyInsufficient
	plan.SavedGas = decimal.Zero
	plan.EstimatedFee = decimal.Zero
	plan.Reason = fmt.Sprintf("Insufficient funds (USDC: %s, SOL: %s)", plan.TokenBalance.StringFixed(2), solBalance.StringFixed(4))
	return plan, nil
}

// balances reads the token and native balances concurrently. A missing or
// unreadable token account counts as empty.
func (o *Optimizer) balances(ctx context.Context, owner solana.PublicKey) (uint64, uint64, error) {
	account, err := svm.HoldingAccount(owner, o.cfg.Mint)
	if err != nil {
		return 0, 0, perrors.NewInternalError("failed to derive holding account", err)
	}

	var token, lamports uint64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		balance, err := o.gateway.GetTokenAccountBalance(gctx, account)
		if err != nil {
			if !errors.Is(err, common.ErrAccountNotFound) {
				o.logger.Warn().Err(err).Msg("token balance unavailable, assuming zero")
			}
			return nil
		}
		token = balance.Amount
		return nil
	})
	g.Go(func() error {
		var err error
		lamports, err = o.gateway.GetNativeBalance(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, 0, perrors.WrapPaymentError(err, perrors.ErrCodeGateway, "", "failed to read balances")
	}
	return token, lamports, nil
}

// swapRoute returns nil without error when the quote does not cover raw.
func (o *Optimizer) swapRoute(ctx context.Context, sender solana.PublicKey, lamports, raw uint64) (*SwapTransaction, error) {
	in := lamports/100*swapPercent + lamports%100*swapPercent/100
	quote, err := o.quoter.Quote(ctx, solMint, o.cfg.Mint, in)
	if err != nil {
		return nil, err
	}
	out, err := quote.OutRaw()
	if err != nil {
		return nil, err
	}
	if out < raw {
		o.logger.Info().Uint64("quoted", out).Uint64("needed", raw).Msg("conversion does not cover the payment")
		return nil, nil
	}
	return o.quoter.SwapTransaction(ctx, quote, sender)
}

// BuildTransfer builds an unsigned direct transfer of raw units from sender
// to recipient, creating the recipient's holding account when needed.
func (o *Optimizer) BuildTransfer(ctx context.Context, sender, recipient solana.PublicKey, raw uint64) (*solana.Transaction, common.FeeContext, error) {
	fee, err := o.gateway.GetLatestFeeContext(ctx)
	if err != nil {
		return nil, common.FeeContext{}, perrors.WrapPaymentError(err, perrors.ErrCodeGateway, "", "failed to fetch fee context")
	}

	source, err := svm.HoldingAccount(sender, o.cfg.Mint)
	if err != nil {
		return nil, common.FeeContext{}, perrors.NewInternalError("failed to derive sender holding account", err)
	}
	create, dest, err := svm.CreateHoldingAccountIdempotentInstruction(sender, recipient, o.cfg.Mint)
	if err != nil {
		return nil, common.FeeContext{}, perrors.NewInternalError("failed to build recipient account instruction", err)
	}
	transfer, err := svm.TransferCheckedInstruction(raw, o.cfg.Decimals, source, o.cfg.Mint, dest, sender)
	if err != nil {
		return nil, common.FeeContext{}, perrors.NewInternalError("failed to build transfer instruction", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			svm.SetComputeUnitLimitInstruction(o.cfg.ComputeUnitLimit),
			svm.SetComputeUnitPriceInstruction(o.cfg.ComputeUnitPrice),
			create,
			transfer,
		},
		fee.Blockhash,
		solana.TransactionPayer(sender),
	)
	if err != nil {
		return nil, common.FeeContext{}, perrors.NewInternalError("failed to assemble transfer transaction", err)
	}
	return tx, fee, nil
}
