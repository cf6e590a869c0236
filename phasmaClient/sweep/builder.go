// Package sweep builds the transactions that move funds off ephemeral addresses.
package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

const (
	DefaultComputeUnitLimit    uint32 = 60_000
	DefaultComputeUnitsPerItem uint32 = 50_000
	DefaultComputeUnitPrice    uint64 = 5_000

	balanceReadConcurrency = 4
)

// Config configures a Builder.
type Config struct {
	Mint     solana.PublicKey
	Decimals uint8
	// ComputeUnitLimit applies to single sweeps.
	ComputeUnitLimit uint32
	// ComputeUnitsPerItem scales batch sweeps: per-item × (n + 1).
	ComputeUnitsPerItem uint32
	// ComputeUnitPrice is in micro-lamports.
	ComputeUnitPrice uint64
}

// Builder turns ephemeral balances into unsigned sweep transactions. It reads
// the ledger but never touches stored records.
type Builder struct {
	gateway common.Gateway
	cfg     Config
	logger  zerolog.Logger
}

// Sweep is an unsigned single-source sweep.
type Sweep struct {
	Transaction *solana.Transaction
	// Amount is the exact raw balance being moved.
	Amount uint64
	Fee    common.FeeContext
	Source solana.PublicKey
}

// Source is one ephemeral address taking part in a batch sweep.
type Source struct {
	ID    string
	Owner solana.PublicKey
}

// Included is a source that made it into a batch with its swept amount.
type Included struct {
	Source
	Amount uint64
}

// BatchSweep is an unsigned multi-source sweep.
type BatchSweep struct {
	Transaction *solana.Transaction
	Amount      uint64
	Fee         common.FeeContext
	Included    []Included
	// Skipped lists the ids of sources found empty at build time.
	Skipped []string
}

// NewBuilder creates a Builder. Zero compute settings fall back to the defaults.
func NewBuilder(gateway common.Gateway, cfg Config, logger zerolog.Logger) *Builder {
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if cfg.ComputeUnitsPerItem == 0 {
		cfg.ComputeUnitsPerItem = DefaultComputeUnitsPerItem
	}
	if cfg.ComputeUnitPrice == 0 {
		cfg.ComputeUnitPrice = DefaultComputeUnitPrice
	}
	return &Builder{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With().Str("component", "sweep_builder").Logger(),
	}
}

// Build sweeps the whole balance of owner's holding account to destination.
// Destination pays the fee and receives the rent of the closed account. A nil
// or zero fee context is fetched concurrently with the balance read.
func (b *Builder) Build(ctx context.Context, owner, destination solana.PublicKey, fee *common.FeeContext) (*Sweep, error) {
	source, err := svm.HoldingAccount(owner, b.cfg.Mint)
	if err != nil {
		return nil, perrors.NewInternalError("failed to derive ephemeral holding account", err)
	}

	var (
		amount uint64
		feeCtx common.FeeContext
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		amount, err = b.readBalance(gctx, source)
		return err
	})
	g.Go(func() error {
		var err error
		feeCtx, err = b.resolveFee(gctx, fee)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, perrors.NewNoFundsError("", owner.String())
	}

	instructions, err := b.prelude(b.cfg.ComputeUnitLimit, destination)
	if err != nil {
		return nil, err
	}
	moves, err := b.moveAll(source, owner, destination, amount)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, moves...)

	tx, err := solana.NewTransaction(instructions, feeCtx.Blockhash, solana.TransactionPayer(destination))
	if err != nil {
		return nil, perrors.NewInternalError("failed to assemble sweep transaction", err)
	}

	b.logger.Debug().
		Str("owner", owner.String()).
		Str("destination", destination.String()).
		Uint64("amount", amount).
		Msg("sweep built")

	return &Sweep{Transaction: tx, Amount: amount, Fee: feeCtx, Source: source}, nil
}

// BuildBatch sweeps every non-empty source into one transaction. Balances are
// re-read for each source; empty or missing accounts are skipped. It fails
// with NO_FUNDS when every source is empty.
func (b *Builder) BuildBatch(ctx context.Context, sources []Source, destination solana.PublicKey, fee *common.FeeContext) (*BatchSweep, error) {
	if len(sources) == 0 {
		return nil, perrors.NewValidationError("batch sweep needs at least one source")
	}

	accounts := make([]solana.PublicKey, len(sources))
	for i, src := range sources {
		account, err := svm.HoldingAccount(src.Owner, b.cfg.Mint)
		if err != nil {
			return nil, perrors.NewInternalError("failed to derive ephemeral holding account", err)
		}
		accounts[i] = account
	}

	amounts := make([]uint64, len(sources))
	var feeCtx common.FeeContext

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceReadConcurrency)
	g.Go(func() error {
		var err error
		feeCtx, err = b.resolveFee(gctx, fee)
		return err
	})
	for i := range sources {
		i := i
		g.Go(func() error {
			amount, err := b.readBalance(gctx, accounts[i])
			if err != nil {
				return err
			}
			amounts[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &BatchSweep{Fee: feeCtx}
	for i, src := range sources {
		if amounts[i] == 0 {
			batch.Skipped = append(batch.Skipped, src.ID)
			continue
		}
		batch.Included = append(batch.Included, Included{Source: src, Amount: amounts[i]})
	}
	if len(batch.Included) == 0 {
		return nil, perrors.NewNoFundsError("", fmt.Sprintf("%d ephemeral addresses", len(sources)))
	}
	total, err := utils.SumRaw(amounts...)
	if err != nil {
		return nil, perrors.NewValidationError(err.Error())
	}
	batch.Amount = total

	units := b.cfg.ComputeUnitsPerItem * uint32(len(batch.Included)+1)
	instructions, err := b.prelude(units, destination)
	if err != nil {
		return nil, err
	}
	for i, src := range sources {
		if amounts[i] == 0 {
			continue
		}
		moves, err := b.moveAll(accounts[i], src.Owner, destination, amounts[i])
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, moves...)
	}

	tx, err := solana.NewTransaction(instructions, feeCtx.Blockhash, solana.TransactionPayer(destination))
	if err != nil {
		return nil, perrors.NewInternalError("failed to assemble batch sweep transaction", err)
	}
	batch.Transaction = tx

	b.logger.Debug().
		Int("included", len(batch.Included)).
		Int("skipped", len(batch.Skipped)).
		Uint64("amount", batch.Amount).
		Msg("batch sweep built")
	return batch, nil
}

// readBalance returns the raw balance of account; a missing account is empty.
func (b *Builder) readBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	balance, err := b.gateway.GetTokenAccountBalance(ctx, account)
	if errors.Is(err, common.ErrAccountNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, perrors.WrapPaymentError(err, perrors.ErrCodeGateway, "", "failed to read ephemeral balance")
	}
	if balance.Amount > 0 && balance.Decimals != b.cfg.Decimals {
		return 0, perrors.NewValidationError(fmt.Sprintf(
			"holding account %s reports %d decimals, expected %d", account, balance.Decimals, b.cfg.Decimals))
	}
	return balance.Amount, nil
}

func (b *Builder) resolveFee(ctx context.Context, fee *common.FeeContext) (common.FeeContext, error) {
	if fee != nil && !fee.IsZero() {
		return *fee, nil
	}
	fetched, err := b.gateway.GetLatestFeeContext(ctx)
	if err != nil {
		return common.FeeContext{}, perrors.WrapPaymentError(err, perrors.ErrCodeGateway, "", "failed to fetch fee context")
	}
	return fetched, nil
}

// prelude returns the compute budget and destination account setup.
func (b *Builder) prelude(units uint32, destination solana.PublicKey) ([]solana.Instruction, error) {
	createDest, _, err := svm.CreateHoldingAccountIdempotentInstruction(destination, destination, b.cfg.Mint)
	if err != nil {
		return nil, perrors.NewInternalError("failed to build destination account instruction", err)
	}
	return []solana.Instruction{
		svm.SetComputeUnitLimitInstruction(units),
		svm.SetComputeUnitPriceInstruction(b.cfg.ComputeUnitPrice),
		createDest,
	}, nil
}

// moveAll transfers amount out of source and closes it, rent to destination.
func (b *Builder) moveAll(source, owner, destination solana.PublicKey, amount uint64) ([]solana.Instruction, error) {
	destAccount, err := svm.HoldingAccount(destination, b.cfg.Mint)
	if err != nil {
		return nil, perrors.NewInternalError("failed to derive destination holding account", err)
	}
	transfer, err := svm.TransferCheckedInstruction(amount, b.cfg.Decimals, source, b.cfg.Mint, destAccount, owner)
	if err != nil {
		return nil, perrors.NewInternalError("failed to build transfer", err)
	}
	closeSource, err := svm.CloseAccountInstruction(source, destination, owner)
	if err != nil {
		return nil, perrors.NewInternalError("failed to build close account", err)
	}
	return []solana.Instruction{transfer, closeSource}, nil
}
