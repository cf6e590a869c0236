// Package claimable lists ghost payments that still hold funds and sweeps
// them in one transaction.
package claimable

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/keystore"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
	"github.com/phasmapay/phasma/phasmaClient/sweep"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

const (
	DefaultStaleAfter  = 24 * time.Hour
	defaultConcurrency = 8
)

// Item is a stored ghost payment with its live balance.
type Item struct {
	keystore.EphemeralPayment
	OnChainBalance uint64
	// Degraded is set when the balance could not be read and the stored
	// received amount is shown instead.
	Degraded bool
}

// Raw returns the amount to display in smallest units.
func (i Item) Raw() uint64 {
	if i.Degraded {
		if i.ReceivedAmount != nil {
			return *i.ReceivedAmount
		}
		return 0
	}
	return i.OnChainBalance
}

// ClaimResult describes a successful claim-all.
type ClaimResult struct {
	Signature solana.Signature
	Amount    decimal.Decimal
	Raw       uint64
	Claimed   []string
	Skipped   []string
}

// BatchBuilder builds claim-all transactions.
type BatchBuilder interface {
	BuildBatch(ctx context.Context, sources []sweep.Source, destination solana.PublicKey, fee *common.FeeContext) (*sweep.BatchSweep, error)
}

// Signer signs and submits a transaction with the connected wallet.
type Signer interface {
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Config configures an Aggregator.
type Config struct {
	Mint        solana.PublicKey
	Decimals    uint8
	StaleAfter  time.Duration
	Concurrency int
}

// Dependencies are the collaborators of an Aggregator.
type Dependencies struct {
	Keys    *keystore.Store
	Gateway common.Gateway
	Sweeper BatchBuilder
	Signer  Signer
	History interface {
		Append(ctx context.Context, tx history.StoredTransaction) error
	}
	Cache   *cache.Cache
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Aggregator scans the key store against the ledger.
type Aggregator struct {
	cfg    Config
	deps   Dependencies
	logger zerolog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config, deps Dependencies, logger zerolog.Logger) *Aggregator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Aggregator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "claimable").Logger(),
	}
}

type verdict int

const (
	verdictHide verdict = iota
	verdictShow
	verdictRemove
)

type scanResult struct {
	item    Item
	verdict verdict
}

// ListClaimable returns every record still holding funds, newest first.
// Empty records and long-dead unfunded ones are removed from the store after
// the scan. A record whose balance cannot be read is kept as Degraded.
func (a *Aggregator) ListClaimable(ctx context.Context) ([]Item, error) {
	records, err := a.deps.Keys.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]scanResult, len(records))
	now := a.deps.Clock.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			results[i] = a.inspect(gctx, rec, now)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		items   []Item
		removed []string
	)
	for _, res := range results {
		switch res.verdict {
		case verdictShow:
			items = append(items, res.item)
		case verdictRemove:
			removed = append(removed, res.item.ID)
		}
	}

	if len(removed) > 0 {
		// Records may have changed since List; a record funded between the
		// read and this delete is lost from the list, not from the ledger.
		if err := a.deps.Keys.RemoveMany(ctx, removed); err != nil {
			a.logger.Warn().Err(err).Int("count", len(removed)).Msg("failed to prune empty ghost payments")
		} else {
			a.logger.Info().Int("count", len(removed)).Msg("pruned empty ghost payments")
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	a.publish(items)
	return items, nil
}

func (a *Aggregator) inspect(ctx context.Context, rec keystore.EphemeralPayment, now time.Time) scanResult {
	res := scanResult{item: Item{EphemeralPayment: rec}}

	account, err := svm.HoldingAccount(rec.PublicAddress, a.cfg.Mint)
	if err != nil {
		res.verdict = verdictHide
		return res
	}

	balance, err := a.deps.Gateway.GetTokenAccountBalance(ctx, account)
	switch {
	case errors.Is(err, common.ErrAccountNotFound):
		if now.Sub(rec.CreatedAt) > a.cfg.StaleAfter || rec.Status != keystore.StatusPending {
			res.verdict = verdictRemove
		} else {
			res.verdict = verdictHide
		}
	case err != nil:
		a.logger.Warn().Err(err).Str("session", rec.ID).Msg("balance unavailable, showing stored amount")
		res.item.Degraded = true
		res.verdict = verdictShow
	case balance.Amount == 0:
		res.verdict = verdictRemove
	default:
		res.item.OnChainBalance = balance.Amount
		res.verdict = verdictShow
	}
	return res
}

func (a *Aggregator) publish(items []Item) {
	if a.deps.Cache == nil {
		return
	}
	entries := make([]cache.ClaimableEntry, len(items))
	for i, it := range items {
		entries[i] = cache.ClaimableEntry{
			ID:        it.ID,
			Address:   it.PublicAddress.String(),
			Status:    string(it.Status),
			Amount:    utils.FromRaw(it.Raw(), a.cfg.Decimals),
			Degraded:  it.Degraded,
			CreatedAt: it.CreatedAt,
		}
	}
	a.deps.Cache.UpdateClaimable(entries)
}

// Total sums the displayed amounts of items.
func (a *Aggregator) Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(utils.FromRaw(it.Raw(), a.cfg.Decimals))
	}
	return total
}

// ClaimAll sweeps items to destination in a single transaction. Records are
// removed and history is written only after confirmation; on any failure
// the store is left untouched.
func (a *Aggregator) ClaimAll(ctx context.Context, items []Item, destination solana.PublicKey) (*ClaimResult, error) {
	if len(items) == 0 {
		return nil, perrors.NewValidationError("nothing to claim")
	}

	sources := make([]sweep.Source, len(items))
	keys := make(map[string]solana.PrivateKey, len(items))
	for i, it := range items {
		sources[i] = sweep.Source{ID: it.ID, Owner: it.PublicAddress}
		keys[it.ID] = it.SecretKey
	}

	res, err := a.claimAll(ctx, sources, keys, destination)
	if err != nil {
		a.deps.Metrics.Claim("batch", err, 0)
		a.logger.Warn().Err(err).Int("items", len(items)).Msg("claim-all failed")
		return nil, err
	}
	a.deps.Metrics.Claim("batch", nil, res.Raw)
	return res, nil
}

func (a *Aggregator) claimAll(ctx context.Context, sources []sweep.Source, keys map[string]solana.PrivateKey, destination solana.PublicKey) (*ClaimResult, error) {
	fee, err := a.deps.Gateway.GetLatestFeeContext(ctx)
	if err != nil {
		return nil, perrors.WrapPaymentError(err, perrors.ErrCodeGateway, "", "failed to fetch fee context")
	}

	batch, err := a.deps.Sweeper.BuildBatch(ctx, sources, destination, &fee)
	if err != nil {
		return nil, err
	}

	signers := make([]solana.PrivateKey, 0, len(batch.Included))
	claimed := make([]string, 0, len(batch.Included))
	for _, inc := range batch.Included {
		signers = append(signers, keys[inc.ID])
		claimed = append(claimed, inc.ID)
	}
	if err := svm.PartialSign(batch.Transaction, signers...); err != nil {
		return nil, perrors.NewInternalError("failed to sign batch with ephemeral keys", err)
	}

	sig, err := a.deps.Signer.SignAndSend(ctx, batch.Transaction)
	if err != nil {
		return nil, err
	}
	if err := common.ConfirmWithFallback(ctx, a.deps.Gateway, sig, batch.Fee, "claim-all", a.logger); err != nil {
		return nil, err
	}

	amount := utils.FromRaw(batch.Amount, a.cfg.Decimals)
	cleanupCtx := context.WithoutCancel(ctx)
	if err := a.deps.Keys.RemoveMany(cleanupCtx, claimed); err != nil {
		a.logger.Error().Err(err).Strs("sessions", claimed).Msg("failed to remove claimed ghost payments")
	}
	if err := a.deps.History.Append(cleanupCtx, history.StoredTransaction{
		Signature: sig.String(),
		Sender:    history.SenderClaimAll,
		Recipient: destination.String(),
		Amount:    amount,
		Timestamp: a.deps.Clock.Now(),
		SavedGas:  decimal.Zero,
		Cashback:  decimal.Zero,
		Strategy:  history.StrategyGhostSweep,
		Direction: history.DirectionReceived,
	}); err != nil {
		a.logger.Error().Err(err).Msg("failed to record claim-all")
	}

	a.logger.Info().
		Str("signature", sig.String()).
		Int("claimed", len(claimed)).
		Str("amount", amount.String()).
		Msg("claim-all confirmed")

	return &ClaimResult{
		Signature: sig,
		Amount:    amount,
		Raw:       batch.Amount,
		Claimed:   claimed,
		Skipped:   batch.Skipped,
	}, nil
}
