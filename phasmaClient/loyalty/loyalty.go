// Package loyalty maps a staked-token balance to a cashback tier.
package loyalty

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

// Tier is a loyalty level.
type Tier string

const (
	TierGold   Tier = "Gold"
	TierSilver Tier = "Silver"
	TierBronze Tier = "Bronze"
	TierGhost  Tier = "Ghost"
)

type tierSpec struct {
	tier      Tier
	minStaked decimal.Decimal
	cashback  decimal.Decimal
}

// tiers is ordered from highest to lowest.
var tiers = []tierSpec{
	{TierGold, decimal.NewFromInt(10_000), decimal.RequireFromString("0.03")},
	{TierSilver, decimal.NewFromInt(1_000), decimal.RequireFromString("0.02")},
	{TierBronze, decimal.NewFromInt(100), decimal.RequireFromString("0.01")},
	{TierGhost, decimal.Zero, decimal.RequireFromString("0.005")},
}

// Status is the loyalty position of a staked balance.
type Status struct {
	Balance     decimal.Decimal `json:"balance" yaml:"balance"`
	Tier        Tier            `json:"tier" yaml:"tier"`
	CashbackPct decimal.Decimal `json:"cashbackPct" yaml:"cashback_pct"`
	// NextTier is empty at the top tier.
	NextTier            Tier            `json:"nextTier,omitempty" yaml:"next_tier,omitempty"`
	NextTierRequirement decimal.Decimal `json:"nextTierRequirement" yaml:"next_tier_requirement"`
}

// TierFor returns the status of a staked balance.
func TierFor(staked decimal.Decimal) Status {
	for i, t := range tiers {
		if staked.LessThan(t.minStaked) {
			continue
		}
		status := Status{
			Balance:             staked,
			Tier:                t.tier,
			CashbackPct:         t.cashback,
			NextTierRequirement: decimal.Zero,
		}
		if i > 0 {
			next := tiers[i-1]
			status.NextTier = next.tier
			status.NextTierRequirement = next.minStaked.Sub(staked)
		}
		return status
	}
	// negative balances rank with the lowest tier
	lowest := tiers[len(tiers)-1]
	return Status{
		Balance:             staked,
		Tier:                lowest.tier,
		CashbackPct:         lowest.cashback,
		NextTier:            tiers[len(tiers)-2].tier,
		NextTierRequirement: tiers[len(tiers)-2].minStaked.Sub(staked),
	}
}

// Cashback returns amount × the cashback percentage of the staked balance.
func Cashback(amount, staked decimal.Decimal) decimal.Decimal {
	return amount.Mul(TierFor(staked).CashbackPct)
}

// Reader reads staked balances from the ledger.
type Reader struct {
	gateway common.Gateway
	mint    solana.PublicKey
	logger  zerolog.Logger
}

// NewReader creates a Reader for the loyalty token mint.
func NewReader(gateway common.Gateway, mint solana.PublicKey, logger zerolog.Logger) *Reader {
	return &Reader{
		gateway: gateway,
		mint:    mint,
		logger:  logger.With().Str("component", "loyalty").Logger(),
	}
}

// Balance returns the loyalty token balance of wallet. Any read failure
// counts as zero.
func (r *Reader) Balance(ctx context.Context, wallet solana.PublicKey) decimal.Decimal {
	account, err := svm.HoldingAccount(wallet, r.mint)
	if err != nil {
		return decimal.Zero
	}
	balance, err := r.gateway.GetTokenAccountBalance(ctx, account)
	if err != nil {
		r.logger.Debug().Err(err).Str("wallet", wallet.String()).Msg("loyalty balance unavailable")
		return decimal.Zero
	}
	return utils.FromRaw(balance.Amount, balance.Decimals)
}

// Status returns the loyalty status of wallet.
func (r *Reader) Status(ctx context.Context, wallet solana.PublicKey) Status {
	return TierFor(r.Balance(ctx, wallet))
}
