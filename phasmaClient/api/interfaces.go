package api

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/ghost"
	"github.com/phasmapay/phasma/phasmaClient/history"
)

// ClientInterface defines the methods needed by the API server
type ClientInterface interface {
	ClaimableSnapshot() ([]cache.ClaimableEntry, decimal.Decimal, time.Time)
	History(ctx context.Context) ([]history.StoredTransaction, history.Totals, error)
	GhostState() ghost.Snapshot
}

// TransferBuilder builds unsigned token transfers for Solana Actions.
type TransferBuilder interface {
	BuildTransfer(ctx context.Context, sender, recipient solana.PublicKey, raw uint64) (*solana.Transaction, common.FeeContext, error)
}
