package ghost

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/poller"
	"github.com/phasmapay/phasma/phasmaClient/sweep"
)

// Watcher watches an address for an incoming payment.
type Watcher interface {
	Watch(ctx context.Context, owner solana.PublicKey, expected uint64, onReceived func(uint64), onTimeout func()) (poller.CancelFunc, error)
}

// SweepBuilder builds the transaction moving funds off an ephemeral address.
type SweepBuilder interface {
	Build(ctx context.Context, owner, destination solana.PublicKey, fee *common.FeeContext) (*sweep.Sweep, error)
}

// Signer is the connected wallet session.
type Signer interface {
	PublicKey() (solana.PublicKey, bool)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// HistoryAppender records completed transfers.
type HistoryAppender interface {
	Append(ctx context.Context, tx history.StoredTransaction) error
}
