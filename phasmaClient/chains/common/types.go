package common

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound is returned when a holding account does not exist yet.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionFailed is returned when a transaction landed with an error.
	ErrTransactionFailed = errors.New("transaction failed on chain")

	// ErrBlockhashExpired is returned when the fee context of a transaction
	// expired before the transaction was observed.
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")
)

// TokenBalance is a holding account balance in smallest units.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
}

// FeeContext is the short-lived network state a transaction is built against.
type FeeContext struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// IsZero reports whether the fee context was never fetched.
func (f FeeContext) IsZero() bool {
	return f.Blockhash.IsZero()
}

// Confirmation levels reported by SignatureStatus.
const (
	StatusProcessed = "processed"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
)

// SignatureStatus is the ledger's view of a submitted signature.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string
	// Err is the on-chain error of a landed transaction, nil on success.
	Err interface{}
}

// Gateway is the ledger contract consumed by the payment core.
type Gateway interface {
	// GetTokenAccountBalance returns the balance of a holding account, or
	// ErrAccountNotFound when it does not exist.
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (TokenBalance, error)

	// GetNativeBalance returns the lamport balance of an address.
	GetNativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error)

	// GetLatestFeeContext returns a recent blockhash and its validity window.
	GetLatestFeeContext(ctx context.Context) (FeeContext, error)

	// SubmitTransaction sends a fully signed transaction.
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// ConfirmTransaction waits until the signature is confirmed. It returns
	// ErrTransactionFailed when the transaction landed with an error.
	ConfirmTransaction(ctx context.Context, sig solana.Signature, fee FeeContext) error

	// GetSignatureStatus returns the status of a signature, nil when unknown.
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
}
