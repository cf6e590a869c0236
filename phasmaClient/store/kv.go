package store

import "context"

// Keys used by the payment core. Each collection lives under its own key.
const (
	KeyGhostPayments = "phasma:ghost_payments"
	KeyLegacySession = "ghost_session_key"
	KeyAuthToken     = "phasma:auth_token"
	KeyWalletAddress = "phasma:wallet_address"
	KeyTransactions  = "phasma:transactions"
	KeyTotalCashback = "phasma:total_cashback"
	KeyTotalSavedGas = "phasma:total_saved_gas"
)

// KV is the local key-value persistence contract.
type KV interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, entries map[string]string) error
	// Remove deletes the key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
