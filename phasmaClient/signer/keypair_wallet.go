package signer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
)

// KeypairWallet is an in-process wallet over a local keypair. Tokens it
// issues are random and valid until the next authorization.
type KeypairWallet struct {
	key     solana.PrivateKey
	gateway common.Gateway
	logger  zerolog.Logger

	mu    sync.Mutex
	token string
}

var _ Wallet = (*KeypairWallet)(nil)

// NewKeypairWallet creates a wallet signing with key and submitting through gateway.
func NewKeypairWallet(key solana.PrivateKey, gateway common.Gateway, logger zerolog.Logger) *KeypairWallet {
	return &KeypairWallet{
		key:     key,
		gateway: gateway,
		logger:  logger.With().Str("component", "keypair_wallet").Logger(),
	}
}

// AuthorizeOrReauthorize always succeeds and rotates the token.
func (w *KeypairWallet) AuthorizeOrReauthorize(_ context.Context, token string) (Authorization, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if token != "" && token == w.token {
		w.logger.Debug().Msg("reauthorized")
	} else {
		w.logger.Debug().Msg("authorized")
	}
	w.token = uuid.NewString()
	return Authorization{Token: w.token, PublicKey: w.key.PublicKey()}, nil
}

// SignAndSend fills the wallet's signature slot and submits tx.
func (w *KeypairWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := svm.PartialSign(tx, w.key); err != nil {
		return solana.Signature{}, err
	}
	return w.gateway.SubmitTransaction(ctx, tx)
}

// LoadKeypairFile reads a solana-keygen JSON keypair file or a file holding
// a base58 secret key.
func LoadKeypairFile(path string) (solana.PrivateKey, error) {
	if key, err := solana.PrivateKeyFromSolanaKeygenFile(path); err == nil {
		return key, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("keypair file %s is neither a keygen file nor base58: %w", path, err)
	}
	return key, nil
}

// SaveKeypairFile writes key in the solana-keygen JSON format.
func SaveKeypairFile(path string, key solana.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create keypair directory: %w", err)
	}
	parts := make([]string, len(key))
	for i, b := range key {
		parts[i] = fmt.Sprint(b)
	}
	content := "[" + strings.Join(parts, ",") + "]"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write keypair file: %w", err)
	}
	return nil
}
