// Package signer wraps the wallet signing capability in an explicit session.
package signer

import (
	"context"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/store"
)

// Authorization is the result of a wallet authorization.
type Authorization struct {
	Token     string
	PublicKey solana.PublicKey
}

// Wallet is the external signing capability.
type Wallet interface {
	// AuthorizeOrReauthorize reauthorizes with token when it is still valid
	// and falls back to a fresh authorization otherwise. An empty token
	// always authorizes afresh.
	AuthorizeOrReauthorize(ctx context.Context, token string) (Authorization, error)
	// SignAndSend adds the wallet signature to tx and submits it.
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Session holds the authorization state of one wallet. It replaces a
// process-wide "current signer": every operation that signs receives it.
type Session struct {
	wallet Wallet
	kv     store.KV
	logger zerolog.Logger

	mu        sync.RWMutex
	token     string
	publicKey solana.PublicKey
	connected bool
}

// NewSession creates a disconnected session.
func NewSession(wallet Wallet, kv store.KV, logger zerolog.Logger) *Session {
	return &Session{
		wallet: wallet,
		kv:     kv,
		logger: logger.With().Str("component", "signer_session").Logger(),
	}
}

// Restore loads a persisted token and address without contacting the
// wallet. It reports whether a session was found.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	token, okToken, err := s.kv.Get(ctx, store.KeyAuthToken)
	if err != nil {
		return false, perrors.NewDatabaseError("failed to read auth token", err)
	}
	address, okAddress, err := s.kv.Get(ctx, store.KeyWalletAddress)
	if err != nil {
		return false, perrors.NewDatabaseError("failed to read wallet address", err)
	}
	if !okToken || !okAddress || token == "" || address == "" {
		return false, nil
	}
	publicKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		s.logger.Warn().Str("address", address).Msg("stored wallet address is invalid, ignoring")
		return false, nil
	}

	s.mu.Lock()
	s.token = token
	s.publicKey = publicKey
	s.connected = true
	s.mu.Unlock()

	s.logger.Info().Str("wallet", publicKey.String()).Msg("signer session restored")
	return true, nil
}

// Connect authorizes with the wallet, reusing the stored token when possible,
// and persists the refreshed token.
func (s *Session) Connect(ctx context.Context) (solana.PublicKey, error) {
	auth, err := s.authorize(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	s.logger.Info().Str("wallet", auth.PublicKey.String()).Msg("wallet connected")
	return auth.PublicKey, nil
}

// Clear forgets the session and its persisted token.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.publicKey = solana.PublicKey{}
	s.connected = false
	s.mu.Unlock()

	if err := s.kv.Remove(ctx, store.KeyAuthToken); err != nil {
		return perrors.NewDatabaseError("failed to remove auth token", err)
	}
	if err := s.kv.Remove(ctx, store.KeyWalletAddress); err != nil {
		return perrors.NewDatabaseError("failed to remove wallet address", err)
	}
	return nil
}

// PublicKey returns the wallet address and whether the session is connected.
func (s *Session) PublicKey() (solana.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicKey, s.connected
}

// Connected reports whether the session has an identity.
func (s *Session) Connected() bool {
	_, ok := s.PublicKey()
	return ok
}

// SignAndSend reauthorizes and asks the wallet to sign and submit tx.
// A declined request surfaces as USER_CANCELLED.
func (s *Session) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if _, err := s.authorize(ctx); err != nil {
		return solana.Signature{}, err
	}

	sig, err := s.wallet.SignAndSend(ctx, tx)
	if err != nil {
		return solana.Signature{}, classify(err, "wallet failed to sign and send")
	}
	s.logger.Info().Str("signature", sig.String()).Msg("transaction signed and sent")
	return sig, nil
}

func (s *Session) authorize(ctx context.Context) (Authorization, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	auth, err := s.wallet.AuthorizeOrReauthorize(ctx, token)
	if err != nil {
		return Authorization{}, classify(err, "wallet authorization failed")
	}

	s.mu.Lock()
	s.token = auth.Token
	s.publicKey = auth.PublicKey
	s.connected = true
	s.mu.Unlock()

	if err := s.kv.Set(ctx, store.KeyAuthToken, auth.Token); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist auth token")
	}
	if err := s.kv.Set(ctx, store.KeyWalletAddress, auth.PublicKey.String()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist wallet address")
	}
	return auth, nil
}

var cancelMarkers = []string{"closed", "cancelled", "canceled", "user rejected", "declined"}

// IsUserCancellation reports whether a wallet error means the user declined.
func IsUserCancellation(err error) bool {
	if err == nil {
		return false
	}
	if perrors.IsCode(err, perrors.ErrCodeUserCancelled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range cancelMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classify(err error, message string) error {
	if IsUserCancellation(err) {
		return perrors.NewUserCancelledError(err)
	}
	return perrors.WrapPaymentError(err, perrors.ErrCodeTransaction, "", message)
}
