// Package signertest provides a scripted wallet for tests.
package signertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/signer"
)

// Wallet authorizes instantly and returns a fixed signature for every send.
type Wallet struct {
	mu sync.Mutex

	publicKey solana.PublicKey
	signature solana.Signature
	signErr   error
	authErr   error
	tokens    int
	sent      []*solana.Transaction
	seen      []string
}

var _ signer.Wallet = (*Wallet)(nil)

// NewWallet returns a wallet whose sends yield commontest.SignatureFor(label).
func NewWallet(publicKey solana.PublicKey, label string) *Wallet {
	return &Wallet{publicKey: publicKey, signature: commontest.SignatureFor(label)}
}

// FailSign makes subsequent sends fail with err.
func (w *Wallet) FailSign(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signErr = err
}

// FailAuthorize makes subsequent authorizations fail with err.
func (w *Wallet) FailAuthorize(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.authErr = err
}

// Sent returns the transactions handed to SignAndSend.
func (w *Wallet) Sent() []*solana.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*solana.Transaction, len(w.sent))
	copy(out, w.sent)
	return out
}

// TokensSeen returns the tokens passed to AuthorizeOrReauthorize, in order.
func (w *Wallet) TokensSeen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.seen))
	copy(out, w.seen)
	return out
}

func (w *Wallet) AuthorizeOrReauthorize(_ context.Context, token string) (signer.Authorization, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = append(w.seen, token)
	if w.authErr != nil {
		return signer.Authorization{}, w.authErr
	}
	w.tokens++
	return signer.Authorization{Token: fmt.Sprintf("token-%d", w.tokens), PublicKey: w.publicKey}, nil
}

func (w *Wallet) SignAndSend(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signErr != nil {
		return solana.Signature{}, w.signErr
	}
	w.sent = append(w.sent, tx)
	return w.signature, nil
}
