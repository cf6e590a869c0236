// Package commontest provides an in-memory ledger gateway for tests.
package commontest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
)

// BalanceFunc computes the balance returned for the n-th (1-based) query of an account.
type BalanceFunc func(call int) (common.TokenBalance, error)

// Gateway is a thread-safe fake ledger. Accounts without a configured balance
// report common.ErrAccountNotFound.
type Gateway struct {
	mu sync.Mutex

	balances    map[solana.PublicKey]BalanceFunc
	calls       map[solana.PublicKey]int
	native      map[solana.PublicKey]uint64
	fee         common.FeeContext
	feeErr      error
	submitErr   error
	confirmErr  error
	status      *common.SignatureStatus
	statusErr   error
	submitted   []*solana.Transaction
	feeRequests int
}

// NewGateway returns a fake with a fixed fee context.
func NewGateway() *Gateway {
	return &Gateway{
		balances: make(map[solana.PublicKey]BalanceFunc),
		calls:    make(map[solana.PublicKey]int),
		native:   make(map[solana.PublicKey]uint64),
		fee: common.FeeContext{
			Blockhash:            solana.Hash(sha256.Sum256([]byte("fee"))),
			LastValidBlockHeight: 1_000,
		},
	}
}

// SetBalance makes account report a fixed balance.
func (g *Gateway) SetBalance(account solana.PublicKey, amount uint64, decimals uint8) {
	g.SetBalanceFunc(account, func(int) (common.TokenBalance, error) {
		return common.TokenBalance{Amount: amount, Decimals: decimals}, nil
	})
}

// SetBalanceFunc installs a programmable balance for account.
func (g *Gateway) SetBalanceFunc(account solana.PublicKey, fn BalanceFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[account] = fn
}

// DeleteAccount makes account report common.ErrAccountNotFound again.
func (g *Gateway) DeleteAccount(account solana.PublicKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.balances, account)
}

// SetNativeBalance sets the lamport balance of address.
func (g *Gateway) SetNativeBalance(address solana.PublicKey, lamports uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.native[address] = lamports
}

// FailFeeContext makes GetLatestFeeContext fail with err.
func (g *Gateway) FailFeeContext(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeErr = err
}

// FailSubmit makes SubmitTransaction fail with err.
func (g *Gateway) FailSubmit(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr = err
}

// FailConfirm makes ConfirmTransaction fail with err and GetSignatureStatus
// report status/statusErr.
func (g *Gateway) FailConfirm(err error, status *common.SignatureStatus, statusErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmErr = err
	g.status = status
	g.statusErr = statusErr
}

// Calls returns how many balance queries account received.
func (g *Gateway) Calls(account solana.PublicKey) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[account]
}

// Submitted returns the transactions passed to SubmitTransaction.
func (g *Gateway) Submitted() []*solana.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*solana.Transaction, len(g.submitted))
	copy(out, g.submitted)
	return out
}

// FeeRequests returns how many fee contexts were fetched.
func (g *Gateway) FeeRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.feeRequests
}

// Fee returns the fixed fee context.
func (g *Gateway) Fee() common.FeeContext {
	return g.fee
}

func (g *Gateway) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (common.TokenBalance, error) {
	g.mu.Lock()
	g.calls[account]++
	call := g.calls[account]
	fn, ok := g.balances[account]
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return common.TokenBalance{}, err
	}
	if !ok {
		return common.TokenBalance{}, common.ErrAccountNotFound
	}
	return fn(call)
}

func (g *Gateway) GetNativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.native[address], nil
}

func (g *Gateway) GetLatestFeeContext(ctx context.Context) (common.FeeContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeRequests++
	if g.feeErr != nil {
		return common.FeeContext{}, g.feeErr
	}
	return g.fee, nil
}

func (g *Gateway) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return solana.Signature{}, g.submitErr
	}
	g.submitted = append(g.submitted, tx)
	if len(tx.Signatures) > 0 {
		return tx.Signatures[0], nil
	}
	return SignatureFor(fmt.Sprintf("tx-%d", len(g.submitted))), nil
}

func (g *Gateway) ConfirmTransaction(ctx context.Context, sig solana.Signature, fee common.FeeContext) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmErr
}

func (g *Gateway) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*common.SignatureStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	return g.status, nil
}

// SignatureFor derives a deterministic signature from a label.
func SignatureFor(label string) solana.Signature {
	var sig solana.Signature
	first := sha256.Sum256([]byte(label))
	second := sha256.Sum256(first[:])
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])
	return sig
}
