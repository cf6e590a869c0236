package svm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
)

const (
	defaultConfirmInterval = time.Second
	sendMaxRetries         = 3
)

// Config configures an RPCClient.
type Config struct {
	URLs              []string
	RequestsPerSecond int           // 0 disables client-side limiting
	ConfirmTimeout    time.Duration // default: 60s
	ConfirmInterval   time.Duration // default: 1s
	Metrics           *metrics.Metrics
	Logger            zerolog.Logger
}

// RPCClient implements common.Gateway over one or more Solana RPC endpoints
// with round-robin failover.
type RPCClient struct {
	clients         []*rpc.Client
	index           uint64
	mu              sync.RWMutex
	limiter         *rate.Limiter
	confirmTimeout  time.Duration
	confirmInterval time.Duration
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

var _ common.Gateway = (*RPCClient)(nil)

// NewRPCClient creates a client for the given endpoints. No network call is made.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	clients := make([]*rpc.Client, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		if strings.TrimSpace(url) == "" {
			continue
		}
		clients = append(clients, rpc.New(url))
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no valid RPC URLs provided")
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmInterval == 0 {
		cfg.ConfirmInterval = defaultConfirmInterval
	}

	return &RPCClient{
		clients:         clients,
		limiter:         limiter,
		confirmTimeout:  cfg.ConfirmTimeout,
		confirmInterval: cfg.ConfirmInterval,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With().Str("component", "svm_rpc_client").Logger(),
	}, nil
}

// executeWithFailover executes a function with round-robin failover.
// Account-not-found and context errors are final and skip the remaining endpoints.
func (rc *RPCClient) executeWithFailover(ctx context.Context, operation string, fn func(*rpc.Client) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	start := time.Now()
	var lastErr error
	defer func() {
		rc.metrics.GatewayRequest(operation, lastErr, time.Since(start))
	}()

	for attempt := 0; attempt < len(clients); attempt++ {
		if err := rc.limiter.Wait(ctx); err != nil {
			lastErr = err
			return err
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := fn(client)
		if err == nil {
			lastErr = nil
			return nil
		}
		lastErr = err
		if errors.Is(err, common.ErrAccountNotFound) || ctx.Err() != nil {
			return err
		}

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return perrors.NewGatewayError(
		fmt.Sprintf("operation %s failed after trying %d endpoints", operation, len(clients)),
		lastErr,
	)
}

// CheckHealth verifies that at least one endpoint is healthy and, when
// expectedGenesisHash is set, on the expected network. The CAIP-2 form
// carries a truncated genesis hash, so only that prefix is compared.
func (rc *RPCClient) CheckHealth(ctx context.Context, expectedGenesisHash string) error {
	return rc.executeWithFailover(ctx, "check_health", func(client *rpc.Client) error {
		health, err := client.GetHealth(ctx)
		if err != nil {
			return fmt.Errorf("failed to get health status: %w", err)
		}
		if health != "ok" {
			return fmt.Errorf("node is not healthy: %s", health)
		}
		if expectedGenesisHash == "" {
			return nil
		}

		genesisHash, err := client.GetGenesisHash(ctx)
		if err != nil {
			return fmt.Errorf("failed to get genesis hash: %w", err)
		}
		actual := genesisHash.String()
		if len(actual) > len(expectedGenesisHash) {
			actual = actual[:len(expectedGenesisHash)]
		}
		if actual != expectedGenesisHash {
			return fmt.Errorf("genesis hash mismatch: expected %s, got %s", expectedGenesisHash, genesisHash)
		}
		return nil
	})
}

// GetTokenAccountBalance returns the balance of a holding account.
func (rc *RPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (common.TokenBalance, error) {
	var balance common.TokenBalance
	err := rc.executeWithFailover(ctx, "get_token_account_balance", func(client *rpc.Client) error {
		resp, err := client.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
		if err != nil {
			if isAccountNotFound(err) {
				return common.ErrAccountNotFound
			}
			return err
		}
		if resp == nil || resp.Value == nil {
			return fmt.Errorf("empty token balance response for %s", account)
		}
		amount, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid token amount %q: %w", resp.Value.Amount, err)
		}
		balance = common.TokenBalance{Amount: amount, Decimals: resp.Value.Decimals}
		return nil
	})
	return balance, err
}

// GetNativeBalance returns the lamport balance of address.
func (rc *RPCClient) GetNativeBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := rc.executeWithFailover(ctx, "get_balance", func(client *rpc.Client) error {
		resp, err := client.GetBalance(ctx, address, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		lamports = resp.Value
		return nil
	})
	return lamports, err
}

// GetLatestFeeContext gets a recent blockhash for transaction building
func (rc *RPCClient) GetLatestFeeContext(ctx context.Context) (common.FeeContext, error) {
	var fee common.FeeContext
	err := rc.executeWithFailover(ctx, "get_latest_blockhash", func(client *rpc.Client) error {
		resp, err := client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		if resp == nil || resp.Value == nil {
			return fmt.Errorf("empty blockhash response")
		}
		fee = common.FeeContext{
			Blockhash:            resp.Value.Blockhash,
			LastValidBlockHeight: resp.Value.LastValidBlockHeight,
		}
		return nil
	})
	return fee, err
}

// SubmitTransaction broadcasts a fully signed transaction. Resubmitting the
// same signed bytes to another endpoint cannot double-spend.
func (rc *RPCClient) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if !IsFullySigned(tx) {
		return solana.Signature{}, fmt.Errorf("transaction is missing signatures")
	}

	maxRetries := uint(sendMaxRetries)
	var sig solana.Signature
	err := rc.executeWithFailover(ctx, "send_transaction", func(client *rpc.Client) error {
		var err error
		sig, err = client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight: true,
			MaxRetries:    &maxRetries,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, err
	}

	rc.logger.Info().Str("signature", sig.String()).Msg("transaction submitted")
	return sig, nil
}

// GetSignatureStatus returns the status of sig, or nil when the ledger does not know it.
func (rc *RPCClient) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*common.SignatureStatus, error) {
	var status *common.SignatureStatus
	err := rc.executeWithFailover(ctx, "get_signature_status", func(client *rpc.Client) error {
		resp, err := client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return err
		}
		status = nil
		if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
			return nil
		}
		v := resp.Value[0]
		status = &common.SignatureStatus{
			Slot:               v.Slot,
			ConfirmationStatus: string(v.ConfirmationStatus),
			Err:                v.Err,
		}
		return nil
	})
	return status, err
}

// ConfirmTransaction polls the signature status until it reaches confirmed
// commitment, the fee context expires or the confirm timeout elapses.
func (rc *RPCClient) ConfirmTransaction(ctx context.Context, sig solana.Signature, fee common.FeeContext) error {
	ctx, cancel := context.WithTimeout(ctx, rc.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(rc.confirmInterval)
	defer ticker.Stop()

	for {
		status, err := rc.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			rc.logger.Debug().Err(err).Str("signature", sig.String()).Msg("status poll failed")
		case status != nil && status.Err != nil:
			return fmt.Errorf("%w: %v", common.ErrTransactionFailed, status.Err)
		case status != nil && isConfirmed(status.ConfirmationStatus):
			return nil
		}

		if fee.LastValidBlockHeight > 0 {
			height, err := rc.getBlockHeight(ctx)
			if err == nil && height > fee.LastValidBlockHeight {
				return common.ErrBlockhashExpired
			}
		}

		select {
		case <-ctx.Done():
			return perrors.NewTimeoutError("", "confirmation timed out").WithContext("signature", sig.String())
		case <-ticker.C:
		}
	}
}

func (rc *RPCClient) getBlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := rc.executeWithFailover(ctx, "get_block_height", func(client *rpc.Client) error {
		var err error
		height, err = client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
		return err
	})
	return height, err
}

func isConfirmed(status string) bool {
	return status == common.StatusConfirmed || status == common.StatusFinalized
}

func isAccountNotFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "could not find account")
}
