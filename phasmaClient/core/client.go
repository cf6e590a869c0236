// Package core wires the payment components into one client.
package core

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/api"
	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/claimable"
	"github.com/phasmapay/phasma/phasmaClient/config"
	"github.com/phasmapay/phasma/phasmaClient/constant"
	"github.com/phasmapay/phasma/phasmaClient/db"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/ghost"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/keystore"
	"github.com/phasmapay/phasma/phasmaClient/loyalty"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/payment"
	"github.com/phasmapay/phasma/phasmaClient/poller"
	"github.com/phasmapay/phasma/phasmaClient/router"
	"github.com/phasmapay/phasma/phasmaClient/signer"
	"github.com/phasmapay/phasma/phasmaClient/store"
	"github.com/phasmapay/phasma/phasmaClient/sweep"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
)

// ClaimableScanInterval is how often a running client refreshes the
// claimable snapshot served by the query server.
const ClaimableScanInterval = time.Minute

// Options overrides collaborators normally built from the config.
type Options struct {
	KV         store.KV
	Gateway    common.Gateway
	Wallet     signer.Wallet
	Clock      clock.Clock
	HTTPClient *http.Client
	// Out receives pay URLs when tag emulation is unavailable; In supplies
	// pay URLs to the payment pipeline. They default to stdout and stdin.
	Out io.Writer
	In  io.Reader
}

// Client owns every component of a PhasmaPay node.
type Client struct {
	cfg config.Config
	log zerolog.Logger
	db  *db.DB

	gateway   common.Gateway
	keys      *keystore.Store
	history   *history.Store
	cache     *cache.Cache
	tasks     *tasks.Runner
	session   *signer.Session
	loyalty   *loyalty.Reader
	ghost     *ghost.Receiver
	claimable *claimable.Aggregator
	payments  *payment.Pipeline
	server    *api.Server
}

var _ api.ClientInterface = (*Client)(nil)

// NewClient builds a client from cfg. Nothing touches the network until a
// component is used.
func NewClient(cfg config.Config, opts Options, log zerolog.Logger) (*Client, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.TokenMint)
	if err != nil {
		return nil, perrors.NewConfigError("invalid token mint: " + err.Error())
	}
	loyaltyMint, err := solana.PublicKeyFromBase58(cfg.LoyaltyMint)
	if err != nil {
		return nil, perrors.NewConfigError("invalid loyalty mint: " + err.Error())
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}

	c := &Client{cfg: cfg, log: log.With().Str("component", "core").Logger()}
	m := metrics.Registry()

	kv := opts.KV
	if kv == nil {
		c.db, err = db.OpenFileDB(cfg.DatabaseDir(), constant.DatabaseFile, true)
		if err != nil {
			return nil, perrors.NewDatabaseError("failed to open database", err)
		}
		kv = db.NewKVStore(c.db)
	}

	c.gateway = opts.Gateway
	if c.gateway == nil {
		c.gateway, err = svm.NewRPCClient(svm.Config{
			URLs:              cfg.RPCURLs,
			RequestsPerSecond: cfg.RPCRequestsPerSecond,
			ConfirmTimeout:    cfg.ConfirmTimeout(),
			Metrics:           m,
			Logger:            log,
		})
		if err != nil {
			c.closeDB()
			return nil, perrors.NewConfigError(err.Error())
		}
	}

	wallet := opts.Wallet
	if wallet == nil {
		key, err := signer.LoadKeypairFile(cfg.WalletKeypairPath)
		if err != nil {
			c.closeDB()
			return nil, perrors.NewConfigError("failed to load wallet keypair, run `phasmad init` first: " + err.Error())
		}
		wallet = signer.NewKeypairWallet(key, c.gateway, log)
	}

	c.keys = keystore.New(kv, opts.Clock, log)
	c.history = history.New(kv, cfg.HistoryLimit, log)
	c.cache = cache.New(opts.Clock, log)
	c.session = signer.NewSession(wallet, kv, log)
	c.loyalty = loyalty.NewReader(c.gateway, loyaltyMint, log)
	c.tasks = tasks.NewRunner(tasks.Options{Clock: opts.Clock, Metrics: m}, log)

	sweeper := sweep.NewBuilder(c.gateway, sweep.Config{
		Mint:                mint,
		Decimals:            cfg.TokenDecimals,
		ComputeUnitLimit:    cfg.SweepComputeUnitLimit,
		ComputeUnitsPerItem: cfg.BatchComputeUnitsPerItem,
		ComputeUnitPrice:    cfg.ComputeUnitPriceMicroLamports,
	}, log)

	writer := nearfield.NewWriterChannel(opts.Out, opts.In)
	c.ghost = ghost.NewReceiver(ghost.Config{Mint: mint, Decimals: cfg.TokenDecimals}, ghost.Dependencies{
		Keys: c.keys,
		Poller: poller.New(c.gateway, poller.Config{
			Mint:     mint,
			Interval: cfg.PollInterval(),
			Timeout:  cfg.PollTimeout(),
		}, opts.Clock, m, log),
		Sweeper: sweeper,
		Gateway: c.gateway,
		Channel: nearfield.NewFallback(nearfield.NewEmulator(log), writer, log),
		Signer:  c.session,
		History: c.history,
		Tasks:   c.tasks,
		Clock:   opts.Clock,
		Metrics: m,
	}, log)

	c.claimable = claimable.NewAggregator(claimable.Config{
		Mint:       mint,
		Decimals:   cfg.TokenDecimals,
		StaleAfter: cfg.StaleAfter(),
	}, claimable.Dependencies{
		Keys:    c.keys,
		Gateway: c.gateway,
		Sweeper: sweeper,
		Signer:  c.session,
		History: c.history,
		Cache:   c.cache,
		Clock:   opts.Clock,
		Metrics: m,
	}, log)

	quoter := router.NewJupiterClient(router.JupiterConfig{
		QuoteURL:    cfg.QuoteURL,
		SwapURL:     cfg.SwapURL,
		SlippageBps: cfg.SlippageBps,
		Timeout:     cfg.QuoteTimeout(),
		Metrics:     m,
	}, opts.HTTPClient, log)
	optimizer := router.NewOptimizer(c.gateway, quoter, router.Config{
		Mint:             mint,
		Decimals:         cfg.TokenDecimals,
		ComputeUnitLimit: cfg.TransferComputeUnitLimit,
		ComputeUnitPrice: cfg.ComputeUnitPriceMicroLamports,
	}, log)

	c.payments = payment.NewPipeline(mint, payment.Dependencies{
		Optimizer: optimizer,
		Signer:    c.session,
		Gateway:   c.gateway,
		Reader:    writer,
		Loyalty:   c.loyalty,
		History:   c.history,
		Tasks:     c.tasks,
		Clock:     opts.Clock,
		Metrics:   m,
	}, log)

	c.server = api.NewServer(log, c, api.ActionsConfig{
		Builder:      optimizer,
		BaseURL:      cfg.ActionBaseURL,
		BlockchainID: blockchainID(cfg.Network),
		Decimals:     cfg.TokenDecimals,
	}, cfg.QueryServerPort)

	return c, nil
}

func blockchainID(network string) string {
	if network == constant.NetworkMainnet {
		return "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	}
	return "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
}

// Connect restores the persisted signer session, or authorizes anew when
// none is stored.
func (c *Client) Connect(ctx context.Context) (solana.PublicKey, error) {
	restored, err := c.session.Restore(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if restored {
		pub, _ := c.session.PublicKey()
		return pub, nil
	}
	return c.session.Connect(ctx)
}

// Start connects the wallet, serves the query and Actions API and refreshes
// the claimable snapshot until ctx is done, then shuts everything down.
func (c *Client) Start(ctx context.Context) error {
	c.log.Info().Msg("starting phasma client")

	wallet, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	c.log.Info().Str("wallet", wallet.String()).Msg("wallet ready")

	if err := c.server.Start(); err != nil {
		return err
	}

	c.tasks.Schedule(ctx, "claimable_scan", ClaimableScanInterval, func(ctx context.Context) error {
		_, err := c.claimable.ListClaimable(ctx)
		return err
	})

	c.log.Info().Msg("initialization complete, serving")
	<-ctx.Done()

	c.log.Info().Msg("shutting down phasma client")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.server.Stop(shutdownCtx); err != nil {
		c.log.Warn().Err(err).Msg("query server shutdown failed")
	}
	c.ghost.Reset(shutdownCtx)
	return c.Close()
}

// Close stops background work and releases the database.
func (c *Client) Close() error {
	c.tasks.Close()
	return c.closeDB()
}

func (c *Client) closeDB() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Config returns the validated configuration the client was built from.
func (c *Client) Config() config.Config { return c.cfg }

// Ghost returns the ghost receive orchestrator.
func (c *Client) Ghost() *ghost.Receiver { return c.ghost }

// Claimable returns the claimable sweep aggregator.
func (c *Client) Claimable() *claimable.Aggregator { return c.claimable }

// Payments returns the direct payment pipeline.
func (c *Client) Payments() *payment.Pipeline { return c.payments }

// Session returns the signer session.
func (c *Client) Session() *signer.Session { return c.session }

// Server returns the query server.
func (c *Client) Server() *api.Server { return c.server }

// Tasks returns the background task runner.
func (c *Client) Tasks() *tasks.Runner { return c.tasks }

// LoyaltyStatus reads the connected wallet's loyalty tier.
func (c *Client) LoyaltyStatus(ctx context.Context) (loyalty.Status, error) {
	wallet, ok := c.session.PublicKey()
	if !ok {
		return loyalty.Status{}, perrors.NewValidationError("no wallet connected")
	}
	return c.loyalty.Status(ctx, wallet), nil
}

// ClaimableSnapshot returns the result of the last claimable scan.
func (c *Client) ClaimableSnapshot() ([]cache.ClaimableEntry, decimal.Decimal, time.Time) {
	items, total := c.cache.Claimable()
	return items, total, c.cache.LastUpdated()
}

// History returns the stored transactions with their running totals.
func (c *Client) History(ctx context.Context) ([]history.StoredTransaction, history.Totals, error) {
	entries, err := c.history.List(ctx)
	if err != nil {
		return nil, history.Totals{}, err
	}
	totals, err := c.history.Totals(ctx)
	if err != nil {
		return nil, history.Totals{}, err
	}
	return entries, totals, nil
}

// GhostState flattens the receiver's current state.
func (c *Client) GhostState() ghost.Snapshot {
	return ghost.SnapshotOf(c.ghost.State())
}
