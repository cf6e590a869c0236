// Package history keeps the bounded local list of completed transactions.
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/store"
)

// DefaultLimit is the number of entries kept; older ones are evicted.
const DefaultLimit = 100

// Strategy describes how a transaction was routed.
type Strategy string

const (
	StrategyDirect     Strategy = "direct"
	StrategySwap       Strategy = "swap"
	StrategyReceived   Strategy = "received"
	StrategyGhostSweep Strategy = "ghost-sweep"
)

// Direction is sent or received from the user's point of view.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// SenderClaimAll is the sender recorded for aggregate ghost sweeps.
const SenderClaimAll = "ghost-claim-all"

// StoredTransaction is one history entry.
type StoredTransaction struct {
	Signature string          `json:"signature" yaml:"signature"`
	Sender    string          `json:"sender" yaml:"sender"`
	Recipient string          `json:"recipient" yaml:"recipient"`
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	SavedGas  decimal.Decimal `json:"savedGas" yaml:"saved_gas"`
	Cashback  decimal.Decimal `json:"cashback" yaml:"cashback"`
	Strategy  Strategy        `json:"strategy" yaml:"strategy"`
	Direction Direction       `json:"direction" yaml:"direction"`
}

// Totals are the running sums kept beside the list.
type Totals struct {
	Cashback decimal.Decimal `json:"cashback" yaml:"cashback"`
	SavedGas decimal.Decimal `json:"savedGas" yaml:"saved_gas"`
}

// Store persists history entries newest first in the KV store.
type Store struct {
	kv     store.KV
	limit  int
	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a Store keeping at most limit entries.
func New(kv store.KV, limit int, logger zerolog.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		kv:     kv,
		limit:  limit,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Append records tx as the newest entry and adds its cashback and saved gas
// to the running totals. The list and totals are written together; an entry
// whose signature is already recorded is ignored.
func (s *Store) Append(ctx context.Context, tx StoredTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.list(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if tx.Signature != "" && e.Signature == tx.Signature {
			s.logger.Debug().Str("signature", tx.Signature).Msg("transaction already recorded")
			return nil
		}
	}
	entries = append([]StoredTransaction{tx}, entries...)
	if len(entries) > s.limit {
		entries = entries[:s.limit]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode history")
	}

	totals, err := s.totals(ctx)
	if err != nil {
		return err
	}
	err = s.kv.SetMany(ctx, map[string]string{
		store.KeyTransactions:  string(raw),
		store.KeyTotalCashback: totals.Cashback.Add(tx.Cashback).String(),
		store.KeyTotalSavedGas: totals.SavedGas.Add(tx.SavedGas).String(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to write history")
	}

	s.logger.Debug().
		Str("signature", tx.Signature).
		Str("strategy", string(tx.Strategy)).
		Str("amount", tx.Amount.String()).
		Msg("transaction recorded")
	return nil
}

// List returns the entries newest first.
func (s *Store) List(ctx context.Context) ([]StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(ctx)
}

// Totals returns the running cashback and saved gas sums.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals(ctx)
}

// TotalCashback returns the cashback earned so far.
func (s *Store) TotalCashback(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.Totals(ctx)
	return t.Cashback, err
}

// TotalSavedGas returns the fees saved so far.
func (s *Store) TotalSavedGas(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.Totals(ctx)
	return t.SavedGas, err
}

// list reads the entries. An unreadable list is treated as empty.
func (s *Store) list(ctx context.Context) ([]StoredTransaction, error) {
	raw, ok, err := s.kv.Get(ctx, store.KeyTransactions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []StoredTransaction
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn().Err(err).Msg("history is unreadable, starting over")
		return nil, nil
	}
	return entries, nil
}

func (s *Store) totals(ctx context.Context) (Totals, error) {
	cashback, err := s.readDecimal(ctx, store.KeyTotalCashback)
	if err != nil {
		return Totals{}, err
	}
	savedGas, err := s.readDecimal(ctx, store.KeyTotalSavedGas)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Cashback: cashback, SavedGas: savedGas}, nil
}

func (s *Store) readDecimal(ctx context.Context, key string) (decimal.Decimal, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to read %s", key)
	}
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.logger.Warn().Str("key", key).Str("value", raw).Msg("unreadable total reset to zero")
		return decimal.Zero, nil
	}
	return d, nil
}
