package keystore

import (
	"context"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/store"
)

// Store persists ephemeral payments as one JSON collection in the KV store.
// Every mutation is a whole-collection read-modify-write under mu.
type Store struct {
	kv     store.KV
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	migrated bool
}

// New returns a Store over kv. A nil clock uses wall time.
func New(kv store.KV, clk clock.Clock, logger zerolog.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		kv:     kv,
		clock:  clk,
		logger: logger.With().Str("component", "keystore").Logger(),
	}
}

// Generate creates a fresh ed25519 keypair. No network access.
func (s *Store) Generate() (Keypair, error) {
	secret, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Keypair{}, perrors.NewInternalError("failed to generate keypair", err)
	}
	return Keypair{SecretKey: secret, PublicKey: secret.PublicKey()}, nil
}

// Save appends payment to the durable collection. It returns only after the
// write is durable, so callers may publish the address afterwards.
func (s *Store) Save(ctx context.Context, payment EphemeralPayment) error {
	if payment.ID == "" || len(payment.SecretKey) != 64 {
		return perrors.NewValidationError("payment needs an id and a 64-byte secret key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payments, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if p.ID == payment.ID || p.PublicAddress.Equals(payment.PublicAddress) {
			return perrors.NewValidationError("ghost payment already stored").
				WithContext("id", payment.ID)
		}
	}
	if err := s.persist(ctx, append(payments, payment)); err != nil {
		return err
	}

	s.logger.Info().
		Str("session", payment.ID).
		Str("address", payment.PublicAddress.String()).
		Msg("ghost payment saved")
	return nil
}

// Update merges patch into the record with id. An unknown id is a no-op.
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payments, err := s.load(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range payments {
		if payments[i].ID == id {
			payments[i] = payments[i].apply(patch)
			found = true
			break
		}
	}
	if !found {
		s.logger.Warn().Str("session", id).Msg("update for unknown ghost payment ignored")
		return nil
	}
	return s.persist(ctx, payments)
}

// Remove deletes the record with id.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.RemoveMany(ctx, []string{id})
}

// RemoveMany deletes every record whose id is in ids, in one write.
func (s *Store) RemoveMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payments, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := payments[:0]
	for _, p := range payments {
		if _, ok := drop[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(payments) {
		return nil
	}
	removed := len(payments) - len(kept)
	if err := s.persist(ctx, kept); err != nil {
		return err
	}
	s.logger.Debug().Int("removed", removed).Msg("ghost payments removed")
	return nil
}

// List returns every stored record in insertion order.
func (s *Store) List(ctx context.Context) ([]EphemeralPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the record with id or a SESSION_NOT_FOUND error.
func (s *Store) Get(ctx context.Context, id string) (EphemeralPayment, error) {
	payments, err := s.List(ctx)
	if err != nil {
		return EphemeralPayment{}, err
	}
	for _, p := range payments {
		if p.ID == id {
			return p, nil
		}
	}
	return EphemeralPayment{}, perrors.NewSessionNotFoundError(id)
}

// LatestClaimable returns the most recently created record that is received
// or failed.
func (s *Store) LatestClaimable(ctx context.Context) (EphemeralPayment, error) {
	payments, err := s.List(ctx)
	if err != nil {
		return EphemeralPayment{}, err
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})
	for _, p := range payments {
		if p.Status.Claimable() {
			return p, nil
		}
	}
	return EphemeralPayment{}, perrors.NewSessionNotFoundError("")
}

// load reads the collection. Callers hold mu.
func (s *Store) load(ctx context.Context) ([]EphemeralPayment, error) {
	if !s.migrated {
		s.migrated = true
		s.migrateLegacy(ctx)
	}

	raw, ok, err := s.kv.Get(ctx, store.KeyGhostPayments)
	if err != nil {
		return nil, perrors.NewDatabaseError("failed to read ghost payments", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	payments, err := decodeCollection(raw)
	if err != nil {
		return nil, perrors.NewDatabaseError("ghost payment collection is corrupt", err).
			WithSeverity(perrors.SeverityCritical)
	}
	return payments, nil
}

func (s *Store) persist(ctx context.Context, payments []EphemeralPayment) error {
	raw, err := encodeCollection(payments)
	if err != nil {
		return perrors.NewInternalError("failed to encode ghost payments", err)
	}
	if err := s.kv.Set(ctx, store.KeyGhostPayments, raw); err != nil {
		return perrors.NewDatabaseError("failed to write ghost payments", err)
	}
	return nil
}

// migrateLegacy upgrades the single-slot session key into a received record.
// Failures are logged; the legacy slot stays in place when the upgrade fails.
func (s *Store) migrateLegacy(ctx context.Context) {
	raw, ok, err := s.kv.Get(ctx, store.KeyLegacySession)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read legacy session key")
		return
	}
	if !ok || raw == "" {
		return
	}
	if err := s.upgradeLegacy(ctx, raw); err != nil {
		s.logger.Warn().Err(err).Msg("legacy session key migration failed")
		return
	}
	if err := s.kv.Remove(ctx, store.KeyLegacySession); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remove legacy session key")
	}
}

func (s *Store) upgradeLegacy(ctx context.Context, raw string) error {
	secret, err := decodeLegacySecret(raw)
	if err != nil {
		return errors.Wrap(err, "invalid legacy session key")
	}

	var payments []EphemeralPayment
	current, ok, err := s.kv.Get(ctx, store.KeyGhostPayments)
	if err != nil {
		return errors.Wrap(err, "failed to read ghost payments")
	}
	if ok && current != "" {
		if payments, err = decodeCollection(current); err != nil {
			return errors.Wrap(err, "ghost payment collection is corrupt")
		}
	}

	address := secret.PublicKey()
	for _, p := range payments {
		if p.PublicAddress.Equals(address) {
			return nil
		}
	}

	now := s.clock.Now()
	migrated := EphemeralPayment{
		ID:             NewSessionID(now),
		SecretKey:      secret,
		PublicAddress:  address,
		ExpectedAmount: decimal.Zero,
		CreatedAt:      now,
		Status:         StatusReceived,
	}
	if err := s.persist(ctx, append(payments, migrated)); err != nil {
		return err
	}
	s.logger.Info().
		Str("session", migrated.ID).
		Str("address", address.String()).
		Msg("legacy ghost session migrated")
	return nil
}
