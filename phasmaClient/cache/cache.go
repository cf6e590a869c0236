package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ClaimableEntry is the read-only view of one claimable ghost payment.
type ClaimableEntry struct {
	ID        string          `json:"id" yaml:"id"`
	Address   string          `json:"address" yaml:"address"`
	Status    string          `json:"status" yaml:"status"`
	Amount    decimal.Decimal `json:"amount" yaml:"amount"`
	Degraded  bool            `json:"degraded" yaml:"degraded"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// Cache is a thread-safe store for the latest claimable scan.
// Data can only be changed via UpdateClaimable.
type Cache struct {
	mu         sync.RWMutex
	entries    []ClaimableEntry
	total      decimal.Decimal
	lastUpdate time.Time
	clock      clock.Clock
	logger     zerolog.Logger
}

// New creates a new Cache instance.
func New(clk clock.Clock, logger zerolog.Logger) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		clock:  clk,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// LastUpdated returns the last time the cache was refreshed.
func (c *Cache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// UpdateClaimable atomically replaces the snapshot.
func (c *Cache) UpdateClaimable(entries []ClaimableEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	snapshot := make([]ClaimableEntry, 0, len(entries))
	total := decimal.Zero
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		snapshot = append(snapshot, e)
		total = total.Add(e.Amount)
	}

	c.entries = snapshot
	c.total = total
	c.lastUpdate = now

	c.logger.Debug().
		Int("entries", len(snapshot)).
		Str("total", total.String()).
		Time("updated_at", now).
		Msg("claimable cache updated")
}

// Claimable returns a copy of the snapshot and its total.
func (c *Cache) Claimable() ([]ClaimableEntry, decimal.Decimal) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ClaimableEntry, len(c.entries))
	copy(out, c.entries)
	return out, c.total
}

// Get returns the entry with id, or nil.
func (c *Cache) Get(id string) *ClaimableEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.ID == id {
			entry := e
			return &entry
		}
	}
	return nil
}
