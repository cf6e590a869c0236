package history

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/db"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/store"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
)

func newKV(t *testing.T) *db.KVStore {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return db.NewKVStore(database)
}

func entry(sig string, amount, cashback, savedGas string) StoredTransaction {
	return StoredTransaction{
		Signature: sig,
		Sender:    "sender",
		Recipient: "recipient",
		Amount:    decimal.RequireFromString(amount),
		Timestamp: time.UnixMilli(1_700_000_000_000).UTC(),
		Cashback:  decimal.RequireFromString(cashback),
		SavedGas:  decimal.RequireFromString(savedGas),
		Strategy:  StrategyDirect,
		Direction: DirectionSent,
	}
}

func TestAppendNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(newKV(t), 0, zerolog.Nop())

	require.NoError(t, s.Append(ctx, entry("one", "1.5", "0.015", "0.00037")))
	require.NoError(t, s.Append(ctx, entry("two", "2", "0.02", "0.00037")))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Signature)
	assert.Equal(t, "one", entries[1].Signature)
	assert.True(t, decimal.RequireFromString("1.5").Equal(entries[1].Amount))
	assert.True(t, entries[1].Timestamp.Equal(time.UnixMilli(1_700_000_000_000)))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.035", totals.Cashback.String())
	assert.Equal(t, "0.00074", totals.SavedGas.String())
}

func TestAppendEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := New(newKV(t), 3, zerolog.Nop())

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, entry(fmt.Sprintf("sig-%d", i), "1", "0.01", "0")))
	}
	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sig-4", entries[0].Signature)
	assert.Equal(t, "sig-2", entries[2].Signature)

	// totals keep counting evicted entries
	cashback, err := s.TotalCashback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.05", cashback.String())
}

func TestDefaultLimit(t *testing.T) {
	ctx := context.Background()
	s := New(newKV(t), 0, zerolog.Nop())
	for i := 0; i < DefaultLimit+10; i++ {
		require.NoError(t, s.Append(ctx, entry(fmt.Sprintf("sig-%d", i), "1", "0", "0")))
	}
	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLimit)
}

func TestUnreadableValues(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	require.NoError(t, kv.Set(ctx, store.KeyTransactions, "[{broken"))
	require.NoError(t, kv.Set(ctx, store.KeyTotalSavedGas, "NaN-ish"))
	s := New(kv, 0, zerolog.Nop())

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	saved, err := s.TotalSavedGas(ctx)
	require.NoError(t, err)
	assert.True(t, saved.IsZero())

	require.NoError(t, s.Append(ctx, entry("fresh", "1", "0", "0.00037")))
	entries, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// lockedKV reports "database is locked" on the first SetMany. When
// writeFirst is set the first batch is committed before the error.
type lockedKV struct {
	*db.KVStore
	writeFirst bool
	calls      atomic.Int32
}

func (k *lockedKV) SetMany(ctx context.Context, entries map[string]string) error {
	if k.calls.Add(1) == 1 {
		if k.writeFirst {
			if err := k.KVStore.SetMany(ctx, entries); err != nil {
				return err
			}
		}
		return perrors.NewDatabaseError("database is locked", nil)
	}
	return k.KVStore.SetMany(ctx, entries)
}

func TestAppendRetriedByRunnerRecordsOnce(t *testing.T) {
	for _, writeFirst := range []bool{false, true} {
		t.Run(fmt.Sprintf("write_first=%v", writeFirst), func(t *testing.T) {
			ctx := context.Background()
			kv := &lockedKV{KVStore: newKV(t), writeFirst: writeFirst}
			s := New(kv, 0, zerolog.Nop())

			retry := perrors.DefaultRetryConfig()
			retry.InitialDelay = time.Millisecond
			retry.MaxDelay = time.Millisecond
			runner := tasks.NewRunner(tasks.Options{Retry: retry}, zerolog.Nop())
			runner.Submit("history", func(ctx context.Context) error {
				return s.Append(ctx, entry("sig-1", "1", "0.01", "0.00037"))
			})
			runner.Close()

			assert.Equal(t, int32(2), kv.calls.Load())
			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "sig-1", entries[0].Signature)

			totals, err := s.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, "0.01", totals.Cashback.String())
			assert.Equal(t, "0.00037", totals.SavedGas.String())
		})
	}
}

func TestAppendIgnoresKnownSignature(t *testing.T) {
	ctx := context.Background()
	s := New(newKV(t), 0, zerolog.Nop())

	require.NoError(t, s.Append(ctx, entry("dup", "1", "0.01", "0")))
	require.NoError(t, s.Append(ctx, entry("dup", "1", "0.01", "0")))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	cashback, err := s.TotalCashback(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.01", cashback.String())
}
