package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
)

var testMint = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

type recorder struct {
	received atomic.Int32
	amount   atomic.Uint64
	timeouts atomic.Int32
}

func (r *recorder) onReceived(amount uint64) {
	r.amount.Store(amount)
	r.received.Add(1)
}

func (r *recorder) onTimeout() {
	r.timeouts.Add(1)
}

type fixture struct {
	gw      *commontest.Gateway
	clk     *clock.Mock
	poller  *Poller
	owner   solana.PublicKey
	account solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := commontest.NewGateway()
	clk := clock.NewMock()
	owner := solana.NewWallet().PublicKey()
	account, err := svm.HoldingAccount(owner, testMint)
	require.NoError(t, err)

	p := New(gw, Config{Mint: testMint}, clk, nil, zerolog.New(zerolog.NewTestWriter(t)))
	return &fixture{gw: gw, clk: clk, poller: p, owner: owner, account: account}
}

// tick advances the clock by one interval and waits for the poll it triggers.
func (f *fixture) tick(t *testing.T, wantCalls int) {
	t.Helper()
	f.clk.Add(DefaultInterval)
	require.Eventually(t, func() bool {
		return f.gw.Calls(f.account) == wantCalls
	}, time.Second, time.Millisecond)
}

func TestWatchFiresOnceAfterFunding(t *testing.T) {
	f := newFixture(t)
	const k = 2
	f.gw.SetBalanceFunc(f.account, func(call int) (common.TokenBalance, error) {
		if call <= k {
			return common.TokenBalance{Amount: 1_000_000, Decimals: 6}, nil
		}
		return common.TokenBalance{Amount: 5_000_000, Decimals: 6}, nil
	})

	var rec recorder
	cancel, err := f.poller.Watch(context.Background(), f.owner, 5_000_000, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)

	for i := 1; i <= k; i++ {
		f.tick(t, i)
		assert.Zero(t, rec.received.Load(), "fired early at tick %d", i)
	}

	f.tick(t, k+1)
	require.Eventually(t, func() bool { return rec.received.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(5_000_000), rec.amount.Load())

	f.clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, k+1, f.gw.Calls(f.account))
	assert.Equal(t, int32(1), rec.received.Load())
	assert.Zero(t, rec.timeouts.Load())

	cancel()
	cancel()
	assert.Equal(t, int32(1), rec.received.Load())
}

func TestWatchTimesOut(t *testing.T) {
	f := newFixture(t)
	f.gw.SetBalance(f.account, 10, 6)

	var rec recorder
	cancel, err := f.poller.Watch(context.Background(), f.owner, 5_000_000, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)
	defer cancel()

	f.clk.Add(DefaultTimeout - time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, rec.timeouts.Load())

	f.clk.Add(time.Second)
	require.Eventually(t, func() bool { return rec.timeouts.Load() == 1 }, time.Second, time.Millisecond)

	calls := f.gw.Calls(f.account)
	f.clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, calls, f.gw.Calls(f.account))
	assert.Equal(t, int32(1), rec.timeouts.Load())
	assert.Zero(t, rec.received.Load())
}

func TestWatchToleratesGatewayErrors(t *testing.T) {
	f := newFixture(t)
	f.gw.SetBalanceFunc(f.account, func(call int) (common.TokenBalance, error) {
		if call == 1 {
			return common.TokenBalance{}, errors.New("connection reset")
		}
		return common.TokenBalance{Amount: 2_000_000, Decimals: 6}, nil
	})

	var rec recorder
	_, err := f.poller.Watch(context.Background(), f.owner, 2_000_000, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)

	f.tick(t, 1)
	assert.Zero(t, rec.received.Load())
	f.tick(t, 2)
	require.Eventually(t, func() bool { return rec.received.Load() == 1 }, time.Second, time.Millisecond)
}

func TestWatchMissingAccountIsZero(t *testing.T) {
	f := newFixture(t)

	var rec recorder
	_, err := f.poller.Watch(context.Background(), f.owner, 1, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)

	f.tick(t, 1)
	f.tick(t, 2)
	assert.Zero(t, rec.received.Load())

	f.gw.SetBalance(f.account, 1, 6)
	f.tick(t, 3)
	require.Eventually(t, func() bool { return rec.received.Load() == 1 }, time.Second, time.Millisecond)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.gw.SetBalance(f.account, 5_000_000, 6)

	var rec recorder
	cancel, err := f.poller.Watch(context.Background(), f.owner, 5_000_000, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)

	cancel()
	cancel()
	f.clk.Add(DefaultTimeout * 2)
	time.Sleep(10 * time.Millisecond)

	assert.Zero(t, rec.received.Load())
	assert.Zero(t, rec.timeouts.Load())
}

func TestContextCancelStopsWatch(t *testing.T) {
	f := newFixture(t)
	ctx, cancelCtx := context.WithCancel(context.Background())

	var rec recorder
	cancel, err := f.poller.Watch(ctx, f.owner, 5_000_000, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)

	cancelCtx()
	f.gw.SetBalance(f.account, 5_000_000, 6)
	f.clk.Add(DefaultTimeout * 2)
	time.Sleep(10 * time.Millisecond)

	assert.Zero(t, rec.received.Load())
	assert.Zero(t, rec.timeouts.Load())
	cancel()
}

// stallingGateway blocks balance queries until the caller gives up.
type stallingGateway struct {
	*commontest.Gateway
	started chan struct{}
}

func (g *stallingGateway) GetTokenAccountBalance(ctx context.Context, _ solana.PublicKey) (common.TokenBalance, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return common.TokenBalance{}, ctx.Err()
}

func TestStalledQueryDoesNotDelayTimeout(t *testing.T) {
	gw := &stallingGateway{Gateway: commontest.NewGateway(), started: make(chan struct{}, 1)}
	clk := clock.NewMock()
	p := New(gw, Config{Mint: testMint, CallTimeout: 20 * time.Millisecond}, clk, nil, zerolog.New(zerolog.NewTestWriter(t)))

	rec := &recorder{}
	stop, err := p.Watch(context.Background(), solana.NewWallet().PublicKey(), 1, rec.onReceived, rec.onTimeout)
	require.NoError(t, err)
	defer stop()

	clk.Add(DefaultInterval)
	select {
	case <-gw.started:
	case <-time.After(time.Second):
		t.Fatal("balance query never started")
	}
	clk.Add(DefaultTimeout)

	require.Eventually(t, func() bool { return rec.timeouts.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), rec.received.Load())
}
