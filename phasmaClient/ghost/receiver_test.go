package ghost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/claimable"
	"github.com/phasmapay/phasma/phasmaClient/db"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/keystore"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/poller"
	"github.com/phasmapay/phasma/phasmaClient/signer"
	"github.com/phasmapay/phasma/phasmaClient/signer/signertest"
	"github.com/phasmapay/phasma/phasmaClient/store"
	"github.com/phasmapay/phasma/phasmaClient/sweep"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
)

var testMint = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")

// env is shared by every receiver of a test: one ledger, one store, one wallet.
type env struct {
	clk     *clock.Mock
	gw      *commontest.Gateway
	kv      store.KV
	keys    *keystore.Store
	history *history.Store
	poller  *poller.Poller
	builder *sweep.Builder
	session *signer.Session
	wallet  *signertest.Wallet
	runner  *tasks.Runner
	dest    solana.PublicKey
	logger  zerolog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	kv := db.NewKVStore(database)

	clk := clock.NewMock()
	clk.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := zerolog.New(zerolog.NewTestWriter(t))
	gw := commontest.NewGateway()

	dest := solana.NewWallet().PublicKey()
	wallet := signertest.NewWallet(dest, "sig123")
	session := signer.NewSession(wallet, kv, logger)
	_, err = session.Connect(context.Background())
	require.NoError(t, err)

	runner := tasks.NewRunner(tasks.Options{}, logger)
	t.Cleanup(runner.Close)

	return &env{
		clk:     clk,
		gw:      gw,
		kv:      kv,
		keys:    keystore.New(kv, clk, logger),
		history: history.New(kv, 100, logger),
		poller:  poller.New(gw, poller.Config{Mint: testMint}, clk, nil, logger),
		builder: sweep.NewBuilder(gw, sweep.Config{Mint: testMint, Decimals: 6}, logger),
		session: session,
		wallet:  wallet,
		runner:  runner,
		dest:    dest,
		logger:  logger,
	}
}

func (e *env) receiver(channel nearfield.Publisher) *Receiver {
	return NewReceiver(Config{Mint: testMint, Decimals: 6}, Dependencies{
		Keys:    e.keys,
		Poller:  e.poller,
		Sweeper: e.builder,
		Gateway: e.gw,
		Channel: channel,
		Signer:  e.session,
		History: e.history,
		Tasks:   e.runner,
		Clock:   e.clk,
	}, e.logger)
}

func (e *env) aggregator() *claimable.Aggregator {
	return claimable.NewAggregator(claimable.Config{Mint: testMint, Decimals: 6}, claimable.Dependencies{
		Keys:    e.keys,
		Gateway: e.gw,
		Sweeper: e.builder,
		Signer:  e.session,
		History: e.history,
		Clock:   e.clk,
	}, e.logger)
}

func (e *env) holding(t *testing.T, owner solana.PublicKey) solana.PublicKey {
	t.Helper()
	account, err := svm.HoldingAccount(owner, testMint)
	require.NoError(t, err)
	return account
}

// tick advances one poll interval and waits until account was queried calls times.
func (e *env) tick(t *testing.T, account solana.PublicKey, calls int) {
	t.Helper()
	e.clk.Add(poller.DefaultInterval)
	require.Eventually(t, func() bool { return e.gw.Calls(account) >= calls }, time.Second, time.Millisecond)
}

func waitState[S State](t *testing.T, r *Receiver) S {
	t.Helper()
	var out S
	require.Eventually(t, func() bool {
		s, ok := r.State().(S)
		out = s
		return ok
	}, time.Second, time.Millisecond, "state stayed %s", r.State().Name())
	return out
}

func TestScenarioReceiveAndClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	emulator := nearfield.NewEmulator(e.logger)
	r := e.receiver(emulator)

	var (
		mu    sync.Mutex
		names []string
	)
	r.OnStateChange(func(s State) {
		mu.Lock()
		names = append(names, s.Name())
		mu.Unlock()
	})

	require.NoError(t, r.Start(ctx, decimal.RequireFromString("5.00")))
	polling, ok := r.State().(Polling)
	require.True(t, ok, "state is %s", r.State().Name())
	assert.True(t, emulator.Active())

	stored, err := e.keys.Get(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusPending, stored.Status)

	account := e.holding(t, polling.Address)
	e.gw.SetBalanceFunc(account, func(call int) (common.TokenBalance, error) {
		if call < 2 {
			return common.TokenBalance{Amount: 0, Decimals: 6}, nil
		}
		return common.TokenBalance{Amount: 5_000_000, Decimals: 6}, nil
	})

	e.tick(t, account, 1)
	assert.IsType(t, Polling{}, r.State())
	e.tick(t, account, 2)

	received := waitState[Received](t, r)
	assert.Equal(t, uint64(5_000_000), received.Raw)
	assert.Equal(t, "5", received.Amount.String())
	require.Eventually(t, func() bool { return !emulator.Active() }, time.Second, time.Millisecond)

	stored, err = e.keys.Get(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusReceived, stored.Status)
	require.NotNil(t, stored.ReceivedAmount)
	assert.Equal(t, uint64(5_000_000), *stored.ReceivedAmount)

	done, err := r.Claim(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, commontest.SignatureFor("sig123"), done.Signature)
	assert.Equal(t, done, r.State())
	e.runner.Wait()

	_, err = e.keys.Get(ctx, polling.SessionID)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeSessionNotFound))

	entries, err := e.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("5.0")))
	assert.Equal(t, history.StrategyReceived, entries[0].Strategy)
	assert.Equal(t, polling.Address.String(), entries[0].Sender)

	sent := e.wallet.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, e.dest, sent[0].Message.AccountKeys[0])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"generating", "writing", "polling", "received", "claiming", "done"}, names)
}

func TestScenarioTimeout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	emulator := nearfield.NewEmulator(e.logger)
	r := e.receiver(emulator)

	require.NoError(t, r.Start(ctx, decimal.RequireFromString("2.00")))
	polling := r.State().(Polling)

	e.clk.Add(poller.DefaultTimeout)
	failed := waitState[Failed](t, r)
	assert.True(t, perrors.IsCode(failed.Err, perrors.ErrCodeTimeout))
	assert.Equal(t, polling.SessionID, failed.SessionID)
	require.Eventually(t, func() bool { return !emulator.Active() }, time.Second, time.Millisecond)

	stored, err := e.keys.Get(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusPending, stored.Status)
}

func TestScenarioConcurrentSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ra := e.receiver(nearfield.NewEmulator(e.logger))
	rb := e.receiver(nearfield.NewEmulator(e.logger))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); assert.NoError(t, ra.Start(ctx, decimal.RequireFromString("1.00"))) }()
	go func() { defer wg.Done(); assert.NoError(t, rb.Start(ctx, decimal.RequireFromString("3.00"))) }()
	wg.Wait()

	pa := ra.State().(Polling)
	pb := rb.State().(Polling)
	require.NotEqual(t, pa.SessionID, pb.SessionID)

	accountA := e.holding(t, pa.Address)
	accountB := e.holding(t, pb.Address)
	e.gw.SetBalance(accountB, 3_000_000, 6)

	e.clk.Add(poller.DefaultInterval)
	require.Eventually(t, func() bool { return e.gw.Calls(accountA) >= 1 && e.gw.Calls(accountB) >= 1 }, time.Second, time.Millisecond)

	received := waitState[Received](t, rb)
	assert.Equal(t, pb.SessionID, received.SessionID)
	assert.IsType(t, Polling{}, ra.State())

	a, err := e.keys.Get(ctx, pa.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusPending, a.Status)
	assert.Nil(t, a.ReceivedAmount)

	ra.Reset(ctx)
	rb.Reset(ctx)
}

func TestClaimFailureKeepsRecordClaimable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.receiver(nearfield.NewEmulator(e.logger))

	require.NoError(t, r.Start(ctx, decimal.RequireFromString("1.50")))
	polling := r.State().(Polling)
	account := e.holding(t, polling.Address)
	e.gw.SetBalance(account, 1_500_000, 6)
	e.tick(t, account, 1)
	waitState[Received](t, r)

	e.wallet.FailSign(errors.New("wallet crashed"))
	_, err := r.Claim(ctx, polling.SessionID)
	require.Error(t, err)

	failed, ok := r.State().(Failed)
	require.True(t, ok)
	assert.Equal(t, polling.SessionID, failed.SessionID)

	stored, err := e.keys.Get(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusFailed, stored.Status)

	items, err := e.aggregator().ListClaimable(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, polling.SessionID, items[0].ID)

	e.wallet.FailSign(nil)
	done, err := r.Claim(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "1.5", done.Amount.String())
}

func TestClaimUnknownSessionKeepsState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.receiver(nearfield.NewEmulator(e.logger))

	var transitions []string
	r.OnStateChange(func(s State) { transitions = append(transitions, s.Name()) })

	require.NoError(t, r.Start(ctx, decimal.NewFromInt(1)))
	polling := r.State().(Polling)
	account := e.holding(t, polling.Address)
	e.gw.SetBalance(account, 1_000_000, 6)
	e.tick(t, account, 1)
	received := waitState[Received](t, r)

	r.mu.Lock()
	before := len(transitions)
	r.mu.Unlock()

	_, err := r.Claim(ctx, "ghost-does-not-exist")
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeSessionNotFound))
	assert.Equal(t, received, r.State())

	r.mu.Lock()
	assert.Len(t, transitions, before)
	r.mu.Unlock()
	assert.Empty(t, e.wallet.Sent())

	done, err := r.Claim(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "1", done.Amount.String())
}

func TestClaimUserCancelled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.receiver(nearfield.NewEmulator(e.logger))

	require.NoError(t, r.Start(ctx, decimal.NewFromInt(1)))
	polling := r.State().(Polling)
	account := e.holding(t, polling.Address)
	e.gw.SetBalance(account, 1_000_000, 6)
	e.tick(t, account, 1)
	waitState[Received](t, r)

	e.wallet.FailSign(errors.New("User rejected the request"))
	_, err := r.Claim(ctx, "")
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeUserCancelled))
	assert.IsType(t, Failed{}, r.State())
}

func TestStartRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.receiver(nearfield.NewEmulator(e.logger))

	err := r.Start(ctx, decimal.Zero)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeValidation))
	assert.IsType(t, Idle{}, r.State())

	// positive, but below one smallest unit of a 6-decimal token
	err = r.Start(ctx, decimal.RequireFromString("0.0000001"))
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeValidation))
	assert.IsType(t, Idle{}, r.State())

	require.NoError(t, r.Start(ctx, decimal.NewFromInt(1)))
	err = r.Start(ctx, decimal.NewFromInt(1))
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeInvalidState))

	_, err = r.Claim(ctx, "")
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeInvalidState))
	r.Reset(ctx)

	require.NoError(t, e.session.Clear(ctx))
	err = r.Start(ctx, decimal.NewFromInt(1))
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeValidation))

	list, err := e.keys.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestResetCancelsPollingAndKeepsRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	emulator := nearfield.NewEmulator(e.logger)
	r := e.receiver(emulator)

	require.NoError(t, r.Start(ctx, decimal.NewFromInt(4)))
	polling := r.State().(Polling)
	account := e.holding(t, polling.Address)

	r.Reset(ctx)
	assert.IsType(t, Idle{}, r.State())
	assert.False(t, emulator.Active())

	e.gw.SetBalance(account, 4_000_000, 6)
	e.clk.Add(poller.DefaultTimeout)
	time.Sleep(20 * time.Millisecond)
	assert.IsType(t, Idle{}, r.State())

	stored, err := e.keys.Get(ctx, polling.SessionID)
	require.NoError(t, err)
	assert.Equal(t, keystore.StatusPending, stored.Status)

	require.NoError(t, r.Start(ctx, decimal.NewFromInt(1)))
	assert.IsType(t, Polling{}, r.State())
	r.Reset(ctx)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string) error { return nearfield.ErrBusy }
func (failingPublisher) Release(context.Context) error         { return nil }

func TestPublishFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r := e.receiver(failingPublisher{})

	err := r.Start(ctx, decimal.NewFromInt(2))
	require.ErrorIs(t, err, nearfield.ErrBusy)

	failed, ok := r.State().(Failed)
	require.True(t, ok)
	_, err = e.keys.Get(ctx, failed.SessionID)
	require.NoError(t, err)

	r.Reset(ctx)
	assert.IsType(t, Idle{}, r.State())
}

func TestSnapshotOf(t *testing.T) {
	snap := SnapshotOf(Failed{SessionID: "ghost-1", Err: errors.New("boom")})
	assert.Equal(t, Snapshot{State: "failed", SessionID: "ghost-1", Error: "boom"}, snap)
	assert.Equal(t, "idle", SnapshotOf(Idle{}).State)
}
