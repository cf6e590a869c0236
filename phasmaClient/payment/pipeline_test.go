package payment

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/chains/common"
	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/db"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/loyalty"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
	"github.com/phasmapay/phasma/phasmaClient/router"
	"github.com/phasmapay/phasma/phasmaClient/signer"
	"github.com/phasmapay/phasma/phasmaClient/signer/signertest"
	"github.com/phasmapay/phasma/phasmaClient/tasks"
)

var (
	testMint    = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	loyaltyMint = solana.MustPublicKeyFromBase58("SKRjqAFEbFsrqf5nfvGBHFbg1NqSrAcqgNNGvGJJiJm")
)

type fixture struct {
	gw        *commontest.Gateway
	wallet    *signertest.Wallet
	session   *signer.Session
	history   *history.Store
	runner    *tasks.Runner
	sender    solana.PublicKey
	recipient solana.PublicKey
	pipeline  *Pipeline
}

func newFixture(t *testing.T, reader nearfield.Reader) *fixture {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	kv := db.NewKVStore(database)
	logger := zerolog.New(zerolog.NewTestWriter(t))

	gw := commontest.NewGateway()
	sender := solana.NewWallet().PublicKey()
	wallet := signertest.NewWallet(sender, "pay-sig")
	session := signer.NewSession(wallet, kv, logger)
	_, err = session.Connect(context.Background())
	require.NoError(t, err)

	runner := tasks.NewRunner(tasks.Options{}, logger)
	t.Cleanup(runner.Close)

	f := &fixture{
		gw:        gw,
		wallet:    wallet,
		session:   session,
		history:   history.New(kv, 100, logger),
		runner:    runner,
		sender:    sender,
		recipient: solana.NewWallet().PublicKey(),
	}
	f.pipeline = NewPipeline(testMint, Dependencies{
		Optimizer: router.NewOptimizer(gw, nil, router.Config{Mint: testMint, Decimals: 6}, logger),
		Signer:    session,
		Gateway:   gw,
		Reader:    reader,
		Loyalty:   loyalty.NewReader(gw, loyaltyMint, logger),
		History:   f.history,
		Tasks:     runner,
	}, logger)
	return f
}

func (f *fixture) fund(t *testing.T, mint solana.PublicKey, raw uint64, decimals uint8) {
	t.Helper()
	account, err := svm.HoldingAccount(f.sender, mint)
	require.NoError(t, err)
	f.gw.SetBalance(account, raw, decimals)
}

func (f *fixture) request(amount string) nearfield.PayRequest {
	return nearfield.PayRequest{Recipient: f.recipient, Amount: decimal.RequireFromString(amount), Label: "Cafe", Mint: testMint}
}

func TestDirectPaymentWithCashback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, testMint, 10_000_000, 6)
	f.fund(t, loyaltyMint, 1_500_000_000, 6)

	plan, err := f.pipeline.Prepare(ctx, f.request("5"))
	require.NoError(t, err)
	assert.Equal(t, router.StrategyDirect, plan.Strategy)
	assert.IsType(t, AwaitingApproval{}, f.pipeline.State())
	assert.Empty(t, f.wallet.Sent())

	success, err := f.pipeline.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, commontest.SignatureFor("pay-sig"), success.Signature)
	assert.True(t, success.Cashback.Equal(decimal.RequireFromString("0.1")), success.Cashback.String())
	assert.IsType(t, Success{}, f.pipeline.State())
	f.runner.Wait()

	entries, err := f.history.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.StrategyDirect, entries[0].Strategy)
	assert.Equal(t, history.DirectionSent, entries[0].Direction)
	assert.Equal(t, f.sender.String(), entries[0].Sender)
	assert.True(t, entries[0].SavedGas.Equal(router.SwapOverhead))

	totals, err := f.history.Totals(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Cashback.Equal(decimal.RequireFromString("0.1")))
}

func TestCancelReturnsToApproval(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, testMint, 10_000_000, 6)

	_, err := f.pipeline.Prepare(ctx, f.request("2"))
	require.NoError(t, err)

	f.wallet.FailSign(errors.New("CLOSED"))
	_, err = f.pipeline.Approve(ctx)
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeUserCancelled))
	assert.IsType(t, AwaitingApproval{}, f.pipeline.State())

	f.wallet.FailSign(nil)
	_, err = f.pipeline.Approve(ctx)
	require.NoError(t, err)
	f.runner.Wait()
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t, nil)
	plan, err := f.pipeline.Prepare(context.Background(), f.request("5"))
	require.Error(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, router.StrategyInsufficient, plan.Strategy)

	failed, ok := f.pipeline.State().(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Err.Error(), "Insufficient funds")

	_, err = f.pipeline.Approve(context.Background())
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeInvalidState))
}

func TestConfirmationFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, testMint, 10_000_000, 6)
	f.gw.FailConfirm(common.ErrTransactionFailed, nil, nil)

	_, err := f.pipeline.Prepare(ctx, f.request("1"))
	require.NoError(t, err)
	_, err = f.pipeline.Approve(ctx)
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeTransaction))
	assert.IsType(t, Failed{}, f.pipeline.State())

	f.runner.Wait()
	entries, err := f.history.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadFromChannel(t *testing.T) {
	recipient := solana.NewWallet().PublicKey()
	url := nearfield.BuildPayURL(recipient, decimal.RequireFromString("3.25"), testMint, "Kiosk")
	channel := nearfield.NewWriterChannel(&bytes.Buffer{}, strings.NewReader("\n"+url+"\n"))

	f := newFixture(t, channel)
	f.fund(t, testMint, 10_000_000, 6)

	plan, err := f.pipeline.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, recipient, plan.Request.Recipient)
	assert.Equal(t, uint64(3_250_000), plan.Raw)
	assert.Equal(t, "Kiosk", plan.Request.Label)
}

func TestPrepareRequiresWallet(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Clear(context.Background()))

	_, err := f.pipeline.PrepareURL(context.Background(), "solana:"+f.recipient.String()+"?amount=1")
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeValidation))
	assert.IsType(t, Idle{}, f.pipeline.State())

	f.pipeline.Reset()
	assert.IsType(t, Idle{}, f.pipeline.State())
}
