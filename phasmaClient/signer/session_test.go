package signer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/chains/common/commontest"
	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/db"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/store"
)

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) AuthorizeOrReauthorize(ctx context.Context, token string) (Authorization, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(Authorization), args.Error(1)
}

func (m *mockWallet) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func newKV(t *testing.T) store.KV {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return db.NewKVStore(database)
}

func TestSession_ConnectPersistsToken(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	wallet := new(mockWallet)
	pub := solana.NewWallet().PublicKey()

	wallet.On("AuthorizeOrReauthorize", mock.Anything, "").
		Return(Authorization{Token: "tok-1", PublicKey: pub}, nil).Once()

	s := NewSession(wallet, kv, zerolog.Nop())
	got, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, pub, got)
	assert.True(t, s.Connected())

	token, ok, err := kv.Get(ctx, store.KeyAuthToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)

	address, ok, err := kv.Get(ctx, store.KeyWalletAddress)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pub.String(), address)
	wallet.AssertExpectations(t)
}

func TestSession_RestoreThenSignReusesToken(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	pub := solana.NewWallet().PublicKey()
	require.NoError(t, kv.Set(ctx, store.KeyAuthToken, "stored"))
	require.NoError(t, kv.Set(ctx, store.KeyWalletAddress, pub.String()))

	wallet := new(mockWallet)
	s := NewSession(wallet, kv, zerolog.Nop())

	restored, err := s.Restore(ctx)
	require.NoError(t, err)
	require.True(t, restored)
	got, ok := s.PublicKey()
	require.True(t, ok)
	assert.Equal(t, pub, got)

	sig := commontest.SignatureFor("sig123")
	tx := &solana.Transaction{}
	wallet.On("AuthorizeOrReauthorize", mock.Anything, "stored").
		Return(Authorization{Token: "fresh", PublicKey: pub}, nil).Once()
	wallet.On("SignAndSend", mock.Anything, tx).Return(sig, nil).Once()

	out, err := s.SignAndSend(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, sig, out)

	token, _, err := kv.Get(ctx, store.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	wallet.AssertExpectations(t)
}

func TestSession_RestoreWithoutStoredState(t *testing.T) {
	s := NewSession(new(mockWallet), newKV(t), zerolog.Nop())
	restored, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, s.Connected())
}

func TestSession_Clear(t *testing.T) {
	ctx := context.Background()
	kv := newKV(t)
	wallet := new(mockWallet)
	pub := solana.NewWallet().PublicKey()
	wallet.On("AuthorizeOrReauthorize", mock.Anything, "").
		Return(Authorization{Token: "tok", PublicKey: pub}, nil)

	s := NewSession(wallet, kv, zerolog.Nop())
	_, err := s.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.Connected())

	_, ok, err := kv.Get(ctx, store.KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_SignAndSendClassifiesCancellation(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		cancelled bool
	}{
		{"closed", errors.New("CLOSED"), true},
		{"user rejected", errors.New("User rejected the request"), true},
		{"canceled", errors.New("request canceled"), true},
		{"declined", errors.New("signing declined"), true},
		{"other", errors.New("insufficient lamports"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet := new(mockWallet)
			pub := solana.NewWallet().PublicKey()
			wallet.On("AuthorizeOrReauthorize", mock.Anything, mock.Anything).
				Return(Authorization{Token: "tok", PublicKey: pub}, nil)
			wallet.On("SignAndSend", mock.Anything, mock.Anything).
				Return(solana.Signature{}, tt.err)

			s := NewSession(wallet, newKV(t), zerolog.Nop())
			_, err := s.SignAndSend(context.Background(), &solana.Transaction{})
			require.Error(t, err)
			assert.Equal(t, tt.cancelled, perrors.IsCode(err, perrors.ErrCodeUserCancelled))
		})
	}
}

func TestSession_AuthorizeFailure(t *testing.T) {
	wallet := new(mockWallet)
	wallet.On("AuthorizeOrReauthorize", mock.Anything, "").
		Return(Authorization{}, errors.New("wallet closed"))

	s := NewSession(wallet, newKV(t), zerolog.Nop())
	_, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.IsCode(err, perrors.ErrCodeUserCancelled))
	assert.False(t, s.Connected())
	wallet.AssertNotCalled(t, "SignAndSend", mock.Anything, mock.Anything)
}

func TestKeypairWallet(t *testing.T) {
	ctx := context.Background()
	key := solana.NewWallet().PrivateKey
	gw := commontest.NewGateway()
	w := NewKeypairWallet(key, gw, zerolog.Nop())

	first, err := w.AuthorizeOrReauthorize(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), first.PublicKey)

	second, err := w.AuthorizeOrReauthorize(ctx, first.Token)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{svm.SetComputeUnitLimitInstruction(40_000)},
		gw.Fee().Blockhash,
		solana.TransactionPayer(key.PublicKey()),
	)
	require.NoError(t, err)

	sig, err := w.SignAndSend(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	require.Len(t, gw.Submitted(), 1)
}

func TestKeypairFileRoundTrip(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")

	require.NoError(t, SaveKeypairFile(path, key))
	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}
