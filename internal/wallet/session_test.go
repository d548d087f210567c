package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// fakeProvider scripts provider behavior and captures the account-change
// subscription.
type fakeProvider struct {
	key        solana.PublicKey
	connectErr error
	silentErr  error
	signErr    error

	disconnects   int
	unsubscribes  int
	accountChange func(key *solana.PublicKey)
}

func (p *fakeProvider) Connect(_ context.Context, opts ConnectOpts) (solana.PublicKey, error) {
	if opts.OnlyIfTrusted && p.silentErr != nil {
		return solana.PublicKey{}, p.silentErr
	}
	if p.connectErr != nil {
		return solana.PublicKey{}, p.connectErr
	}
	return p.key, nil
}

func (p *fakeProvider) Disconnect(_ context.Context) error {
	p.disconnects++
	return nil
}

func (p *fakeProvider) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if p.signErr != nil {
		return nil, p.signErr
	}
	return tx, nil
}

func (p *fakeProvider) OnAccountChange(fn func(key *solana.PublicKey)) func() {
	p.accountChange = fn
	return func() { p.unsubscribes++ }
}

// fakeBalances serves scripted lamport balances per address.
type fakeBalances struct {
	balances map[solana.PublicKey]uint64
	err      error
}

func (b *fakeBalances) GetBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &rpc.GetBalanceResult{Value: b.balances[account]}, nil
}

func TestSessionConnect(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	provider := &fakeProvider{key: key}
	balances := &fakeBalances{balances: map[solana.PublicKey]uint64{key: 2_500_000_000}}

	s := NewSession(provider, balances, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))

	got, ok := s.PublicKey()
	require.True(t, ok)
	assert.Equal(t, key, got)
	assert.True(t, s.Connected())
	assert.True(t, decimal.NewFromFloat(2.5).Equal(s.Balance()))
}

func TestSessionConnect_NoProvider(t *testing.T) {
	s := NewSession(nil, nil, zap.NewNop())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrProviderNotFound)
}

func TestSessionConnect_UserRejected(t *testing.T) {
	provider := &fakeProvider{connectErr: models.ErrUserRejected}
	s := NewSession(provider, nil, zap.NewNop())

	err := s.Connect(context.Background())
	require.Error(t, err)

	var pe *models.PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ErrCodeUserRejected, pe.Code)
	assert.False(t, s.Connected())
}

func TestSessionConnect_PendingRequestRejected(t *testing.T) {
	provider := &fakeProvider{key: solana.NewWallet().PublicKey()}
	s := NewSession(provider, nil, zap.NewNop())

	s.mu.Lock()
	s.connecting = true
	s.mu.Unlock()

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConnectionPending)
}

func TestSessionConnect_UnknownProviderError(t *testing.T) {
	provider := &fakeProvider{connectErr: errors.New("bridge crashed")}
	s := NewSession(provider, nil, zap.NewNop())

	err := s.Connect(context.Background())
	require.Error(t, err)

	var pe *models.PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ErrCodeUnknown, pe.Code)
}

func TestSessionInit_SilentReconnectDeclined(t *testing.T) {
	provider := &fakeProvider{
		key:       solana.NewWallet().PublicKey(),
		silentErr: models.ErrUserRejected,
	}
	s := NewSession(provider, nil, zap.NewNop())

	// A declined silent reconnect is not an error and leaves the session
	// disconnected.
	s.Init(context.Background())
	assert.False(t, s.Connected())
	require.NotNil(t, provider.accountChange, "session must subscribe to account changes")
}

func TestSessionInit_SilentReconnectSucceeds(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	provider := &fakeProvider{key: key}
	s := NewSession(provider, nil, zap.NewNop())

	s.Init(context.Background())
	assert.True(t, s.Connected())
}

func TestSessionDisconnect_AlwaysClearsState(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	provider := &fakeProvider{key: key}
	balances := &fakeBalances{balances: map[solana.PublicKey]uint64{key: 1_000_000_000}}

	s := NewSession(provider, balances, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))

	s.Disconnect(context.Background())

	assert.False(t, s.Connected())
	assert.True(t, decimal.Zero.Equal(s.Balance()))
	assert.Equal(t, 1, provider.disconnects)
}

func TestSessionClose_Unsubscribes(t *testing.T) {
	provider := &fakeProvider{key: solana.NewWallet().PublicKey()}
	s := NewSession(provider, nil, zap.NewNop())

	s.Init(context.Background())
	s.Close(context.Background())

	assert.Equal(t, 1, provider.unsubscribes)
	assert.False(t, s.Connected())
}

func TestSessionAccountChange_ReplacesState(t *testing.T) {
	oldKey := solana.NewWallet().PublicKey()
	newKey := solana.NewWallet().PublicKey()
	provider := &fakeProvider{key: oldKey}
	balances := &fakeBalances{balances: map[solana.PublicKey]uint64{
		oldKey: 5_000_000_000,
		newKey: 1_000_000_000,
	}}

	s := NewSession(provider, balances, zap.NewNop())
	s.Init(context.Background())
	require.True(t, s.Connected())

	provider.accountChange(&newKey)

	got, ok := s.PublicKey()
	require.True(t, ok)
	assert.Equal(t, newKey, got, "the new account replaces the old, never merges")
	assert.True(t, decimal.NewFromFloat(1.0).Equal(s.Balance()))
}

func TestSessionAccountChange_NilKeyDisconnects(t *testing.T) {
	provider := &fakeProvider{key: solana.NewWallet().PublicKey()}
	s := NewSession(provider, nil, zap.NewNop())
	s.Init(context.Background())

	provider.accountChange(nil)

	assert.False(t, s.Connected())
	assert.True(t, decimal.Zero.Equal(s.Balance()))
}

func TestSessionRefreshBalance_FailureKeepsPriorValue(t *testing.T) {
	key := solana.NewWallet().PublicKey()
	provider := &fakeProvider{key: key}
	balances := &fakeBalances{balances: map[solana.PublicKey]uint64{key: 3_000_000_000}}

	s := NewSession(provider, balances, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	require.True(t, decimal.NewFromFloat(3.0).Equal(s.Balance()))

	balances.err = errors.New("rpc timeout")
	s.RefreshBalance(context.Background(), nil)

	assert.True(t, decimal.NewFromFloat(3.0).Equal(s.Balance()),
		"a failed refresh keeps the previous balance")
}

func TestSessionSignTransaction_NotConnected(t *testing.T) {
	provider := &fakeProvider{key: solana.NewWallet().PublicKey()}
	s := NewSession(provider, nil, zap.NewNop())

	_, err := s.SignTransaction(context.Background(), &solana.Transaction{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWalletNotConnected)
}

func TestSessionSignTransaction_RejectionClassified(t *testing.T) {
	provider := &fakeProvider{
		key:     solana.NewWallet().PublicKey(),
		signErr: models.ErrUserRejected,
	}
	s := NewSession(provider, nil, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.SignTransaction(context.Background(), &solana.Transaction{})
	require.Error(t, err)

	var pe *models.PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ErrCodeUserRejected, pe.Code)
}
