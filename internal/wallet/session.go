package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// BalanceReader is the single RPC read the session needs. chain.Client
// satisfies it.
type BalanceReader interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

// Session holds the ephemeral wallet state for one purchase surface. It is
// an explicit handle passed to the components that need it, created on
// mount and closed on unmount; nothing about it is persisted server-side.
type Session struct {
	provider Provider
	balances BalanceReader
	logger   *zap.Logger

	mu          sync.Mutex
	publicKey   *solana.PublicKey
	connecting  bool
	balance     decimal.Decimal
	unsubscribe func()
}

// NewSession creates a wallet session over the given provider. balances may
// be nil, in which case RefreshBalance is a no-op.
func NewSession(provider Provider, balances BalanceReader, logger *zap.Logger) *Session {
	return &Session{
		provider: provider,
		balances: balances,
		logger:   logger,
	}
}

// Init subscribes to account changes for the session's lifetime and then
// attempts a silent reconnect. Call once on mount; pair with Close.
func (s *Session) Init(ctx context.Context) {
	if s.provider == nil {
		return
	}

	unsubscribe := s.provider.OnAccountChange(func(key *solana.PublicKey) {
		s.handleAccountChange(key)
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.AutoConnectIfTrusted(ctx)
}

// Close cancels the account-change subscription and disconnects.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.Disconnect(ctx)
}

// Connect requests a connection from the provider. No retry is attempted
// here; the caller decides.
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		return models.NewPaymentError(models.ErrCodeProviderNotFound,
			"No wallet provider detected", models.ErrProviderNotFound)
	}

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return models.NewPaymentError(models.ErrCodeConnectionPending,
			"A wallet connection request is already pending", models.ErrConnectionPending)
	}
	s.connecting = true
	s.mu.Unlock()

	key, err := s.provider.Connect(ctx, ConnectOpts{})

	s.mu.Lock()
	s.connecting = false
	if err == nil {
		k := key
		s.publicKey = &k
	}
	s.mu.Unlock()

	if err != nil {
		return s.classifyProviderError(err)
	}

	s.logger.Info("Wallet connected", zap.String("address", key.String()))
	s.RefreshBalance(ctx, nil)
	return nil
}

// AutoConnectIfTrusted attempts a silent connect that must not prompt the
// user. Failures are swallowed: this is optimistic, not required.
func (s *Session) AutoConnectIfTrusted(ctx context.Context) {
	if s.provider == nil {
		return
	}

	key, err := s.provider.Connect(ctx, ConnectOpts{OnlyIfTrusted: true})
	if err != nil {
		s.logger.Debug("Silent wallet reconnect declined", zap.Error(err))
		return
	}

	s.mu.Lock()
	k := key
	s.publicKey = &k
	s.mu.Unlock()

	s.logger.Info("Wallet reconnected silently", zap.String("address", key.String()))
	s.RefreshBalance(ctx, nil)
}

// Disconnect calls the provider best-effort and always clears local state.
func (s *Session) Disconnect(ctx context.Context) {
	if s.provider != nil {
		if err := s.provider.Disconnect(ctx); err != nil {
			s.logger.Warn("Wallet provider disconnect failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.publicKey = nil
	s.balance = decimal.Zero
	s.mu.Unlock()
}

// RefreshBalance queries the balance for the active or given address. On
// failure the prior value is kept; stale-but-available beats blocking.
func (s *Session) RefreshBalance(ctx context.Context, address *solana.PublicKey) {
	if s.balances == nil {
		return
	}

	target := address
	if target == nil {
		s.mu.Lock()
		target = s.publicKey
		s.mu.Unlock()
	}
	if target == nil {
		return
	}

	res, err := s.balances.GetBalance(ctx, *target, rpc.CommitmentConfirmed)
	if err != nil {
		s.logger.Warn("Balance refresh failed, keeping previous value",
			zap.String("address", target.String()), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.balance = chain.SOLFromLamports(res.Value)
	s.mu.Unlock()
}

// PublicKey returns the connected address, if any. Implements chain.Signer.
func (s *Session) PublicKey() (solana.PublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publicKey == nil {
		return solana.PublicKey{}, false
	}
	return *s.publicKey, true
}

// Connected reports whether a wallet is connected.
func (s *Session) Connected() bool {
	_, ok := s.PublicKey()
	return ok
}

// Balance returns the last observed balance in native units.
func (s *Session) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// SignTransaction forwards to the provider. Implements chain.Signer.
func (s *Session) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if !s.Connected() {
		return nil, models.NewPaymentError(models.ErrCodeWalletNotConnected,
			"Wallet is not connected", models.ErrWalletNotConnected)
	}

	signed, err := s.provider.SignTransaction(ctx, tx)
	if err != nil {
		return nil, s.classifyProviderError(err)
	}
	return signed, nil
}

// handleAccountChange replaces the session state on an account switch; it
// never merges the old and new accounts.
func (s *Session) handleAccountChange(key *solana.PublicKey) {
	s.mu.Lock()
	s.publicKey = key
	s.balance = decimal.Zero
	s.mu.Unlock()

	if key == nil {
		s.logger.Info("Wallet account disconnected by provider")
		return
	}
	s.logger.Info("Wallet account switched", zap.String("address", key.String()))
	s.RefreshBalance(context.Background(), key)
}

// classifyProviderError maps provider failures onto the user-facing
// taxonomy; each code renders as a distinct message upstream.
func (s *Session) classifyProviderError(err error) error {
	switch {
	case errors.Is(err, models.ErrProviderNotFound):
		return models.NewPaymentError(models.ErrCodeProviderNotFound,
			"No wallet provider detected", err)
	case errors.Is(err, models.ErrUserRejected):
		return models.NewPaymentError(models.ErrCodeUserRejected,
			"The request was rejected in the wallet", err)
	case errors.Is(err, models.ErrConnectionPending):
		return models.NewPaymentError(models.ErrCodeConnectionPending,
			"A wallet request is already pending", err)
	default:
		return models.NewPaymentError(models.ErrCodeUnknown,
			"Wallet request failed", err)
	}
}
