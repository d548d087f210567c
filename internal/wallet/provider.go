package wallet

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// ConnectOpts controls how a connection is requested from the provider.
type ConnectOpts struct {
	// OnlyIfTrusted asks for a silent connection that must not prompt the
	// user. Providers reject it when the origin was never approved.
	OnlyIfTrusted bool
}

// Provider is the surface of an external wallet (a browser extension bridge
// or a local keypair). Implementations map their native failures onto the
// sentinel errors in the models package: models.ErrProviderNotFound,
// models.ErrUserRejected, models.ErrConnectionPending. Anything else is
// wrapped by the session as an unknown wallet error.
type Provider interface {
	// Connect requests a connection and returns the active public key.
	Connect(ctx context.Context, opts ConnectOpts) (solana.PublicKey, error)

	// Disconnect ends the connection. Best-effort; the session clears its
	// state regardless of the outcome.
	Disconnect(ctx context.Context) error

	// SignTransaction asks the wallet to sign a built transaction.
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)

	// OnAccountChange subscribes to account switches. A nil key means the
	// wallet disconnected. The returned function cancels the subscription
	// and must be called before the session is discarded.
	OnAccountChange(fn func(key *solana.PublicKey)) (unsubscribe func())
}
