package wallet

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// KeypairProvider is a Provider backed by a local private key. It is how
// headless clients (the buyctl CLI, integration harnesses) participate in
// the purchase flow without a browser wallet. A local key has no account
// switching and never prompts, so Connect always succeeds and
// OnAccountChange never fires.
type KeypairProvider struct {
	key solana.PrivateKey
}

// NewKeypairProvider wraps an existing private key.
func NewKeypairProvider(key solana.PrivateKey) *KeypairProvider {
	return &KeypairProvider{key: key}
}

// LoadKeypairProvider loads a base58 private key from the
// WALLET_PRIVATE_KEY environment variable or, failing that, from the given
// file path.
func LoadKeypairProvider(path string) (*KeypairProvider, error) {
	if envKey := os.Getenv("WALLET_PRIVATE_KEY"); envKey != "" {
		key, err := decodePrivateKey(envKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode private key from environment: %w", err)
		}
		return NewKeypairProvider(key), nil
	}

	if path == "" {
		return nil, fmt.Errorf("no private key found: set WALLET_PRIVATE_KEY or provide a key file path")
	}

	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	key, err := decodePrivateKey(strings.TrimSpace(string(keyData)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key from file: %w", err)
	}
	return NewKeypairProvider(key), nil
}

func decodePrivateKey(encoded string) (solana.PrivateKey, error) {
	keyBytes, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(keyBytes))
	}
	return solana.PrivateKey(keyBytes), nil
}

// Connect returns the key's public address.
func (p *KeypairProvider) Connect(_ context.Context, _ ConnectOpts) (solana.PublicKey, error) {
	return p.key.PublicKey(), nil
}

// Disconnect is a no-op for a local key.
func (p *KeypairProvider) Disconnect(_ context.Context) error {
	return nil
}

// SignTransaction signs with the local key.
func (p *KeypairProvider) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(p.key.PublicKey()) {
			return &p.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// OnAccountChange never fires for a local key.
func (p *KeypairProvider) OnAccountChange(_ func(key *solana.PublicKey)) func() {
	return func() {}
}
