// Package stub provides an in-memory chain.Client for tests.
package stub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrNotFound is returned when a stubbed lookup has no fixture.
var ErrNotFound = errors.New("not found")

// RPCClient implements chain.Client against fixture maps. Every method
// increments Calls so tests can assert that fail-fast paths issue zero
// network calls.
type RPCClient struct {
	mu    sync.Mutex
	calls int

	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	BlockHeight          uint64

	SendErr    error
	SentRaw    [][]byte
	SendResult solana.Signature

	Statuses     map[solana.Signature]*rpc.SignatureStatusesResult
	Transactions map[solana.Signature]*rpc.GetTransactionResult
	Balances     map[solana.PublicKey]uint64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Statuses:     make(map[solana.Signature]*rpc.SignatureStatusesResult),
		Transactions: make(map[solana.Signature]*rpc.GetTransactionResult),
		Balances:     make(map[solana.PublicKey]uint64),
	}
}

// Calls reports how many RPC methods have been invoked.
func (c *RPCClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *RPCClient) record() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

// GetLatestBlockhash returns the fixture blockhash and validity window.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	c.record()
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            c.Blockhash,
			LastValidBlockHeight: c.LastValidBlockHeight,
		},
	}, nil
}

// GetBlockHeight returns the fixture block height.
func (c *RPCClient) GetBlockHeight(_ context.Context, _ rpc.CommitmentType) (uint64, error) {
	c.record()
	return c.BlockHeight, nil
}

// SendRawTransactionWithOpts records the raw bytes and returns the fixture
// signature or error.
func (c *RPCClient) SendRawTransactionWithOpts(_ context.Context, txBytes []byte, _ rpc.TransactionOpts) (solana.Signature, error) {
	c.record()
	c.mu.Lock()
	c.SentRaw = append(c.SentRaw, txBytes)
	c.mu.Unlock()
	if c.SendErr != nil {
		return solana.Signature{}, c.SendErr
	}
	return c.SendResult, nil
}

// GetSignatureStatuses returns statuses for the requested signatures,
// nil entries for unknown ones.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	c.record()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		out.Value = append(out.Value, c.Statuses[sig])
	}
	return out, nil
}

// GetTransaction returns the fixture transaction, nil when absent (matching
// the real RPC's not-found behavior).
func (c *RPCClient) GetTransaction(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	c.record()
	res, ok := c.Transactions[sig]
	if !ok {
		return nil, nil
	}
	return res, nil
}

// GetBalance returns the fixture lamport balance for the account.
func (c *RPCClient) GetBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	c.record()
	lamports, ok := c.Balances[account]
	if !ok {
		return nil, ErrNotFound
	}
	return &rpc.GetBalanceResult{Value: lamports}, nil
}

// SetStatus registers a signature status fixture. Safe to call while a
// confirmation loop is polling.
func (c *RPCClient) SetStatus(sig solana.Signature, status rpc.ConfirmationStatusType, txErr interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[sig] = &rpc.SignatureStatusesResult{
		ConfirmationStatus: status,
		Err:                txErr,
	}
}

// AddTransaction registers a getTransaction fixture.
func (c *RPCClient) AddTransaction(sig solana.Signature, res *rpc.GetTransactionResult) {
	c.Transactions[sig] = res
}

// NewTransactionResult builds a getTransaction fixture around a real
// transaction. The payload round-trips through the RPC wire encoding
// because the result envelope only decodes, it cannot be populated
// directly.
func NewTransactionResult(tx *solana.Transaction, meta *rpc.TransactionMeta, blockTime time.Time) (*rpc.GetTransactionResult, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}

	envJSON, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	env := &rpc.TransactionResultEnvelope{}
	if err := env.UnmarshalJSON(envJSON); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	res := &rpc.GetTransactionResult{
		Transaction: env,
		Meta:        meta,
	}
	if !blockTime.IsZero() {
		bt := solana.UnixTimeSeconds(blockTime.Unix())
		res.BlockTime = &bt
	}
	return res, nil
}

// NewTransferTransaction assembles an unsigned transfer transaction plus
// matching pre/post balance metadata for verifier fixtures. Recipients map
// addresses to credited lamports; the payer is debited the sum.
func NewTransferTransaction(payer solana.PublicKey, recipients map[solana.PublicKey]uint64, blockhash solana.Hash) (*solana.Transaction, *rpc.TransactionMeta) {
	const startingLamports = uint64(10_000_000_000)

	keys := []solana.PublicKey{payer}
	pre := []uint64{startingLamports}
	post := []uint64{startingLamports}
	for recipient, lamports := range recipients {
		keys = append(keys, recipient)
		pre = append(pre, startingLamports)
		post = append(post, startingLamports+lamports)
		post[0] -= lamports
	}

	tx := &solana.Transaction{
		Signatures: []solana.Signature{{}},
		Message: solana.Message{
			AccountKeys:     keys,
			RecentBlockhash: blockhash,
			Header: solana.MessageHeader{
				NumRequiredSignatures: 1,
			},
		},
	}

	meta := &rpc.TransactionMeta{
		PreBalances:  pre,
		PostBalances: post,
	}
	return tx, meta
}
