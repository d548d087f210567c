package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/chain/stub"
	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/wallet"
)

// fakeRecorder scripts the ledger surface the flow records against.
type fakeRecorder struct {
	createErr   error
	createCalls int
	lastRequest *models.PurchaseCreateRequest

	// checkResults is consumed one per CheckUserPurchase call; when
	// exhausted the last value repeats.
	checkResults []bool
	checkCalls   int
}

func (r *fakeRecorder) CreateTransaction(_ context.Context, req *models.PurchaseCreateRequest) (*models.PurchaseRecord, error) {
	r.createCalls++
	r.lastRequest = req
	if r.createErr != nil {
		return nil, r.createErr
	}
	return &models.PurchaseRecord{
		ID:                   uuid.New(),
		BuyerID:              req.BuyerID,
		ItemID:               req.ItemID,
		ItemType:             req.ItemType,
		Amount:               req.Amount,
		TransactionSignature: req.TransactionSignature,
	}, nil
}

func (r *fakeRecorder) CheckUserPurchase(_ context.Context, _ string, _ uuid.UUID, _ models.ItemType) (bool, error) {
	r.checkCalls++
	if len(r.checkResults) == 0 {
		return false, nil
	}
	result := r.checkResults[0]
	if len(r.checkResults) > 1 {
		r.checkResults = r.checkResults[1:]
	}
	return result, nil
}

type flowFixture struct {
	rpc      *stub.RPCClient
	recorder *fakeRecorder
	flow     *Flow
	item     *models.MarketplaceItem
	sig      solana.Signature
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()

	buyer := solana.NewWallet()
	seller := solana.NewWallet().PublicKey()
	platform := solana.NewWallet().PublicKey()
	sig := solana.Signature{9}

	rpcStub := stub.NewRPCClient()
	rpcStub.SendResult = sig
	rpcStub.SetStatus(sig, rpc.ConfirmationStatusFinalized, nil)

	tx, meta := stub.NewTransferTransaction(buyer.PublicKey(), map[solana.PublicKey]uint64{
		seller:   900_000_000,
		platform: 100_000_000,
	}, rpcStub.Blockhash)
	res, err := stub.NewTransactionResult(tx, meta, time.Now())
	require.NoError(t, err)
	rpcStub.AddTransaction(sig, res)

	session := wallet.NewSession(wallet.NewKeypairProvider(buyer.PrivateKey), nil, zap.NewNop())
	builder := chain.NewBuilder(rpcStub, platform, chain.BuilderConfig{
		PollInterval: time.Millisecond,
	}, zap.NewNop())

	// The first gate check runs before payment and must see no purchase.
	recorder := &fakeRecorder{checkResults: []bool{false, true}}

	flow := NewFlow(session, builder, recorder, gate.New(recorder, zap.NewNop()), FlowConfig{
		ReconcileAttempts: 3,
		ReconcileInterval: time.Millisecond,
	}, zap.NewNop())

	return &flowFixture{
		rpc:      rpcStub,
		recorder: recorder,
		flow:     flow,
		item: &models.MarketplaceItem{
			ID:                  uuid.New(),
			Type:                models.ItemTypeAgent,
			Name:                "research agent",
			Price:               decimal.NewFromFloat(1.0),
			SellerWalletAddress: seller.String(),
			SellerUserID:        "seller-1",
			OwnerUserID:         "seller-1",
		},
		sig: sig,
	}
}

func TestFlowPurchase_Complete(t *testing.T) {
	f := newFlowFixture(t)

	result, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, gate.StateUnlocked, result.Decision.State)
	assert.Equal(t, gate.ReasonPurchased, result.Decision.Reason)
	assert.Equal(t, f.sig.String(), result.Signature)
	assert.False(t, result.ReadLagged)
	require.NotNil(t, result.Record)
	assert.Equal(t, "buyer-1", result.Record.BuyerID)

	require.NotNil(t, f.recorder.lastRequest)
	assert.Equal(t, f.sig.String(), f.recorder.lastRequest.TransactionSignature)
	assert.NotEmpty(t, f.recorder.lastRequest.BuyerWalletAddress)
}

func TestFlowPurchase_AlreadyAccessible(t *testing.T) {
	f := newFlowFixture(t)
	f.recorder.checkResults = []bool{true}

	result, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.NoError(t, err)

	assert.True(t, result.AlreadyAccessible)
	assert.Empty(t, result.Signature)
	assert.Equal(t, 0, f.rpc.Calls(), "no payment for already accessible content")
	assert.Equal(t, 0, f.recorder.createCalls)
}

func TestFlowPurchase_OwnerDoesNotPay(t *testing.T) {
	f := newFlowFixture(t)

	result, err := f.flow.Purchase(context.Background(), f.item, "seller-1")
	require.NoError(t, err)

	assert.True(t, result.AlreadyAccessible)
	assert.Equal(t, gate.ReasonOwner, result.Decision.Reason)
	assert.Equal(t, 0, f.recorder.checkCalls, "owner bypass must not query the ledger")
	assert.Equal(t, 0, f.rpc.Calls())
}

func TestFlowPurchase_ChainFailureRecordsNothing(t *testing.T) {
	f := newFlowFixture(t)
	f.rpc.SetStatus(f.sig, rpc.ConfirmationStatusConfirmed, map[string]interface{}{
		"InstructionError": []interface{}{0, "Custom"},
	})

	_, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.Error(t, err)

	assert.ErrorIs(t, err, models.ErrTransactionFailed)
	assert.Equal(t, 0, f.recorder.createCalls, "a failed payment must never reach the ledger")
}

func TestFlowPurchase_CallerCancellationAfterSubmitStillRecords(t *testing.T) {
	f := newFlowFixture(t)
	f.rpc.SetStatus(f.sig, rpc.ConfirmationStatusProcessed, nil)

	// The buyer's context dies while confirmation is still pending; the
	// transaction was submitted, so recording must happen regardless.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
		time.Sleep(10 * time.Millisecond)
		f.rpc.SetStatus(f.sig, rpc.ConfirmationStatusFinalized, nil)
	}()

	result, err := f.flow.Purchase(ctx, f.item, "buyer-1")
	require.NoError(t, err)

	require.Len(t, f.rpc.SentRaw, 1)
	assert.Equal(t, 1, f.recorder.createCalls, "a submitted payment must always reach the ledger")
	assert.Equal(t, gate.StateUnlocked, result.Decision.State)
	assert.Equal(t, f.sig.String(), result.Signature)
}

func TestFlowPurchase_RecordingFailureCarriesSignature(t *testing.T) {
	f := newFlowFixture(t)
	f.recorder.createErr = models.NewInvalidTransactionError("", "amount mismatch")

	_, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.Error(t, err)

	pe, ok := err.(*models.PaymentError)
	require.True(t, ok)
	assert.Equal(t, f.sig.String(), pe.Details["signature"],
		"the on-chain signature must be surfaced when recording fails")
}

func TestFlowPurchase_ReadLagUnlocksAnyway(t *testing.T) {
	f := newFlowFixture(t)
	// The gate check sees no purchase, then the read path never catches up.
	f.recorder.checkResults = []bool{false}

	result, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.NoError(t, err)

	assert.True(t, result.ReadLagged)
	assert.Equal(t, gate.StateUnlocked, result.Decision.State, "a confirmed payment unlocks despite read lag")
	require.NotNil(t, result.Record)
	// One gate check plus the bounded reconcile attempts.
	assert.Equal(t, 4, f.recorder.checkCalls)
}

func TestFlowPurchase_ReconcileStopsEarly(t *testing.T) {
	f := newFlowFixture(t)
	f.recorder.checkResults = []bool{false, false, true}

	result, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.NoError(t, err)

	assert.False(t, result.ReadLagged)
	// Gate check, one miss, then the hit stops the loop.
	assert.Equal(t, 3, f.recorder.checkCalls)
}

func TestFlowPurchase_InvalidSellerAddress(t *testing.T) {
	f := newFlowFixture(t)
	f.item.SellerWalletAddress = "not-a-wallet"

	_, err := f.flow.Purchase(context.Background(), f.item, "buyer-1")
	require.Error(t, err)

	assert.ErrorIs(t, err, models.ErrInvalidAddress)
	assert.Empty(t, f.rpc.SentRaw)
}
