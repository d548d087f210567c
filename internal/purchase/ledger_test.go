package purchase

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/store"
)

// stubVerifier records the expectation the ledger derived server-side.
// onVerify runs during verification, where tests can slip a competing
// insert in between the ledger's signature lookup and its own insert.
type stubVerifier struct {
	err        error
	calls      int
	lastExpect chain.TransferExpectation
	onVerify   func()
}

func (v *stubVerifier) VerifyTransfer(_ context.Context, _ string, expect chain.TransferExpectation) error {
	v.calls++
	v.lastExpect = expect
	if v.onVerify != nil {
		v.onVerify()
	}
	return v.err
}

type ledgerFixture struct {
	store    *store.InMemoryStore
	verifier *stubVerifier
	ledger   *Ledger
	item     *models.MarketplaceItem
	buyerKey solana.PublicKey
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	st := store.NewInMemoryStore()
	verifier := &stubVerifier{}
	platform := solana.NewWallet().PublicKey()

	item := &models.MarketplaceItem{
		ID:                  uuid.New(),
		Type:                models.ItemTypePrompt,
		Name:                "strategy prompt",
		Price:               decimal.NewFromFloat(1.0),
		SellerWalletAddress: solana.NewWallet().PublicKey().String(),
		SellerUserID:        "seller-1",
		OwnerUserID:         "seller-1",
	}
	st.AddItem(item)

	return &ledgerFixture{
		store:    st,
		verifier: verifier,
		ledger:   NewLedger(st, verifier, platform, chain.DefaultFeeRate, zap.NewNop()),
		item:     item,
		buyerKey: solana.NewWallet().PublicKey(),
	}
}

func (f *ledgerFixture) request(signature string) *models.PurchaseCreateRequest {
	return &models.PurchaseCreateRequest{
		BuyerID:              "buyer-1",
		ItemID:               f.item.ID,
		ItemType:             f.item.Type,
		Amount:               f.item.Price,
		TransactionSignature: signature,
		BuyerWalletAddress:   f.buyerKey.String(),
		SellerWalletAddress:  f.item.SellerWalletAddress,
	}
}

func TestCreateTransaction_RecordsVerifiedPurchase(t *testing.T) {
	f := newLedgerFixture(t)

	record, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, "buyer-1", record.BuyerID)
	assert.Equal(t, "seller-1", record.SellerID)
	assert.True(t, f.item.Price.Equal(record.Amount))
	assert.Equal(t, "sig-1", record.TransactionSignature)

	// The expected amounts come from the item price, split server-side.
	assert.Equal(t, uint64(900_000_000), f.verifier.lastExpect.SellerLamports)
	assert.Equal(t, uint64(100_000_000), f.verifier.lastExpect.PlatformLamports)
	assert.Equal(t, f.buyerKey, f.verifier.lastExpect.Buyer)
}

func TestCreateTransaction_RetryCollapsesIntoExistingRecord(t *testing.T) {
	f := newLedgerFixture(t)

	first, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)

	second, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.verifier.calls, "a collapsed retry must not re-verify")
}

func TestCreateTransaction_ReplayedSignatureDifferentBuyer(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)

	replay := f.request("sig-1")
	replay.BuyerID = "buyer-2"
	_, err = f.ledger.CreateTransaction(context.Background(), replay)

	assert.ErrorIs(t, err, models.ErrInvalidTransaction)
}

func TestCreateTransaction_SecondSignatureSameBuyerItem(t *testing.T) {
	f := newLedgerFixture(t)

	first, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)

	// One record per buyer and item: a second verified payment for the same
	// item collapses into the first record instead of creating another.
	second, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-2"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateTransaction_LostSignatureRaceDifferentBuyer(t *testing.T) {
	f := newLedgerFixture(t)

	// Another buyer's record with the same signature lands after this
	// call's idempotency lookup but before its insert. The losing call
	// must not be handed the winner's record as its own success.
	f.verifier.onVerify = func() {
		err := f.store.CreatePurchase(context.Background(), &models.PurchaseRecord{
			ID:                   uuid.New(),
			BuyerID:              "buyer-2",
			SellerID:             "seller-1",
			ItemID:               f.item.ID,
			ItemType:             f.item.Type,
			Amount:               f.item.Price,
			TransactionSignature: "sig-1",
			BuyerWalletAddress:   solana.NewWallet().PublicKey().String(),
			SellerWalletAddress:  f.item.SellerWalletAddress,
		})
		require.NoError(t, err)
	}

	_, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	assert.ErrorIs(t, err, models.ErrInvalidTransaction)
}

func TestCreateTransaction_LostBuyerItemRaceCollapses(t *testing.T) {
	f := newLedgerFixture(t)

	// The same buyer's purchase of the same item lands concurrently under
	// a different signature; the losing call collapses into it.
	competitor := &models.PurchaseRecord{
		ID:                   uuid.New(),
		BuyerID:              "buyer-1",
		SellerID:             "seller-1",
		ItemID:               f.item.ID,
		ItemType:             f.item.Type,
		Amount:               f.item.Price,
		TransactionSignature: "sig-other",
		BuyerWalletAddress:   f.buyerKey.String(),
		SellerWalletAddress:  f.item.SellerWalletAddress,
	}
	f.verifier.onVerify = func() {
		require.NoError(t, f.store.CreatePurchase(context.Background(), competitor))
	}

	record, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)
	assert.Equal(t, competitor.ID, record.ID)
}

func TestCreateTransaction_ForgedAmountRejected(t *testing.T) {
	f := newLedgerFixture(t)

	req := f.request("sig-1")
	req.Amount = decimal.NewFromFloat(0.01)
	_, err := f.ledger.CreateTransaction(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrInvalidAmount)
	assert.Equal(t, 0, f.verifier.calls, "a mismatched amount must fail before verification")
}

func TestCreateTransaction_SellerWalletMismatchRejected(t *testing.T) {
	f := newLedgerFixture(t)

	req := f.request("sig-1")
	req.SellerWalletAddress = solana.NewWallet().PublicKey().String()
	_, err := f.ledger.CreateTransaction(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrInvalidTransaction)
}

func TestCreateTransaction_UnknownItem(t *testing.T) {
	f := newLedgerFixture(t)

	req := f.request("sig-1")
	req.ItemID = uuid.New()
	_, err := f.ledger.CreateTransaction(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrItemNotFound)
}

func TestCreateTransaction_FreeItemRejected(t *testing.T) {
	f := newLedgerFixture(t)
	f.item.IsFree = true

	_, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	assert.ErrorIs(t, err, models.ErrInvalidTransaction)
}

func TestCreateTransaction_VerificationFailureRecordsNothing(t *testing.T) {
	f := newLedgerFixture(t)
	f.verifier.err = models.NewInvalidTransactionError("sig-1", "amount mismatch")

	_, err := f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.Error(t, err)

	_, err = f.store.GetPurchaseBySignature(context.Background(), "sig-1")
	assert.ErrorIs(t, err, models.ErrPurchaseNotFound)
}

func TestCreateTransaction_ValidationErrors(t *testing.T) {
	f := newLedgerFixture(t)

	req := f.request("sig-1")
	req.BuyerID = ""
	_, err := f.ledger.CreateTransaction(context.Background(), req)
	require.Error(t, err)

	var pe *models.PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ErrCodeValidationFailed, pe.Code)

	// The buyer wallet is mandatory; without it the fee-payer check could
	// never run and the transaction would be claimable by anyone.
	req = f.request("sig-1")
	req.BuyerWalletAddress = ""
	_, err = f.ledger.CreateTransaction(context.Background(), req)
	require.Error(t, err)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, models.ErrCodeValidationFailed, pe.Code)
	assert.Equal(t, 0, f.verifier.calls, "validation failures must precede verification")
}

func TestCheckUserPurchase(t *testing.T) {
	f := newLedgerFixture(t)

	purchased, err := f.ledger.CheckUserPurchase(context.Background(), "buyer-1", f.item.ID, f.item.Type)
	require.NoError(t, err)
	assert.False(t, purchased)

	_, err = f.ledger.CreateTransaction(context.Background(), f.request("sig-1"))
	require.NoError(t, err)

	purchased, err = f.ledger.CheckUserPurchase(context.Background(), "buyer-1", f.item.ID, f.item.Type)
	require.NoError(t, err)
	assert.True(t, purchased)
}
