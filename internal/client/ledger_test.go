package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/handlers"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/purchase"
	"github.com/swarmhub/marketplace-payment-service/internal/store"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyTransfer(_ context.Context, _ string, _ chain.TransferExpectation) error {
	return nil
}

func newTestService(t *testing.T) (*Client, *models.MarketplaceItem) {
	t.Helper()

	st := store.NewInMemoryStore()
	logger := zap.NewNop()

	item := &models.MarketplaceItem{
		ID:                  uuid.New(),
		Type:                models.ItemTypeAgent,
		Name:                "coding agent",
		Price:               decimal.NewFromFloat(2.5),
		SellerWalletAddress: solana.NewWallet().PublicKey().String(),
		SellerUserID:        "seller-1",
		OwnerUserID:         "seller-1",
	}
	st.AddItem(item)

	ledger := purchase.NewLedger(st, acceptAllVerifier{}, solana.NewWallet().PublicKey(), chain.DefaultFeeRate, logger)
	accessGate := gate.New(ledger, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/purchases", handlers.CreatePurchase(ledger, logger))
	r.Get("/api/v1/purchases/check", handlers.CheckPurchase(ledger, logger))
	r.Get("/api/v1/items/{itemID}/access", handlers.ItemAccess(ledger, accessGate, logger))

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return NewClient(&Config{BaseURL: server.URL}, logger), item
}

func TestClientRoundTrip(t *testing.T) {
	c, item := newTestService(t)
	ctx := context.Background()

	purchased, err := c.CheckUserPurchase(ctx, "buyer-1", item.ID, item.Type)
	require.NoError(t, err)
	assert.False(t, purchased)

	record, err := c.CreateTransaction(ctx, &models.PurchaseCreateRequest{
		BuyerID:              "buyer-1",
		ItemID:               item.ID,
		ItemType:             item.Type,
		Amount:               item.Price,
		TransactionSignature: "sig-1",
		BuyerWalletAddress:   solana.NewWallet().PublicKey().String(),
		SellerWalletAddress:  item.SellerWalletAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", record.BuyerID)
	assert.True(t, item.Price.Equal(record.Amount))

	purchased, err = c.CheckUserPurchase(ctx, "buyer-1", item.ID, item.Type)
	require.NoError(t, err)
	assert.True(t, purchased)
}

func TestClientCreateTransaction_ErrorTaxonomySurvivesTransport(t *testing.T) {
	c, item := newTestService(t)

	_, err := c.CreateTransaction(context.Background(), &models.PurchaseCreateRequest{
		BuyerID:              "buyer-1",
		ItemID:               item.ID,
		ItemType:             item.Type,
		Amount:               decimal.NewFromFloat(0.01),
		TransactionSignature: "sig-1",
		BuyerWalletAddress:   solana.NewWallet().PublicKey().String(),
	})
	require.Error(t, err)

	pe, ok := err.(*models.PaymentError)
	require.True(t, ok, "the structured error code must survive the HTTP hop")
	assert.Equal(t, models.ErrCodeInvalidAmount, pe.Code)
}

func TestClientGetAccess(t *testing.T) {
	c, item := newTestService(t)

	access, err := c.GetAccess(context.Background(), item.ID, item.Type, "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, gate.StateLocked, access.State)
	assert.Equal(t, item.ID, access.Item.ID)
	assert.True(t, item.Price.Equal(access.Item.Price))
	assert.Equal(t, item.SellerWalletAddress, access.Item.SellerWalletAddress)

	rebuilt := access.MarketplaceItem()
	assert.Equal(t, item.ID, rebuilt.ID)
	assert.True(t, rebuilt.RequiresPurchase())
}
