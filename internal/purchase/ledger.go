// Package purchase implements the purchase ledger and the end-to-end
// purchase flow orchestration.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/store"
)

// ChainVerifier is the on-chain verification step of recording a purchase.
type ChainVerifier interface {
	VerifyTransfer(ctx context.Context, signature string, expect chain.TransferExpectation) error
}

// Ledger is the single source of truth for "has this buyer paid for this
// item". It is safe under concurrent and duplicate invocation: idempotency
// comes from the signature lookup plus the storage layer's uniqueness
// constraints, never from application-level check-then-insert.
type Ledger struct {
	store          store.Store
	verifier       ChainVerifier
	platformWallet solana.PublicKey
	feeRate        decimal.Decimal
	logger         *zap.Logger
}

// NewLedger creates the purchase ledger.
func NewLedger(st store.Store, verifier ChainVerifier, platformWallet solana.PublicKey, feeRate decimal.Decimal, logger *zap.Logger) *Ledger {
	if feeRate.IsZero() {
		feeRate = chain.DefaultFeeRate
	}
	return &Ledger{
		store:          st,
		verifier:       verifier,
		platformWallet: platformWallet,
		feeRate:        feeRate,
		logger:         logger,
	}
}

// CreateTransaction verifies a submitted on-chain payment and records the
// purchase exactly once. A retry with the same signature returns the
// existing record; a signature that belongs to someone else's purchase is
// rejected. The expected amounts are always re-derived from the item's
// canonical price, never taken from the request.
func (l *Ledger) CreateTransaction(ctx context.Context, req *models.PurchaseCreateRequest) (*models.PurchaseRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Replay/idempotency check first. A client retry after a network blip
	// collapses into the original record.
	existing, err := l.store.GetPurchaseBySignature(ctx, req.TransactionSignature)
	if err != nil && !errors.Is(err, models.ErrPurchaseNotFound) {
		return nil, models.NewDatabaseError("get_purchase_by_signature", err)
	}
	if existing != nil {
		if existing.Matches(req.BuyerID, req.ItemID, req.ItemType) {
			l.logger.Info("Duplicate purchase submission collapsed into existing record",
				zap.String("purchase_id", existing.ID.String()),
				zap.String("signature", req.TransactionSignature),
			)
			return existing, nil
		}
		return nil, models.NewInvalidTransactionError(req.TransactionSignature,
			"signature already recorded for a different purchase")
	}

	item, err := l.store.GetItem(ctx, req.ItemID, req.ItemType)
	if err != nil {
		if errors.Is(err, models.ErrItemNotFound) {
			return nil, models.NewItemNotFoundError(req.ItemID.String())
		}
		return nil, models.NewDatabaseError("get_item", err)
	}
	if !item.RequiresPurchase() {
		return nil, models.NewInvalidTransactionError(req.TransactionSignature,
			"item does not require a purchase")
	}

	// The client amount is an assertion to cross-check, not an input to
	// crediting.
	if !req.Amount.Equal(item.Price) {
		return nil, models.NewPaymentError(models.ErrCodeInvalidAmount,
			"Submitted amount does not match the item price", models.ErrInvalidAmount).
			WithDetail("submitted", req.Amount.String()).
			WithDetail("expected", item.Price.String())
	}
	if req.SellerWalletAddress != "" && req.SellerWalletAddress != item.SellerWalletAddress {
		return nil, models.NewInvalidTransactionError(req.TransactionSignature,
			"seller wallet does not match the item's seller")
	}

	expect, err := l.expectation(item, req.BuyerWalletAddress)
	if err != nil {
		return nil, err
	}

	if err := l.verifier.VerifyTransfer(ctx, req.TransactionSignature, expect); err != nil {
		l.logger.Warn("Purchase verification failed, nothing recorded",
			zap.String("signature", req.TransactionSignature),
			zap.String("buyer_id", req.BuyerID),
			zap.Error(err),
		)
		return nil, err
	}

	record := &models.PurchaseRecord{
		ID:                   uuid.New(),
		BuyerID:              req.BuyerID,
		SellerID:             item.SellerUserID,
		ItemID:               item.ID,
		ItemType:             item.Type,
		Amount:               item.Price,
		TransactionSignature: req.TransactionSignature,
		BuyerWalletAddress:   req.BuyerWalletAddress,
		SellerWalletAddress:  item.SellerWalletAddress,
		CreatedAt:            time.Now().UTC(),
	}

	if err := l.store.CreatePurchase(ctx, record); err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateSignature):
			// A concurrent call with the same signature won the insert.
			// The winner is only this caller's record if it names the same
			// buyer and item; anything else is a replay of a foreign
			// signature that slipped past the initial lookup.
			winner, getErr := l.store.GetPurchaseBySignature(ctx, req.TransactionSignature)
			if getErr != nil {
				return nil, models.NewDatabaseError("get_purchase_by_signature", getErr)
			}
			if !winner.Matches(req.BuyerID, req.ItemID, req.ItemType) {
				return nil, models.NewInvalidTransactionError(req.TransactionSignature,
					"signature already recorded for a different purchase")
			}
			return winner, nil
		case errors.Is(err, models.ErrPurchaseExists):
			// The buyer already holds the item; collapse into that record.
			existing, getErr := l.store.GetPurchase(ctx, req.BuyerID, item.ID, item.Type)
			if getErr != nil {
				return nil, models.NewDatabaseError("get_purchase", getErr)
			}
			return existing, nil
		default:
			return nil, models.NewDatabaseError("create_purchase", err)
		}
	}

	l.logger.Info("Purchase recorded",
		zap.String("purchase_id", record.ID.String()),
		zap.String("buyer_id", record.BuyerID),
		zap.String("item_id", record.ItemID.String()),
		zap.String("signature", record.TransactionSignature),
		zap.String("amount", record.Amount.String()),
	)
	return record, nil
}

// CheckUserPurchase reports whether a purchase record exists. Pure read,
// safe to poll.
func (l *Ledger) CheckUserPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (bool, error) {
	_, err := l.store.GetPurchase(ctx, buyerID, itemID, itemType)
	if err != nil {
		if errors.Is(err, models.ErrPurchaseNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Item returns the canonical marketplace item.
func (l *Ledger) Item(ctx context.Context, itemID uuid.UUID, itemType models.ItemType) (*models.MarketplaceItem, error) {
	return l.store.GetItem(ctx, itemID, itemType)
}

// ListPurchases returns a page of the buyer's purchase history.
func (l *Ledger) ListPurchases(ctx context.Context, buyerID string, limit, offset int) ([]*models.PurchaseRecord, error) {
	return l.store.ListPurchasesByBuyer(ctx, buyerID, limit, offset)
}

// expectation derives the transfer amounts the chain must show, from the
// item's canonical price.
func (l *Ledger) expectation(item *models.MarketplaceItem, buyerWallet string) (chain.TransferExpectation, error) {
	seller, err := solana.PublicKeyFromBase58(item.SellerWalletAddress)
	if err != nil {
		return chain.TransferExpectation{}, models.NewPaymentError(models.ErrCodeInvalidAddress,
			"Item has an invalid seller wallet address", models.ErrInvalidAddress).
			WithDetail("address", item.SellerWalletAddress)
	}

	expect := chain.TransferExpectation{
		Seller:   seller,
		Platform: l.platformWallet,
	}

	if buyerWallet != "" {
		buyer, err := solana.PublicKeyFromBase58(buyerWallet)
		if err != nil {
			return chain.TransferExpectation{}, models.NewPaymentError(models.ErrCodeInvalidAddress,
				"Invalid buyer wallet address", models.ErrInvalidAddress).
				WithDetail("address", buyerWallet)
		}
		expect.Buyer = buyer
	}

	total := chain.LamportsFromSOL(item.Price)
	if total == 0 {
		return chain.TransferExpectation{}, fmt.Errorf("item price resolves to zero lamports")
	}
	expect.SellerLamports, expect.PlatformLamports = chain.SplitPayment(total, l.feeRate)
	return expect, nil
}
