package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// Store is the persistence surface for the purchase ledger. Implementations
// must enforce two uniqueness invariants at the storage layer, not by
// check-then-insert: one purchase per (buyer_id, item_id, item_type) and a
// globally unique transaction_signature.
type Store interface {
	// Initialize prepares the backing storage (creates tables for the
	// Postgres implementation).
	Initialize(ctx context.Context) error

	// GetItem returns the canonical marketplace item, or
	// models.ErrItemNotFound.
	GetItem(ctx context.Context, itemID uuid.UUID, itemType models.ItemType) (*models.MarketplaceItem, error)

	// CreatePurchase inserts exactly one record. Returns
	// models.ErrDuplicateSignature if the signature is already recorded and
	// models.ErrPurchaseExists if the buyer already holds the item.
	CreatePurchase(ctx context.Context, record *models.PurchaseRecord) error

	// GetPurchase returns the record for (buyer, item, type), or
	// models.ErrPurchaseNotFound.
	GetPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (*models.PurchaseRecord, error)

	// GetPurchaseBySignature returns the record holding the signature, or
	// models.ErrPurchaseNotFound.
	GetPurchaseBySignature(ctx context.Context, signature string) (*models.PurchaseRecord, error)

	// ListPurchasesByBuyer returns a page of the buyer's records, newest
	// first.
	ListPurchasesByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.PurchaseRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
