package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType identifies the kind of marketplace listing a purchase applies to.
type ItemType string

const (
	ItemTypePrompt ItemType = "prompt"
	ItemTypeAgent  ItemType = "agent"
)

// Valid reports whether the item type is a known listing kind.
func (t ItemType) Valid() bool {
	return t == ItemTypePrompt || t == ItemTypeAgent
}

// MarketplaceItem represents a purchasable listing. Items are created and
// edited by the marketplace CRUD surface; this service only reads them and
// treats Price and SellerWalletAddress as the canonical pricing source.
type MarketplaceItem struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	Type                ItemType        `json:"type" db:"item_type"`
	Name                string          `json:"name" db:"name"`
	Price               decimal.Decimal `json:"price" db:"price"` // native SOL units
	IsFree              bool            `json:"is_free" db:"is_free"`
	SellerWalletAddress string          `json:"seller_wallet_address" db:"seller_wallet_address"`
	SellerUserID        string          `json:"seller_user_id" db:"seller_user_id"`
	OwnerUserID         string          `json:"owner_user_id" db:"owner_user_id"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// RequiresPurchase reports whether a viewer other than the owner needs a
// purchase record to access the item.
func (i *MarketplaceItem) RequiresPurchase() bool {
	return !i.IsFree && i.Price.GreaterThan(decimal.Zero)
}
