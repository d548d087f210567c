package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseRecord is the authoritative, server-persisted proof that a buyer
// paid for an item. Created exactly once per (buyer, item, type) after the
// on-chain transaction has been verified; never mutated afterwards.
type PurchaseRecord struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	BuyerID              string          `json:"buyer_id" db:"buyer_id"`
	SellerID             string          `json:"seller_id" db:"seller_id"`
	ItemID               uuid.UUID       `json:"item_id" db:"item_id"`
	ItemType             ItemType        `json:"item_type" db:"item_type"`
	Amount               decimal.Decimal `json:"amount" db:"amount"` // native SOL units
	TransactionSignature string          `json:"transaction_signature" db:"transaction_signature"`
	BuyerWalletAddress   string          `json:"buyer_wallet_address" db:"buyer_wallet_address"`
	SellerWalletAddress  string          `json:"seller_wallet_address" db:"seller_wallet_address"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// Matches reports whether the record belongs to the given buyer and item.
func (r *PurchaseRecord) Matches(buyerID string, itemID uuid.UUID, itemType ItemType) bool {
	return r.BuyerID == buyerID && r.ItemID == itemID && r.ItemType == itemType
}

// PurchaseCreateRequest is the client submission recording an on-chain
// payment. Amount is an assertion only; the ledger re-derives the expected
// amounts from the item's canonical price before crediting anything.
type PurchaseCreateRequest struct {
	BuyerID              string          `json:"buyer_id"`
	ItemID               uuid.UUID       `json:"item_id"`
	ItemType             ItemType        `json:"item_type"`
	Amount               decimal.Decimal `json:"amount"`
	TransactionSignature string          `json:"transaction_signature"`
	BuyerWalletAddress   string          `json:"buyer_wallet_address"`
	SellerWalletAddress  string          `json:"seller_wallet_address"`
}

// Validate checks the request for missing or malformed fields.
func (r *PurchaseCreateRequest) Validate() error {
	if r.BuyerID == "" {
		return NewValidationError("buyer_id", "buyer id is required")
	}
	if r.ItemID == uuid.Nil {
		return NewValidationError("item_id", "item id is required")
	}
	if !r.ItemType.Valid() {
		return NewValidationError("item_type", "item type must be prompt or agent")
	}
	if r.TransactionSignature == "" {
		return NewValidationError("transaction_signature", "transaction signature is required")
	}
	// Without the buyer's wallet the fee-payer check cannot run, and a
	// verified-but-unattributed transaction could be claimed by anyone.
	if r.BuyerWalletAddress == "" {
		return NewValidationError("buyer_wallet_address", "buyer wallet address is required")
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return NewValidationError("amount", "amount must be positive")
	}
	return nil
}

// PurchaseCheckResponse is the poll-safe read answering "has this buyer
// paid for this item".
type PurchaseCheckResponse struct {
	HasPurchased bool       `json:"has_purchased"`
	PurchasedAt  *time.Time `json:"purchased_at,omitempty"`
}

// PurchaseHistoryResponse is a page of a buyer's purchase records.
type PurchaseHistoryResponse struct {
	Purchases []*PurchaseRecord `json:"purchases"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// BalanceResponse reports the on-chain balance of a wallet address.
type BalanceResponse struct {
	Address  string          `json:"address"`
	Balance  decimal.Decimal `json:"balance"` // native SOL units
	Lamports uint64          `json:"lamports"`
}
