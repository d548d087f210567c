package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// purchaseKey is the composite uniqueness key for one purchase per buyer
// and item.
type purchaseKey struct {
	buyerID  string
	itemID   uuid.UUID
	itemType models.ItemType
}

// InMemoryStore is a thread-safe in-memory Store. It enforces the same two
// uniqueness invariants as the Postgres schema under a single lock, which
// makes it a faithful stand-in for ledger tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	items       map[uuid.UUID]*models.MarketplaceItem
	bySignature map[string]*models.PurchaseRecord
	byBuyerItem map[purchaseKey]*models.PurchaseRecord
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:       make(map[uuid.UUID]*models.MarketplaceItem),
		bySignature: make(map[string]*models.PurchaseRecord),
		byBuyerItem: make(map[purchaseKey]*models.PurchaseRecord),
	}
}

// Initialize sets up the in-memory store. The maps are created in the
// constructor so there is nothing to do here.
func (s *InMemoryStore) Initialize(ctx context.Context) error {
	return nil
}

// AddItem seeds a marketplace item. Item writes belong to the marketplace
// CRUD surface in production; this exists for wiring tests and local runs.
func (s *InMemoryStore) AddItem(item *models.MarketplaceItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
}

// GetItem retrieves a marketplace item by ID and type.
func (s *InMemoryStore) GetItem(ctx context.Context, itemID uuid.UUID, itemType models.ItemType) (*models.MarketplaceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok || item.Type != itemType {
		return nil, models.ErrItemNotFound
	}
	return item, nil
}

// CreatePurchase inserts a record, enforcing both uniqueness invariants
// atomically under the store lock.
func (s *InMemoryStore) CreatePurchase(ctx context.Context, record *models.PurchaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySignature[record.TransactionSignature]; exists {
		return models.ErrDuplicateSignature
	}
	key := purchaseKey{record.BuyerID, record.ItemID, record.ItemType}
	if _, exists := s.byBuyerItem[key]; exists {
		return models.ErrPurchaseExists
	}

	s.bySignature[record.TransactionSignature] = record
	s.byBuyerItem[key] = record
	return nil
}

// GetPurchase retrieves the record for a buyer and item.
func (s *InMemoryStore) GetPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (*models.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.byBuyerItem[purchaseKey{buyerID, itemID, itemType}]
	if !ok {
		return nil, models.ErrPurchaseNotFound
	}
	return record, nil
}

// GetPurchaseBySignature retrieves the record holding a signature.
func (s *InMemoryStore) GetPurchaseBySignature(ctx context.Context, signature string) (*models.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.bySignature[signature]
	if !ok {
		return nil, models.ErrPurchaseNotFound
	}
	return record, nil
}

// ListPurchasesByBuyer retrieves a page of a buyer's purchases, newest first.
func (s *InMemoryStore) ListPurchasesByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.PurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*models.PurchaseRecord
	for _, record := range s.bySignature {
		if record.BuyerID == buyerID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if offset >= len(records) {
		return nil, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// Close releases resources. Nothing to close for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
