package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// Postgres error codes
const (
	pgUniqueViolation = "23505" // unique_violation
)

// PostgresStore implements Store using PostgreSQL. The two uniqueness
// invariants live in the purchases table constraints; concurrent duplicate
// inserts surface as unique violations which are mapped back to the domain
// errors here.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Initialize creates the necessary database tables
func (s *PostgresStore) Initialize(ctx context.Context) error {
	queries := []string{
		createItemsTable,
		createPurchasesTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	s.logger.Info("Database tables initialized successfully")
	return nil
}

// GetItem retrieves a marketplace item by ID and type
func (s *PostgresStore) GetItem(ctx context.Context, itemID uuid.UUID, itemType models.ItemType) (*models.MarketplaceItem, error) {
	item := &models.MarketplaceItem{}
	query := `
		SELECT id, item_type, name, price, is_free, seller_wallet_address,
		       seller_user_id, owner_user_id, created_at, updated_at
		FROM marketplace_items WHERE id = $1 AND item_type = $2
	`

	err := s.db.QueryRow(ctx, query, itemID, itemType).Scan(
		&item.ID, &item.Type, &item.Name, &item.Price, &item.IsFree,
		&item.SellerWalletAddress, &item.SellerUserID, &item.OwnerUserID,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// CreatePurchase inserts a purchase record, relying on the table's unique
// constraints to reject duplicates atomically.
func (s *PostgresStore) CreatePurchase(ctx context.Context, record *models.PurchaseRecord) error {
	query := `
		INSERT INTO purchases (id, buyer_id, seller_id, item_id, item_type, amount,
		                       transaction_signature, buyer_wallet_address,
		                       seller_wallet_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		record.ID, record.BuyerID, record.SellerID, record.ItemID, record.ItemType,
		record.Amount, record.TransactionSignature, record.BuyerWalletAddress,
		record.SellerWalletAddress, record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "purchases_signature_key":
				return models.ErrDuplicateSignature
			case "purchases_buyer_item_key":
				return models.ErrPurchaseExists
			}
			return models.ErrDuplicateSignature
		}
		return fmt.Errorf("failed to create purchase: %w", err)
	}

	s.logger.Info("Purchase recorded",
		zap.String("purchase_id", record.ID.String()),
		zap.String("buyer_id", record.BuyerID),
		zap.String("item_id", record.ItemID.String()),
		zap.String("signature", record.TransactionSignature),
	)

	return nil
}

// GetPurchase retrieves the purchase record for a buyer and item
func (s *PostgresStore) GetPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (*models.PurchaseRecord, error) {
	query := `
		SELECT id, buyer_id, seller_id, item_id, item_type, amount,
		       transaction_signature, buyer_wallet_address, seller_wallet_address, created_at
		FROM purchases WHERE buyer_id = $1 AND item_id = $2 AND item_type = $3
	`
	return s.scanPurchase(s.db.QueryRow(ctx, query, buyerID, itemID, itemType))
}

// GetPurchaseBySignature retrieves the purchase record holding a signature
func (s *PostgresStore) GetPurchaseBySignature(ctx context.Context, signature string) (*models.PurchaseRecord, error) {
	query := `
		SELECT id, buyer_id, seller_id, item_id, item_type, amount,
		       transaction_signature, buyer_wallet_address, seller_wallet_address, created_at
		FROM purchases WHERE transaction_signature = $1
	`
	return s.scanPurchase(s.db.QueryRow(ctx, query, signature))
}

// ListPurchasesByBuyer retrieves a page of a buyer's purchases, newest first
func (s *PostgresStore) ListPurchasesByBuyer(ctx context.Context, buyerID string, limit, offset int) ([]*models.PurchaseRecord, error) {
	query := `
		SELECT id, buyer_id, seller_id, item_id, item_type, amount,
		       transaction_signature, buyer_wallet_address, seller_wallet_address, created_at
		FROM purchases WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, buyerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var records []*models.PurchaseRecord
	for rows.Next() {
		record := &models.PurchaseRecord{}
		if err := rows.Scan(
			&record.ID, &record.BuyerID, &record.SellerID, &record.ItemID,
			&record.ItemType, &record.Amount, &record.TransactionSignature,
			&record.BuyerWalletAddress, &record.SellerWalletAddress, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) scanPurchase(row pgx.Row) (*models.PurchaseRecord, error) {
	record := &models.PurchaseRecord{}
	err := row.Scan(
		&record.ID, &record.BuyerID, &record.SellerID, &record.ItemID,
		&record.ItemType, &record.Amount, &record.TransactionSignature,
		&record.BuyerWalletAddress, &record.SellerWalletAddress, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return record, nil
}
