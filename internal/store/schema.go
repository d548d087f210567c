package store

// Database schema definitions for the marketplace payment service.
//
// marketplace_items is owned by the marketplace CRUD surface; it is created
// here so the service can run against a fresh database, but this service
// only ever reads it.

const createItemsTable = `
CREATE TABLE IF NOT EXISTS marketplace_items (
    id UUID PRIMARY KEY,
    item_type VARCHAR(50) NOT NULL CHECK (item_type IN ('prompt', 'agent')),
    name VARCHAR(255) NOT NULL,
    price DECIMAL(20,9) NOT NULL DEFAULT 0,
    is_free BOOLEAN NOT NULL DEFAULT FALSE,
    seller_wallet_address VARCHAR(255) NOT NULL,
    seller_user_id VARCHAR(255) NOT NULL,
    owner_user_id VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (price >= 0)
);
`

const createPurchasesTable = `
CREATE TABLE IF NOT EXISTS purchases (
    id UUID PRIMARY KEY,
    buyer_id VARCHAR(255) NOT NULL,
    seller_id VARCHAR(255) NOT NULL,
    item_id UUID NOT NULL,
    item_type VARCHAR(50) NOT NULL CHECK (item_type IN ('prompt', 'agent')),
    amount DECIMAL(20,9) NOT NULL,
    transaction_signature VARCHAR(255) NOT NULL,
    buyer_wallet_address VARCHAR(255) NOT NULL,
    seller_wallet_address VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT purchases_signature_key UNIQUE (transaction_signature),
    CONSTRAINT purchases_buyer_item_key UNIQUE (buyer_id, item_id, item_type),
    CHECK (amount > 0)
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_items_owner ON marketplace_items(owner_user_id);
CREATE INDEX IF NOT EXISTS idx_items_seller ON marketplace_items(seller_user_id);

CREATE INDEX IF NOT EXISTS idx_purchases_buyer_id ON purchases(buyer_id);
CREATE INDEX IF NOT EXISTS idx_purchases_seller_id ON purchases(seller_id);
CREATE INDEX IF NOT EXISTS idx_purchases_item ON purchases(item_id, item_type);
CREATE INDEX IF NOT EXISTS idx_purchases_created_at ON purchases(created_at);
`
