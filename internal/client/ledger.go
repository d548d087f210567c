// Package client provides an HTTP client for the payment service API, used
// by headless buyers driving the purchase flow remotely.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// Client calls the payment service API. It satisfies purchase.Recorder and
// gate.PurchaseChecker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config represents payment service client configuration
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewClient creates a new payment service client
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateTransaction submits an on-chain payment for recording.
func (c *Client) CreateTransaction(ctx context.Context, req *models.PurchaseCreateRequest) (*models.PurchaseRecord, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal purchase request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/purchases", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to submit purchase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var record models.PurchaseRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode purchase record: %w", err)
	}
	return &record, nil
}

// CheckUserPurchase polls the read path for a recorded purchase.
func (c *Client) CheckUserPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/purchases/check?buyer_id=%s&item_id=%s&item_type=%s",
		c.baseURL, url.QueryEscape(buyerID), itemID.String(), itemType)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}

	var check models.PurchaseCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		return false, fmt.Errorf("failed to decode purchase check: %w", err)
	}
	return check.HasPurchased, nil
}

// AccessResponse is the gate decision plus purchase offer details.
type AccessResponse struct {
	State  gate.State  `json:"state"`
	Reason gate.Reason `json:"reason"`
	Item   struct {
		ID                  uuid.UUID       `json:"id"`
		Type                models.ItemType `json:"type"`
		Name                string          `json:"name"`
		Price               decimal.Decimal `json:"price"`
		IsFree              bool            `json:"is_free"`
		SellerWalletAddress string          `json:"seller_wallet_address"`
		OwnerUserID         string          `json:"owner_user_id"`
	} `json:"item"`
}

// GetAccess evaluates the access gate for a viewer and item.
func (c *Client) GetAccess(ctx context.Context, itemID uuid.UUID, itemType models.ItemType, viewerID string) (*AccessResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/items/%s/access?item_type=%s&viewer_id=%s",
		c.baseURL, itemID.String(), itemType, url.QueryEscape(viewerID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to get access: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var access AccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&access); err != nil {
		return nil, fmt.Errorf("failed to decode access response: %w", err)
	}
	return &access, nil
}

// MarketplaceItem reconstructs the marketplace item from an access
// response, for driving the purchase flow client-side.
func (a *AccessResponse) MarketplaceItem() *models.MarketplaceItem {
	return &models.MarketplaceItem{
		ID:                  a.Item.ID,
		Type:                a.Item.Type,
		Name:                a.Item.Name,
		Price:               a.Item.Price,
		IsFree:              a.Item.IsFree,
		SellerWalletAddress: a.Item.SellerWalletAddress,
		OwnerUserID:         a.Item.OwnerUserID,
	}
}

// decodeAPIError rebuilds a structured payment error when the service sent
// one, so client-side callers see the same taxonomy as in-process ones.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var pe models.PaymentError
	if err := json.Unmarshal(body, &pe); err == nil && pe.Code != "" {
		return &pe
	}
	return fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(body))
}
