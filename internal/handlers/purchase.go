package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/purchase"
)

// CreatePurchase handles purchase recording requests: verify the submitted
// on-chain transaction and durably record it exactly once.
func CreatePurchase(ledger *purchase.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PurchaseCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("Failed to decode purchase request", zap.Error(err))
			writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}

		record, err := ledger.CreateTransaction(r.Context(), &req)
		if err != nil {
			logger.Error("Failed to record purchase",
				zap.String("signature", req.TransactionSignature),
				zap.String("buyer_id", req.BuyerID),
				zap.Error(err),
			)
			writePaymentError(w, err, "Failed to record purchase")
			return
		}

		writeJSONResponse(w, http.StatusCreated, record)
	}
}

// CheckPurchase handles the poll-safe "has this buyer paid" read.
func CheckPurchase(ledger *purchase.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID := r.URL.Query().Get("buyer_id")
		itemType := models.ItemType(r.URL.Query().Get("item_type"))
		itemID, err := uuid.Parse(r.URL.Query().Get("item_id"))
		if err != nil || buyerID == "" || !itemType.Valid() {
			writeErrorResponse(w, http.StatusBadRequest, "buyer_id, item_id and item_type are required", err)
			return
		}

		purchased, err := ledger.CheckUserPurchase(r.Context(), buyerID, itemID, itemType)
		if err != nil {
			logger.Error("Failed to check purchase",
				zap.String("buyer_id", buyerID),
				zap.String("item_id", itemID.String()),
				zap.Error(err),
			)
			writePaymentError(w, err, "Failed to check purchase")
			return
		}

		writeJSONResponse(w, http.StatusOK, models.PurchaseCheckResponse{HasPurchased: purchased})
	}
}

// ListPurchases handles purchase history requests.
func ListPurchases(ledger *purchase.Ledger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID := r.URL.Query().Get("buyer_id")
		if buyerID == "" {
			writeErrorResponse(w, http.StatusBadRequest, "buyer_id is required", nil)
			return
		}

		limit, offset := 50, 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
			if n, err := strconv.Atoi(offsetStr); err == nil && n >= 0 {
				offset = n
			}
		}

		records, err := ledger.ListPurchases(r.Context(), buyerID, limit, offset)
		if err != nil {
			logger.Error("Failed to list purchases", zap.String("buyer_id", buyerID), zap.Error(err))
			writePaymentError(w, err, "Failed to list purchases")
			return
		}

		writeJSONResponse(w, http.StatusOK, models.PurchaseHistoryResponse{
			Purchases: records,
			Limit:     limit,
			Offset:    offset,
		})
	}
}

// accessResponse is the gate decision plus the purchase offer details a
// locked viewer needs.
type accessResponse struct {
	gate.Decision
	Item accessItem `json:"item"`
}

type accessItem struct {
	ID                  uuid.UUID       `json:"id"`
	Type                models.ItemType `json:"type"`
	Name                string          `json:"name"`
	Price               string          `json:"price"`
	IsFree              bool            `json:"is_free"`
	SellerWalletAddress string          `json:"seller_wallet_address"`
	OwnerUserID         string          `json:"owner_user_id"`
}

// ItemAccess evaluates the access gate for a viewer and item.
func ItemAccess(ledger *purchase.Ledger, g *gate.Gate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid item ID", err)
			return
		}
		itemType := models.ItemType(r.URL.Query().Get("item_type"))
		if !itemType.Valid() {
			writeErrorResponse(w, http.StatusBadRequest, "item_type must be prompt or agent", nil)
			return
		}
		viewerID := r.URL.Query().Get("viewer_id")

		item, err := ledger.Item(r.Context(), itemID, itemType)
		if err != nil {
			if errors.Is(err, models.ErrItemNotFound) {
				writeErrorResponse(w, http.StatusNotFound, "Item not found", err)
				return
			}
			logger.Error("Failed to load item", zap.String("item_id", itemID.String()), zap.Error(err))
			writePaymentError(w, err, "Failed to load item")
			return
		}

		decision, err := g.Evaluate(r.Context(), item, viewerID)
		if err != nil {
			logger.Error("Access evaluation failed",
				zap.String("item_id", itemID.String()),
				zap.String("viewer_id", viewerID),
				zap.Error(err),
			)
			writePaymentError(w, err, "Failed to evaluate access")
			return
		}

		writeJSONResponse(w, http.StatusOK, accessResponse{
			Decision: decision,
			Item: accessItem{
				ID:                  item.ID,
				Type:                item.Type,
				Name:                item.Name,
				Price:               item.Price.String(),
				IsFree:              item.IsFree,
				SellerWalletAddress: item.SellerWalletAddress,
				OwnerUserID:         item.OwnerUserID,
			},
		})
	}
}

// Helper functions

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("Failed to encode JSON response", zap.Error(err))
	}
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}
	if err != nil {
		errorResponse["details"] = err.Error()
	}

	if encodeErr := json.NewEncoder(w).Encode(errorResponse); encodeErr != nil {
		zap.L().Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

// writePaymentError maps a domain error to an HTTP response, preserving the
// structured code and details for the client.
func writePaymentError(w http.ResponseWriter, err error, fallback string) {
	var pe *models.PaymentError
	if errors.As(err, &pe) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFromCode(pe.Code))
		if encodeErr := json.NewEncoder(w).Encode(pe); encodeErr != nil {
			zap.L().Error("Failed to encode error response", zap.Error(encodeErr))
		}
		return
	}
	writeErrorResponse(w, http.StatusInternalServerError, fallback, err)
}

// statusFromCode maps payment error codes to HTTP status codes
func statusFromCode(code string) int {
	switch code {
	case models.ErrCodeItemNotFound, models.ErrCodePurchaseNotFound:
		return http.StatusNotFound
	case models.ErrCodeInvalidTransaction, models.ErrCodeInvalidAmount,
		models.ErrCodeInvalidAddress, models.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case models.ErrCodePurchaseExists, models.ErrCodeDuplicateSignature:
		return http.StatusConflict
	case models.ErrCodeWalletNotConnected, models.ErrCodeUserRejected,
		models.ErrCodeConnectionPending, models.ErrCodeProviderNotFound:
		return http.StatusBadRequest
	case models.ErrCodeChainUnavailable, models.ErrCodeTransactionFailed:
		return http.StatusBadGateway
	case models.ErrCodeRPCNotConfigured, models.ErrCodePlatformWalletNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
