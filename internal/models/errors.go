package models

import (
	"errors"
	"fmt"
)

// Common purchase-flow errors
var (
	// Wallet session errors
	ErrProviderNotFound   = errors.New("no wallet provider detected")
	ErrUserRejected       = errors.New("user rejected the request")
	ErrConnectionPending  = errors.New("a connection request is already pending")
	ErrWalletNotConnected = errors.New("wallet not connected")

	// Configuration errors
	ErrRPCNotConfigured            = errors.New("chain RPC endpoint not configured")
	ErrPlatformWalletNotConfigured = errors.New("platform fee wallet not configured")

	// Chain errors
	ErrTransactionFailed = errors.New("transaction failed on chain")
	ErrChainUnavailable  = errors.New("chain RPC unavailable")

	// Ledger errors
	ErrInvalidTransaction = errors.New("transaction does not satisfy verification")
	ErrDuplicateSignature = errors.New("transaction signature already recorded")
	ErrPurchaseExists     = errors.New("purchase already recorded for buyer and item")
	ErrPurchaseNotFound   = errors.New("purchase not found")
	ErrItemNotFound       = errors.New("item not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidAddress     = errors.New("invalid wallet address")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// PaymentError is a structured error carrying a stable code plus free-form
// diagnostic details (signature, addresses, chain error payloads).
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// NewPaymentError creates a new PaymentError
func NewPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *PaymentError) WithDetail(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes for structured error handling
const (
	ErrCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	ErrCodeUserRejected       = "USER_REJECTED"
	ErrCodeConnectionPending  = "CONNECTION_PENDING"
	ErrCodeWalletNotConnected = "WALLET_NOT_CONNECTED"

	ErrCodeRPCNotConfigured            = "RPC_NOT_CONFIGURED"
	ErrCodePlatformWalletNotConfigured = "PLATFORM_WALLET_NOT_CONFIGURED"

	ErrCodeTransactionFailed  = "TRANSACTION_FAILED"
	ErrCodeChainUnavailable   = "CHAIN_UNAVAILABLE"
	ErrCodeInvalidTransaction = "INVALID_TRANSACTION"
	ErrCodeDuplicateSignature = "DUPLICATE_SIGNATURE"
	ErrCodePurchaseExists     = "PURCHASE_EXISTS"
	ErrCodePurchaseNotFound   = "PURCHASE_NOT_FOUND"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidAddress     = "INVALID_ADDRESS"

	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeDatabaseError    = "DATABASE_ERROR"
	ErrCodeUnknown          = "UNKNOWN"
)

// Common error constructors

func NewValidationError(field, message string) *PaymentError {
	return NewPaymentError(ErrCodeValidationFailed, "Validation failed", ErrValidationFailed).
		WithDetail("field", field).
		WithDetail("message", message)
}

// NewTransactionFailedError wraps a chain-reported execution failure. The
// signature is always attached so the user can follow up on a block
// explorer; chainErr carries the raw error payload when the chain gave one.
func NewTransactionFailedError(signature string, chainErr interface{}, cause error) *PaymentError {
	e := NewPaymentError(ErrCodeTransactionFailed, "Transaction failed", cause)
	if signature != "" {
		e.WithDetail("signature", signature)
	}
	if chainErr != nil {
		e.WithDetail("chain_error", chainErr)
	}
	return e
}

func NewInvalidTransactionError(signature, reason string) *PaymentError {
	return NewPaymentError(ErrCodeInvalidTransaction, "Transaction verification failed", ErrInvalidTransaction).
		WithDetail("signature", signature).
		WithDetail("reason", reason)
}

func NewItemNotFoundError(itemID string) *PaymentError {
	return NewPaymentError(ErrCodeItemNotFound, "Item not found", ErrItemNotFound).
		WithDetail("item_id", itemID)
}

func NewChainError(operation string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeChainUnavailable, "Chain RPC operation failed", cause).
		WithDetail("operation", operation)
}

func NewDatabaseError(operation string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeDatabaseError, "Database operation failed", cause).
		WithDetail("operation", operation)
}
