// Package gate decides whether a viewer may see gated marketplace content.
package gate

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// State is the gate's position for one item view.
type State string

const (
	// StateChecking means a ledger query is required before deciding.
	StateChecking State = "checking"
	// StateLocked means no purchase exists; the purchase offer renders.
	StateLocked State = "locked"
	// StateUnlocked means the content renders.
	StateUnlocked State = "unlocked"
)

// Reason explains an unlocked or locked decision.
type Reason string

const (
	ReasonFree            Reason = "free"
	ReasonOwner           Reason = "owner"
	ReasonPurchased       Reason = "purchased"
	ReasonPaymentRequired Reason = "payment_required"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	State  State  `json:"state"`
	Reason Reason `json:"reason"`
}

// PurchaseChecker is the ledger read the gate consults for paid items.
type PurchaseChecker interface {
	CheckUserPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (bool, error)
}

// Gate evaluates access for gated content. Evaluation is stateless per
// call: after a purchase completes the caller re-evaluates rather than
// assuming success, because the ledger write may not be visible to the
// read path yet.
type Gate struct {
	checker PurchaseChecker
	logger  *zap.Logger
}

// New creates an access gate over the given ledger reader.
func New(checker PurchaseChecker, logger *zap.Logger) *Gate {
	return &Gate{checker: checker, logger: logger}
}

// Evaluate resolves the gate for one viewer and item. Free items and the
// item's own creator unlock without any ledger query.
func (g *Gate) Evaluate(ctx context.Context, item *models.MarketplaceItem, viewerID string) (Decision, error) {
	if item.IsFree || !item.RequiresPurchase() {
		return Decision{State: StateUnlocked, Reason: ReasonFree}, nil
	}
	if viewerID != "" && viewerID == item.OwnerUserID {
		return Decision{State: StateUnlocked, Reason: ReasonOwner}, nil
	}
	if viewerID == "" {
		return Decision{State: StateLocked, Reason: ReasonPaymentRequired}, nil
	}

	purchased, err := g.checker.CheckUserPurchase(ctx, viewerID, item.ID, item.Type)
	if err != nil {
		// A failed check must never unlock content.
		g.logger.Error("Purchase check failed, keeping content locked",
			zap.String("viewer_id", viewerID),
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
		return Decision{State: StateLocked, Reason: ReasonPaymentRequired}, err
	}

	if purchased {
		return Decision{State: StateUnlocked, Reason: ReasonPurchased}, nil
	}
	return Decision{State: StateLocked, Reason: ReasonPaymentRequired}, nil
}
