package purchase

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/wallet"
)

// Recorder is the ledger surface the flow records against: the in-process
// Ledger on the server, or the HTTP client from a headless buyer.
type Recorder interface {
	CreateTransaction(ctx context.Context, req *models.PurchaseCreateRequest) (*models.PurchaseRecord, error)
	CheckUserPurchase(ctx context.Context, buyerID string, itemID uuid.UUID, itemType models.ItemType) (bool, error)
}

// FlowConfig bounds the post-purchase reconciliation loop.
type FlowConfig struct {
	ReconcileAttempts int
	ReconcileInterval time.Duration
}

// Result is the outcome of one completed purchase flow.
type Result struct {
	Decision          gate.Decision
	Record            *models.PurchaseRecord
	Signature         string
	AlreadyAccessible bool
	// ReadLagged is set when the ledger write succeeded but the read path
	// did not reflect it within the retry budget. Content unlocks anyway:
	// the write is durable and the lag is propagation delay.
	ReadLagged bool
}

// Flow drives the purchase end to end: gate check, wallet connection,
// on-chain payment, ledger recording, and read-path reconciliation.
type Flow struct {
	session  *wallet.Session
	builder  *chain.Builder
	recorder Recorder
	gate     *gate.Gate
	attempts int
	interval time.Duration
	logger   *zap.Logger
}

// NewFlow creates a purchase flow.
func NewFlow(session *wallet.Session, builder *chain.Builder, recorder Recorder, g *gate.Gate, cfg FlowConfig, logger *zap.Logger) *Flow {
	attempts := cfg.ReconcileAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Flow{
		session:  session,
		builder:  builder,
		recorder: recorder,
		gate:     g,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

// Purchase runs one purchase attempt for the viewer. Cancelling ctx before
// the wallet signs aborts with no side effects. Once the transaction is
// submitted the flow continues on a detached context: the funds are live on
// chain regardless of what the caller does, so the recording and
// reconciliation steps must not be abandoned.
func (f *Flow) Purchase(ctx context.Context, item *models.MarketplaceItem, buyerID string) (*Result, error) {
	decision, err := f.gate.Evaluate(ctx, item, buyerID)
	if err != nil {
		return nil, err
	}
	if decision.State == gate.StateUnlocked {
		return &Result{Decision: decision, AlreadyAccessible: true}, nil
	}

	if !f.session.Connected() {
		if err := f.session.Connect(ctx); err != nil {
			return nil, err
		}
	}

	seller, err := solana.PublicKeyFromBase58(item.SellerWalletAddress)
	if err != nil {
		return nil, models.NewPaymentError(models.ErrCodeInvalidAddress,
			"Item has an invalid seller wallet address", models.ErrInvalidAddress).
			WithDetail("address", item.SellerWalletAddress)
	}

	sig, err := f.builder.Pay(ctx, f.session, chain.PaymentRequest{
		Seller:        seller,
		TotalLamports: chain.LamportsFromSOL(item.Price),
	})
	if err != nil {
		return nil, err
	}

	// Past the point of no return: the transfer is on chain.
	recordCtx := context.WithoutCancel(ctx)

	buyerWallet := ""
	if key, ok := f.session.PublicKey(); ok {
		buyerWallet = key.String()
	}

	record, err := f.recorder.CreateTransaction(recordCtx, &models.PurchaseCreateRequest{
		BuyerID:              buyerID,
		ItemID:               item.ID,
		ItemType:             item.Type,
		Amount:               item.Price,
		TransactionSignature: sig.String(),
		BuyerWalletAddress:   buyerWallet,
		SellerWalletAddress:  item.SellerWalletAddress,
	})
	if err != nil {
		// Recording failed after payment. Surface the signature so the
		// user can follow up; local success is not real until the ledger
		// accepts it.
		f.logger.Error("Purchase recording failed after on-chain payment",
			zap.String("signature", sig.String()),
			zap.String("buyer_id", buyerID),
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)
		if pe, ok := err.(*models.PaymentError); ok {
			return nil, pe.WithDetail("signature", sig.String())
		}
		return nil, err
	}

	lagged := !f.reconcile(recordCtx, buyerID, item)
	if lagged {
		f.logger.Warn("Read path did not reflect the purchase within the retry budget, unlocking anyway",
			zap.String("signature", sig.String()),
			zap.String("buyer_id", buyerID),
		)
	}

	return &Result{
		Decision:   gate.Decision{State: gate.StateUnlocked, Reason: gate.ReasonPurchased},
		Record:     record,
		Signature:  sig.String(),
		ReadLagged: lagged,
	}, nil
}

// reconcile re-queries the read path until it reflects the purchase or the
// retry budget runs out. This warms the read path; the ledger write is
// already durable either way.
func (f *Flow) reconcile(ctx context.Context, buyerID string, item *models.MarketplaceItem) bool {
	for attempt := 1; attempt <= f.attempts; attempt++ {
		purchased, err := f.recorder.CheckUserPurchase(ctx, buyerID, item.ID, item.Type)
		if err != nil {
			f.logger.Warn("Purchase re-check failed",
				zap.Int("attempt", attempt), zap.Error(err))
		} else if purchased {
			return true
		}

		if attempt == f.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(f.interval):
		}
	}
	return false
}
