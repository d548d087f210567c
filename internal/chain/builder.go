package chain

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// Signer provides the buyer's public key and a signature over a built
// transaction. A wallet session implements it.
type Signer interface {
	PublicKey() (solana.PublicKey, bool)
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// PaymentRequest describes one marketplace purchase payment.
type PaymentRequest struct {
	Seller        solana.PublicKey
	TotalLamports uint64
}

// BuilderConfig configures the transaction builder.
type BuilderConfig struct {
	Commitment   rpc.CommitmentType
	FeeRate      decimal.Decimal
	PollInterval time.Duration
}

// Builder constructs, submits, and confirms the two-leg purchase transfer:
// the seller's share followed by the platform fee. A single Pay call is one
// purchase attempt; any failure before submission leaves no on-chain
// footprint and may be retried wholesale.
type Builder struct {
	rpc            Client
	platformWallet solana.PublicKey
	feeRate        decimal.Decimal
	commitment     rpc.CommitmentType
	pollInterval   time.Duration
	logger         *zap.Logger
}

// NewBuilder creates a payment transaction builder.
func NewBuilder(rpcClient Client, platformWallet solana.PublicKey, cfg BuilderConfig, logger *zap.Logger) *Builder {
	feeRate := cfg.FeeRate
	if feeRate.IsZero() {
		feeRate = DefaultFeeRate
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Builder{
		rpc:            rpcClient,
		platformWallet: platformWallet,
		feeRate:        feeRate,
		commitment:     commitment,
		pollInterval:   pollInterval,
		logger:         logger,
	}
}

// Pay builds the split transfer, has the signer sign it, submits it, and
// waits for confirmation. Preconditions are checked before any network
// call, and cancelling ctx before submission aborts with no on-chain
// footprint. Once the transaction is submitted the caller's cancellation
// no longer applies: the funds move regardless, so confirmation runs to
// completion bounded by the blockhash validity window. On any failure
// after submission the returned error carries the signature so the caller
// can surface it for manual follow-up, and the transaction is never
// re-submitted here.
func (b *Builder) Pay(ctx context.Context, signer Signer, req PaymentRequest) (solana.Signature, error) {
	payer, connected := signer.PublicKey()
	if !connected {
		return solana.Signature{}, models.NewPaymentError(models.ErrCodeWalletNotConnected,
			"Wallet is not connected", models.ErrWalletNotConnected)
	}
	if b.rpc == nil {
		return solana.Signature{}, models.NewPaymentError(models.ErrCodeRPCNotConfigured,
			"Chain RPC endpoint is not configured", models.ErrRPCNotConfigured)
	}
	if b.platformWallet.IsZero() {
		return solana.Signature{}, models.NewPaymentError(models.ErrCodePlatformWalletNotConfigured,
			"Platform fee wallet is not configured", models.ErrPlatformWalletNotConfigured)
	}
	if req.TotalLamports == 0 {
		return solana.Signature{}, models.NewPaymentError(models.ErrCodeInvalidAmount,
			"Payment amount must be positive", models.ErrInvalidAmount)
	}

	sellerLamports, feeLamports := SplitPayment(req.TotalLamports, b.feeRate)

	// Seller leg first, platform leg only when the floored fee is non-zero.
	instructions := []solana.Instruction{
		system.NewTransferInstruction(sellerLamports, payer, req.Seller).Build(),
	}
	if feeLamports > 0 {
		instructions = append(instructions,
			system.NewTransferInstruction(feeLamports, payer, b.platformWallet).Build())
	}

	latest, err := b.rpc.GetLatestBlockhash(ctx, b.commitment)
	if err != nil {
		return solana.Signature{}, models.NewChainError("get_latest_blockhash", err)
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, models.NewChainError("build_transaction", err)
	}

	signed, err := signer.SignTransaction(ctx, tx)
	if err != nil {
		// The session maps provider rejections; pass them through untouched.
		return solana.Signature{}, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return solana.Signature{}, models.NewChainError("serialize_transaction", err)
	}

	sig, err := b.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: b.commitment,
	})
	if err != nil {
		return solana.Signature{}, models.NewChainError("send_transaction", err)
	}

	// Past the point of no return: the transfer is live on chain, so the
	// confirmation wait must survive the caller going away. The blockhash
	// validity window bounds it instead of ctx.
	ctx = context.WithoutCancel(ctx)

	b.logger.Info("Purchase transaction submitted",
		zap.String("signature", sig.String()),
		zap.String("payer", payer.String()),
		zap.String("seller", req.Seller.String()),
		zap.Uint64("seller_lamports", sellerLamports),
		zap.Uint64("fee_lamports", feeLamports),
	)

	if err := b.awaitConfirmation(ctx, sig, latest.Value.LastValidBlockHeight); err != nil {
		return sig, err
	}

	// Confirmation alone is not trusted: re-fetch by signature and check
	// the transaction metadata independently.
	if err := b.recheckTransaction(ctx, sig); err != nil {
		return sig, err
	}

	b.logger.Info("Purchase transaction confirmed", zap.String("signature", sig.String()))
	return sig, nil
}

// awaitConfirmation polls signature status until the target commitment is
// reached or the blockhash's validity window elapses. The window is a
// chain-native expiry, not an application timer.
func (b *Builder) awaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := b.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			b.logger.Warn("Signature status query failed, retrying",
				zap.String("signature", sig.String()), zap.Error(err))
		} else if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return models.NewTransactionFailedError(sig.String(), status.Err, models.ErrTransactionFailed)
			}
			if confirmationReached(status.ConfirmationStatus, b.commitment) {
				return nil
			}
		}

		height, err := b.rpc.GetBlockHeight(ctx, b.commitment)
		if err == nil && height > lastValidBlockHeight {
			return models.NewTransactionFailedError(sig.String(), nil,
				models.ErrTransactionFailed).
				WithDetail("reason", "block height exceeded transaction validity window")
		}

		select {
		case <-ctx.Done():
			return models.NewTransactionFailedError(sig.String(), nil, ctx.Err())
		case <-ticker.C:
		}
	}
}

// recheckTransaction fetches the transaction by signature and inspects its
// metadata. A confirmation that cannot be reproduced by an independent
// fetch is treated as a failure, not a success.
func (b *Builder) recheckTransaction(ctx context.Context, sig solana.Signature) error {
	res, err := b.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     b.commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		return models.NewTransactionFailedError(sig.String(), nil, err).
			WithDetail("reason", "confirmed transaction could not be re-fetched")
	}
	if res == nil {
		return models.NewTransactionFailedError(sig.String(), nil, models.ErrTransactionFailed).
			WithDetail("reason", "confirmed transaction not found on re-fetch")
	}
	if res.Meta != nil && res.Meta.Err != nil {
		return models.NewTransactionFailedError(sig.String(), res.Meta.Err, models.ErrTransactionFailed).
			WithDetail("reason", "transaction metadata reports an execution error")
	}
	return nil
}

func confirmationReached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return commitment == rpc.CommitmentConfirmed || commitment == rpc.CommitmentProcessed
	case rpc.ConfirmationStatusProcessed:
		return commitment == rpc.CommitmentProcessed
	}
	return false
}
