package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// TransferExpectation is what the ledger expects a purchase transaction to
// have actually done on chain, derived server-side from the item's
// canonical price.
type TransferExpectation struct {
	Buyer            solana.PublicKey
	Seller           solana.PublicKey
	SellerLamports   uint64
	Platform         solana.PublicKey
	PlatformLamports uint64
}

// VerifierConfig configures on-chain verification.
type VerifierConfig struct {
	Commitment rpc.CommitmentType
	// MaxAge bounds how old a transaction may be and still be recorded.
	// Zero disables the age check.
	MaxAge time.Duration
}

// Verifier independently confirms that a named transaction exists, executed
// without error, moved the expected amounts to the expected parties, and is
// recent enough to be recorded. It never trusts anything the client said
// about the transaction.
type Verifier struct {
	rpc        Client
	commitment rpc.CommitmentType
	maxAge     time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewVerifier creates a transaction verifier.
func NewVerifier(rpcClient Client, cfg VerifierConfig, logger *zap.Logger) *Verifier {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Verifier{
		rpc:        rpcClient,
		commitment: commitment,
		maxAge:     cfg.MaxAge,
		now:        time.Now,
		logger:     logger,
	}
}

// VerifyTransfer checks a submitted signature against the expectation.
// Any mismatch returns a models.ErrInvalidTransaction-wrapping error and
// the caller must record nothing.
func (v *Verifier) VerifyTransfer(ctx context.Context, signature string, expect TransferExpectation) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return models.NewInvalidTransactionError(signature, "malformed signature")
	}

	res, err := v.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     v.commitment,
		MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
	})
	if err != nil {
		return models.NewChainError("get_transaction", err)
	}
	if res == nil {
		return models.NewInvalidTransactionError(signature, "transaction not found on chain")
	}
	if res.Meta == nil {
		return models.NewInvalidTransactionError(signature, "transaction metadata unavailable")
	}
	if res.Meta.Err != nil {
		return models.NewInvalidTransactionError(signature,
			fmt.Sprintf("transaction executed with error: %v", res.Meta.Err))
	}

	if v.maxAge > 0 {
		if res.BlockTime == nil {
			return models.NewInvalidTransactionError(signature, "transaction has no block time")
		}
		age := v.now().Sub(res.BlockTime.Time())
		if age > v.maxAge {
			return models.NewInvalidTransactionError(signature,
				fmt.Sprintf("transaction is older than the acceptance window (%s > %s)", age, v.maxAge))
		}
	}

	parsed, err := res.Transaction.GetTransaction()
	if err != nil {
		return models.NewInvalidTransactionError(signature, "transaction payload could not be decoded")
	}

	if !expect.Buyer.IsZero() {
		if len(parsed.Message.AccountKeys) == 0 || !parsed.Message.AccountKeys[0].Equals(expect.Buyer) {
			return models.NewInvalidTransactionError(signature, "fee payer does not match buyer wallet")
		}
	}

	if err := v.checkLeg(signature, parsed, res.Meta, expect.Seller, expect.SellerLamports, "seller"); err != nil {
		return err
	}
	if expect.PlatformLamports > 0 {
		if err := v.checkLeg(signature, parsed, res.Meta, expect.Platform, expect.PlatformLamports, "platform"); err != nil {
			return err
		}
	}

	v.logger.Debug("Transaction verified",
		zap.String("signature", signature),
		zap.Uint64("seller_lamports", expect.SellerLamports),
		zap.Uint64("platform_lamports", expect.PlatformLamports),
	)
	return nil
}

// checkLeg confirms one recipient was credited the expected amount, within
// the accepted rounding slack.
func (v *Verifier) checkLeg(signature string, tx *solana.Transaction, meta *rpc.TransactionMeta, recipient solana.PublicKey, lamports uint64, leg string) error {
	credited, found := balanceDelta(tx, meta, recipient)
	if !found {
		return models.NewInvalidTransactionError(signature,
			fmt.Sprintf("%s wallet %s is not a party to the transaction", leg, recipient))
	}

	diff := credited - int64(lamports)
	if diff < 0 {
		diff = -diff
	}
	if diff > LamportSlack {
		return models.NewInvalidTransactionError(signature,
			fmt.Sprintf("%s wallet credited %d lamports, expected %d", leg, credited, lamports))
	}
	return nil
}

// balanceDelta returns post minus pre balance for the account, and whether
// the account appears in the transaction at all.
func balanceDelta(tx *solana.Transaction, meta *rpc.TransactionMeta, account solana.PublicKey) (int64, bool) {
	for i, key := range tx.Message.AccountKeys {
		if !key.Equals(account) {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			return 0, false
		}
		return int64(meta.PostBalances[i]) - int64(meta.PreBalances[i]), true
	}
	return 0, false
}
