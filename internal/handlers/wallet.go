package handlers

import (
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// WalletBalance handles on-chain balance reads for a wallet address.
func WalletBalance(rpcClient chain.Client, commitment rpc.CommitmentType, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		address := chi.URLParam(r, "address")
		key, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid wallet address", err)
			return
		}

		res, err := rpcClient.GetBalance(r.Context(), key, commitment)
		if err != nil {
			logger.Error("Failed to get wallet balance",
				zap.String("address", address), zap.Error(err))
			writePaymentError(w, models.NewChainError("get_balance", err), "Failed to get wallet balance")
			return
		}

		writeJSONResponse(w, http.StatusOK, models.BalanceResponse{
			Address:  address,
			Balance:  chain.SOLFromLamports(res.Value),
			Lamports: res.Value,
		})
	}
}
