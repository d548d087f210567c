// buyctl is a headless buyer for the marketplace payment service. It signs
// with a local keypair, pays on chain, and records the purchase against the
// service's ledger API.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/client"
	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/models"
	"github.com/swarmhub/marketplace-payment-service/internal/purchase"
	"github.com/swarmhub/marketplace-payment-service/internal/wallet"
)

func usage() {
	fmt.Println("Usage: buyctl <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  buy <item_id> <item_type> <buyer_id>     purchase an item")
	fmt.Println("  access <item_id> <item_type> <buyer_id>  check access to an item")
	fmt.Println("  balance                                  show wallet balance")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  PAYMENT_SERVICE_URL   payment service base URL (default http://localhost:8083)")
	fmt.Println("  SOLANA_RPC_URL        chain RPC endpoint (default https://api.devnet.solana.com)")
	fmt.Println("  WALLET_PRIVATE_KEY    base58 private key (or WALLET_KEYPAIR_PATH to a key file)")
	fmt.Println("  PLATFORM_WALLET       platform fee wallet address")
}

func getenvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	serviceURL := getenvDefault("PAYMENT_SERVICE_URL", "http://localhost:8083")
	rpcURL := getenvDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com")

	rpcClient := rpc.New(rpcURL)
	api := client.NewClient(&client.Config{BaseURL: serviceURL}, logger)

	ctx := context.Background()

	switch os.Args[1] {
	case "buy":
		if len(os.Args) < 5 {
			fmt.Println("Usage: buyctl buy <item_id> <item_type> <buyer_id>")
			os.Exit(1)
		}
		runBuy(ctx, rpcClient, api, logger, os.Args[2], os.Args[3], os.Args[4])

	case "access":
		if len(os.Args) < 5 {
			fmt.Println("Usage: buyctl access <item_id> <item_type> <buyer_id>")
			os.Exit(1)
		}
		runAccess(ctx, api, os.Args[2], os.Args[3], os.Args[4])

	case "balance":
		runBalance(ctx, rpcClient, logger)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func parseItemArgs(itemIDArg, itemTypeArg string) (uuid.UUID, models.ItemType, error) {
	itemID, err := uuid.Parse(itemIDArg)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid item ID: %w", err)
	}
	itemType := models.ItemType(itemTypeArg)
	if !itemType.Valid() {
		return uuid.Nil, "", fmt.Errorf("invalid item type %q: must be prompt or agent", itemTypeArg)
	}
	return itemID, itemType, nil
}

func newSession(ctx context.Context, rpcClient *rpc.Client, logger *zap.Logger) (*wallet.Session, error) {
	provider, err := wallet.LoadKeypairProvider(os.Getenv("WALLET_KEYPAIR_PATH"))
	if err != nil {
		return nil, err
	}

	session := wallet.NewSession(provider, rpcClient, logger)
	session.Init(ctx)
	return session, nil
}

func runBuy(ctx context.Context, rpcClient *rpc.Client, api *client.Client, logger *zap.Logger, itemIDArg, itemTypeArg, buyerID string) {
	itemID, itemType, err := parseItemArgs(itemIDArg, itemTypeArg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// The access response carries the item's price and seller wallet, which
	// are what the payment is built from.
	access, err := api.GetAccess(ctx, itemID, itemType, buyerID)
	if err != nil {
		fmt.Printf("Error fetching item: %v\n", err)
		os.Exit(1)
	}
	item := access.MarketplaceItem()

	platformWallet, err := solana.PublicKeyFromBase58(os.Getenv("PLATFORM_WALLET"))
	if err != nil {
		fmt.Printf("Error: invalid PLATFORM_WALLET: %v\n", err)
		os.Exit(1)
	}

	session, err := newSession(ctx, rpcClient, logger)
	if err != nil {
		fmt.Printf("Error loading wallet: %v\n", err)
		os.Exit(1)
	}
	defer session.Close(ctx)

	feeRate := chain.DefaultFeeRate
	if raw := os.Getenv("PLATFORM_FEE_RATE"); raw != "" {
		if parsed, perr := decimal.NewFromString(raw); perr == nil {
			feeRate = parsed
		}
	}

	builder := chain.NewBuilder(rpcClient, platformWallet, chain.BuilderConfig{
		Commitment: rpc.CommitmentConfirmed,
		FeeRate:    feeRate,
	}, logger)

	flow := purchase.NewFlow(session, builder, api, gate.New(api, logger), purchase.FlowConfig{}, logger)

	fmt.Printf("Purchasing %s %q for %s SOL...\n", item.Type, item.Name, item.Price.String())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	result, err := flow.Purchase(ctx, item, buyerID)
	if err != nil {
		fmt.Printf("Purchase failed: %v\n", err)
		os.Exit(1)
	}

	if result.AlreadyAccessible {
		fmt.Printf("Already unlocked (%s), no payment needed\n", result.Decision.Reason)
		return
	}

	fmt.Printf("Purchase complete\n")
	fmt.Printf("  Signature: %s\n", result.Signature)
	if result.Record != nil {
		fmt.Printf("  Record ID: %s\n", result.Record.ID)
		fmt.Printf("  Amount:    %s SOL\n", result.Record.Amount.String())
	}
	if result.ReadLagged {
		fmt.Println("  Note: purchase recorded but not yet visible on the read path")
	}
}

func runAccess(ctx context.Context, api *client.Client, itemIDArg, itemTypeArg, buyerID string) {
	itemID, itemType, err := parseItemArgs(itemIDArg, itemTypeArg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	access, err := api.GetAccess(ctx, itemID, itemType, buyerID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Item:   %s (%s)\n", access.Item.Name, access.Item.Type)
	fmt.Printf("State:  %s\n", access.State)
	fmt.Printf("Reason: %s\n", access.Reason)
	if access.State == gate.StateLocked {
		fmt.Printf("Price:  %s SOL\n", access.Item.Price.String())
		fmt.Printf("Seller: %s\n", access.Item.SellerWalletAddress)
	}
}

func runBalance(ctx context.Context, rpcClient *rpc.Client, logger *zap.Logger) {
	session, err := newSession(ctx, rpcClient, logger)
	if err != nil {
		fmt.Printf("Error loading wallet: %v\n", err)
		os.Exit(1)
	}
	defer session.Close(ctx)

	if err := session.Connect(ctx); err != nil {
		fmt.Printf("Error connecting wallet: %v\n", err)
		os.Exit(1)
	}

	key, _ := session.PublicKey()
	fmt.Printf("Wallet:  %s\n", key.String())
	fmt.Printf("Balance: %s SOL\n", session.Balance().StringFixed(9))
}
