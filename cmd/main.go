package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/swarmhub/marketplace-payment-service/internal/chain"
	"github.com/swarmhub/marketplace-payment-service/internal/config"
	"github.com/swarmhub/marketplace-payment-service/internal/gate"
	"github.com/swarmhub/marketplace-payment-service/internal/handlers"
	"github.com/swarmhub/marketplace-payment-service/internal/purchase"
	"github.com/swarmhub/marketplace-payment-service/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logger
	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Marketplace Payment Service starting up...")

	// Setup database connection
	dbPool, err := setupDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	// Initialize database schema
	pgStore := store.NewPostgresStore(dbPool, logger)
	if err := pgStore.Initialize(context.Background()); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}

	// Setup chain clients
	rpcClient := rpc.New(cfg.Solana.RPCURL)
	commitment := chain.ParseCommitment(cfg.Solana.Commitment)
	platformWallet, err := cfg.PlatformWalletKey()
	if err != nil {
		logger.Fatal("Failed to parse platform wallet", zap.Error(err))
	}
	logger.Info("Chain RPC client initialized",
		zap.String("endpoint", cfg.Solana.RPCURL),
		zap.String("commitment", cfg.Solana.Commitment),
	)

	verifier := chain.NewVerifier(rpcClient, chain.VerifierConfig{
		Commitment: commitment,
		MaxAge:     cfg.Purchase.VerificationMaxAge,
	}, logger)

	// Setup purchase ledger and access gate
	ledger := purchase.NewLedger(pgStore, verifier, platformWallet, cfg.Purchase.FeeRate, logger)
	accessGate := gate.New(ledger, logger)

	// Setup HTTP server
	server := setupHTTPServer(cfg, ledger, accessGate, rpcClient, commitment, logger)

	// Setup graceful shutdown
	setupGracefulShutdown(server, cfg.Server.ShutdownTimeout, logger)

	// Start server
	logger.Info("Starting HTTP server", zap.String("address", fmt.Sprintf(":%d", cfg.Server.Port)))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}

// loadConfig loads configuration from file
func loadConfig(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setupLogger initializes the logger
func setupLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zapLevel
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapConfig.Build()
}

// setupDatabase initializes the database connection
func setupDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poolConfig, err := cfg.GetDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return pool, nil
}

// setupHTTPServer configures and returns the HTTP server
func setupHTTPServer(cfg *config.Config, ledger *purchase.Ledger, accessGate *gate.Gate, rpcClient chain.Client, commitment rpc.CommitmentType, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"marketplace-payment-service"}`))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Purchase ledger
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", handlers.CreatePurchase(ledger, logger))
			r.Get("/", handlers.ListPurchases(ledger, logger))
			r.Get("/check", handlers.CheckPurchase(ledger, logger))
		})

		// Item access gate
		r.Get("/items/{itemID}/access", handlers.ItemAccess(ledger, accessGate, logger))

		// Wallet queries
		r.Get("/wallet/{address}/balance", handlers.WalletBalance(rpcClient, commitment, logger))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// setupGracefulShutdown configures graceful shutdown handling
func setupGracefulShutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown server gracefully", zap.Error(err))
		} else {
			logger.Info("Server shutdown completed")
		}
	}()
}
