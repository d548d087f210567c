package config

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swarmhub/marketplace-payment-service/internal/models"
)

// Config represents the complete configuration for the payment service
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Solana   SolanaConfig   `yaml:"solana"`
	Purchase PurchaseConfig `yaml:"purchase"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int           `yaml:"max_connections"`
	MinConnections int           `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
}

// SolanaConfig represents chain client configuration
type SolanaConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	PlatformWallet string        `yaml:"platform_wallet"`
	Commitment     string        `yaml:"commitment"`
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// PurchaseConfig represents purchase-flow configuration
type PurchaseConfig struct {
	// FeeRate is the platform's share of each sale, as a fraction.
	FeeRate decimal.Decimal `yaml:"fee_rate"`
	// VerificationMaxAge bounds how old a submitted transaction may be and
	// still be recorded.
	VerificationMaxAge time.Duration `yaml:"verification_max_age"`
	ReconcileAttempts  int           `yaml:"reconcile_attempts"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
}

// ApplyDefaults fills unset fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8083
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 25
	}
	if c.Database.MinConnections == 0 {
		c.Database.MinConnections = 5
	}
	if c.Database.IdleTimeout == 0 {
		c.Database.IdleTimeout = 15 * time.Minute
	}
	if c.Database.MaxLifetime == 0 {
		c.Database.MaxLifetime = time.Hour
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Solana.Timeout == 0 {
		c.Solana.Timeout = 30 * time.Second
	}
	if c.Solana.PollInterval == 0 {
		c.Solana.PollInterval = time.Second
	}
	if c.Purchase.FeeRate.IsZero() {
		c.Purchase.FeeRate = decimal.NewFromFloat(0.10)
	}
	if c.Purchase.VerificationMaxAge == 0 {
		c.Purchase.VerificationMaxAge = 10 * time.Minute
	}
	if c.Purchase.ReconcileAttempts == 0 {
		c.Purchase.ReconcileAttempts = 3
	}
	if c.Purchase.ReconcileInterval == 0 {
		c.Purchase.ReconcileInterval = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate validates the configuration. A missing RPC endpoint or platform
// wallet is a deployment misconfiguration and fails startup, not a user
// error at purchase time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("%w: solana.rpc_url is required", models.ErrRPCNotConfigured)
	}
	if c.Solana.PlatformWallet == "" {
		return fmt.Errorf("%w: solana.platform_wallet is required", models.ErrPlatformWalletNotConfigured)
	}
	if _, err := solana.PublicKeyFromBase58(c.Solana.PlatformWallet); err != nil {
		return fmt.Errorf("%w: invalid platform wallet address: %v", models.ErrPlatformWalletNotConfigured, err)
	}
	if c.Purchase.FeeRate.LessThan(decimal.Zero) || c.Purchase.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("purchase fee rate must be in [0, 1)")
	}
	if c.Purchase.VerificationMaxAge < 0 {
		return fmt.Errorf("verification max age cannot be negative")
	}
	return nil
}

// PlatformWalletKey parses the configured platform wallet address.
func (c *Config) PlatformWalletKey() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(c.Solana.PlatformWallet)
}

// GetDatabaseConfig returns database configuration for pgxpool
func (c *Config) GetDatabaseConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	cfg.MaxConns = int32(c.Database.MaxConnections)
	cfg.MinConns = int32(c.Database.MinConnections)
	cfg.MaxConnLifetime = c.Database.MaxLifetime
	cfg.MaxConnIdleTime = c.Database.IdleTimeout

	return cfg, nil
}
