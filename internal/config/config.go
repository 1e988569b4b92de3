package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Ethereum     EthereumConfig
	Stacks       StacksConfig
	Orchestrator OrchestratorConfig
	Monitor      MonitorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL configuration. The ledger runs in memory when Host is empty.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// EthereumConfig holds configuration for the source chain
type EthereumConfig struct {
	ChainID             string
	RPCEndpoint         string
	USDCContractAddress string // USDC ERC20 contract address
	BridgeAddress       string // xReserve contract address
	RemoteDomain        uint32 // xReserve domain of the Stacks ledger
	MaxFee              int64  // maxFee passed to depositToRemote, in base units
	PrivateKey          string // Signing key of the connected account
	ExplorerURL         string
	ConfirmPollInterval time.Duration
}

// StacksConfig holds configuration for the destination chain
type StacksConfig struct {
	Network         string // "mainnet" or "testnet"
	APIEndpoint     string // Hiro API base URL
	TokenContract   string // USDCx contract principal, e.g. SP...token-usdcx
	TokenAssetName  string // fungible token asset name inside the contract
	VaultContract   string // vault contract principal
	Principal       string // connected Stacks principal
	PublicKey       string // hex public key, used to derive Principal when it is empty
	ExplorerURL     string
	ArrivalInterval time.Duration
}

// OrchestratorConfig holds per-step timeouts
type OrchestratorConfig struct {
	ApprovalTimeout   time.Duration
	TransferTimeout   time.Duration
	SettlementTimeout time.Duration
	DepositTimeout    time.Duration
}

// MonitorConfig holds background monitor configuration
type MonitorConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// LoadConfig loads configuration from environment variables, reading a .env file first when present
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "usdcx_bridge"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Ethereum: EthereumConfig{
			ChainID:             getEnv("ETH_CHAIN_ID", "1"),
			RPCEndpoint:         getEnv("ETH_RPC_ENDPOINT", ""),
			USDCContractAddress: getEnv("ETH_USDC_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			BridgeAddress:       getEnv("ETH_XRESERVE_ADDRESS", ""),
			RemoteDomain:        uint32(getEnvInt("XRESERVE_STACKS_DOMAIN", 10003)),
			MaxFee:              int64(getEnvInt("XRESERVE_MAX_FEE", 0)),
			PrivateKey:          getEnv("ETH_PRIVATE_KEY", ""),
			ExplorerURL:         getEnv("ETH_EXPLORER_URL", "https://etherscan.io"),
			ConfirmPollInterval: getEnvDuration("ETH_CONFIRM_POLL_INTERVAL", 2*time.Second),
		},
		Stacks: StacksConfig{
			Network:         getEnv("STACKS_NETWORK", "mainnet"),
			APIEndpoint:     getEnv("STACKS_API_ENDPOINT", "https://api.mainnet.hiro.so"),
			TokenContract:   getEnv("STACKS_USDCX_CONTRACT", "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-usdcx"),
			TokenAssetName:  getEnv("STACKS_USDCX_ASSET", "usdcx"),
			VaultContract:   getEnv("STACKS_VAULT_CONTRACT", "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.usdcx-vault"),
			Principal:       getEnv("STACKS_PRINCIPAL", ""),
			PublicKey:       getEnv("STACKS_PUBLIC_KEY", ""),
			ExplorerURL:     getEnv("STACKS_EXPLORER_URL", "https://explorer.hiro.so"),
			ArrivalInterval: getEnvDuration("STACKS_ARRIVAL_POLL_INTERVAL", 15*time.Second),
		},
		Orchestrator: OrchestratorConfig{
			ApprovalTimeout:   getEnvDuration("APPROVAL_TIMEOUT", 5*time.Minute),
			TransferTimeout:   getEnvDuration("TRANSFER_TIMEOUT", 5*time.Minute),
			SettlementTimeout: getEnvDuration("SETTLEMENT_TIMEOUT", 30*time.Minute),
			DepositTimeout:    getEnvDuration("DEPOSIT_TIMEOUT", 10*time.Minute),
		},
		Monitor: MonitorConfig{
			PollInterval: getEnvDuration("MONITOR_POLL_INTERVAL", 30*time.Second),
			Timeout:      getEnvDuration("MONITOR_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Ethereum.RPCEndpoint == "" {
		return fmt.Errorf("ETH_RPC_ENDPOINT is required")
	}

	if c.Ethereum.BridgeAddress == "" {
		return fmt.Errorf("ETH_XRESERVE_ADDRESS is required")
	}

	if c.Ethereum.MaxFee < 0 {
		return fmt.Errorf("invalid xReserve max fee: %d", c.Ethereum.MaxFee)
	}

	if c.Stacks.Network != "mainnet" && c.Stacks.Network != "testnet" {
		return fmt.Errorf("invalid stacks network: %q", c.Stacks.Network)
	}

	if c.Stacks.APIEndpoint == "" {
		return fmt.Errorf("STACKS_API_ENDPOINT is required")
	}

	for name, principal := range map[string]string{
		"STACKS_USDCX_CONTRACT": c.Stacks.TokenContract,
		"STACKS_VAULT_CONTRACT": c.Stacks.VaultContract,
	} {
		if !strings.Contains(principal, ".") {
			return fmt.Errorf("%s must be a contract principal, got %q", name, principal)
		}
	}

	timeouts := []time.Duration{
		c.Orchestrator.ApprovalTimeout,
		c.Orchestrator.TransferTimeout,
		c.Orchestrator.SettlementTimeout,
		c.Orchestrator.DepositTimeout,
	}
	for _, t := range timeouts {
		if t <= 0 {
			return fmt.Errorf("orchestrator timeouts must be positive")
		}
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
