package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Ethereum: EthereumConfig{
			RPCEndpoint:   "http://localhost:8545",
			BridgeAddress: "0x0000000000000000000000000000000000000001",
		},
		Stacks: StacksConfig{
			Network:       "mainnet",
			APIEndpoint:   "https://api.mainnet.hiro.so",
			TokenContract: "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.token-usdcx",
			VaultContract: "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9.usdcx-vault",
		},
		Orchestrator: OrchestratorConfig{
			ApprovalTimeout:   time.Minute,
			TransferTimeout:   time.Minute,
			SettlementTimeout: time.Minute,
			DepositTimeout:    time.Minute,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "missing rpc endpoint",
			mutate:  func(c *Config) { c.Ethereum.RPCEndpoint = "" },
			wantErr: true,
		},
		{
			name:    "missing bridge address",
			mutate:  func(c *Config) { c.Ethereum.BridgeAddress = "" },
			wantErr: true,
		},
		{
			name:    "negative max fee",
			mutate:  func(c *Config) { c.Ethereum.MaxFee = -1 },
			wantErr: true,
		},
		{
			name:    "unknown network",
			mutate:  func(c *Config) { c.Stacks.Network = "devnet" },
			wantErr: true,
		},
		{
			name:    "vault is not a contract principal",
			mutate:  func(c *Config) { c.Stacks.VaultContract = "SP3K8BC0PPEVCV7NZ6QSRWPQ2JE9E5B6N3PA0KBR9" },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Orchestrator.SettlementTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")

	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Errorf("getEnv() = %q, want %q", got, "value")
	}
	if got := getEnv("TEST_MISSING", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}
	if got := getEnvInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 1); got != 1 {
		t.Errorf("getEnvInt() with bad value = %d, want default 1", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ETH_RPC_ENDPOINT", "http://localhost:8545")
	t.Setenv("ETH_XRESERVE_ADDRESS", "0x0000000000000000000000000000000000000001")
	t.Setenv("XRESERVE_STACKS_DOMAIN", "7")
	t.Setenv("STACKS_NETWORK", "testnet")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() unexpected error: %v", err)
	}

	if cfg.Ethereum.RemoteDomain != 7 {
		t.Errorf("RemoteDomain = %d, want 7", cfg.Ethereum.RemoteDomain)
	}
	if cfg.Stacks.Network != "testnet" {
		t.Errorf("Network = %q, want testnet", cfg.Stacks.Network)
	}
	if cfg.Database.Enabled() {
		t.Error("Database should be disabled without DB_HOST")
	}
	if cfg.Orchestrator.SettlementTimeout != 30*time.Minute {
		t.Errorf("SettlementTimeout = %v, want 30m", cfg.Orchestrator.SettlementTimeout)
	}
}
