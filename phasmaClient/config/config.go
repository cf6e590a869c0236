package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/phasmapay/phasma/phasmaClient/constant"
)

const envPrefix = "PHASMA"

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if cfg.NodeHome == "" {
		cfg.NodeHome = constant.DefaultNodeHome
	}

	// Ledger
	if cfg.Network == "" {
		cfg.Network = constant.NetworkDevnet
	}
	if cfg.Network != constant.NetworkDevnet && cfg.Network != constant.NetworkMainnet {
		return fmt.Errorf("network must be '%s' or '%s'", constant.NetworkDevnet, constant.NetworkMainnet)
	}
	if len(cfg.RPCURLs) == 0 {
		cfg.RPCURLs = []string{defaultRPCURL(cfg.Network)}
	}
	if cfg.RPCRequestsPerSecond == 0 {
		cfg.RPCRequestsPerSecond = 10
	}
	if cfg.ConfirmTimeoutSeconds == 0 {
		cfg.ConfirmTimeoutSeconds = 60
	}

	// Token
	if cfg.TokenMint == "" {
		cfg.TokenMint = constant.USDCMintDevnet
		if cfg.Network == constant.NetworkMainnet {
			cfg.TokenMint = constant.USDCMintMainnet
		}
	}
	if _, err := solana.PublicKeyFromBase58(cfg.TokenMint); err != nil {
		return fmt.Errorf("token mint is not a valid address: %w", err)
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = constant.USDCDecimals
	}
	if cfg.LoyaltyMint == "" {
		cfg.LoyaltyMint = constant.SKRMint
	}
	if _, err := solana.PublicKeyFromBase58(cfg.LoyaltyMint); err != nil {
		return fmt.Errorf("loyalty mint is not a valid address: %w", err)
	}

	// Ghost receive
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 3
	}
	if cfg.PollTimeoutSeconds == 0 {
		cfg.PollTimeoutSeconds = 180
	}
	if cfg.PollTimeoutSeconds < cfg.PollIntervalSeconds {
		return fmt.Errorf("poll timeout must not be shorter than the poll interval")
	}
	if cfg.StaleSessionHours == 0 {
		cfg.StaleSessionHours = 24
	}

	// Compute budget
	if cfg.SweepComputeUnitLimit == 0 {
		cfg.SweepComputeUnitLimit = 60_000
	}
	if cfg.BatchComputeUnitsPerItem == 0 {
		cfg.BatchComputeUnitsPerItem = 50_000
	}
	if cfg.TransferComputeUnitLimit == 0 {
		cfg.TransferComputeUnitLimit = 40_000
	}
	if cfg.ComputeUnitPriceMicroLamports == 0 {
		cfg.ComputeUnitPriceMicroLamports = 5_000
	}

	// Swap routing
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = "https://quote-api.jup.ag/v6/quote"
	}
	if cfg.SwapURL == "" {
		cfg.SwapURL = "https://quote-api.jup.ag/v6/swap"
	}
	if cfg.QuoteTimeoutSeconds == 0 {
		cfg.QuoteTimeoutSeconds = 5
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = 50
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps > 10_000 {
		return fmt.Errorf("slippage bps must be between 0 and 10000")
	}

	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 100
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}
	if cfg.ActionBaseURL == "" {
		cfg.ActionBaseURL = fmt.Sprintf("http://localhost:%d", cfg.QueryServerPort)
	}
	cfg.ActionBaseURL = strings.TrimRight(cfg.ActionBaseURL, "/")

	if cfg.WalletKeypairPath == "" {
		cfg.WalletKeypairPath = filepath.Join(cfg.NodeHome, constant.WalletFileName)
	}

	return nil
}

func defaultRPCURL(network string) string {
	if network == constant.NetworkMainnet {
		return "https://api.mainnet-beta.solana.com"
	}
	return "https://api.devnet.solana.com"
}

// Save writes the given config to <NodeHome>/config/phasma_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the config from <basePath>/config/phasma_config.json, applies
// PHASMA_* environment overrides and fills defaults.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)

	v := viper.New()
	v.SetConfigFile(filepath.Clean(configFile))
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the poll ceiling as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// StaleAfter returns the age after which an unfunded pending session is dropped.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleSessionHours) * time.Hour
}

// ConfirmTimeout returns the confirmation wait ceiling.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutSeconds) * time.Second
}

// QuoteTimeout returns the per-call quote service timeout.
func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutSeconds) * time.Second
}

// DatabaseDir returns <NodeHome>/databases.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.NodeHome, constant.DatabasesSubdir)
}
