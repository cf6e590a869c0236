package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phasmapay/phasma/phasmaClient/constant"
)

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		expectError bool
		errorMsg    string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "Valid config with console log format",
			config: &Config{
				LogLevel:  1,
				LogFormat: "console",
			},
		},
		{
			name: "Invalid log level (negative)",
			config: &Config{
				LogLevel:  -1,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log level (too high)",
			config: &Config{
				LogLevel:  6,
				LogFormat: "json",
			},
			expectError: true,
			errorMsg:    "log level must be between 0 and 5",
		},
		{
			name: "Invalid log format",
			config: &Config{
				LogLevel:  2,
				LogFormat: "xml",
			},
			expectError: true,
			errorMsg:    "log format must be 'json' or 'console'",
		},
		{
			name: "Invalid network",
			config: &Config{
				LogFormat: "json",
				Network:   "testnet",
			},
			expectError: true,
			errorMsg:    "network must be",
		},
		{
			name: "Invalid token mint",
			config: &Config{
				LogFormat: "json",
				TokenMint: "not-a-mint",
			},
			expectError: true,
			errorMsg:    "token mint is not a valid address",
		},
		{
			name: "Timeout shorter than interval",
			config: &Config{
				LogFormat:           "json",
				PollIntervalSeconds: 10,
				PollTimeoutSeconds:  5,
			},
			expectError: true,
			errorMsg:    "poll timeout must not be shorter than the poll interval",
		},
		{
			name: "Config with defaults applied",
			config: &Config{
				LogLevel:  2,
				LogFormat: "json",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, constant.NetworkDevnet, cfg.Network)
				assert.Equal(t, []string{"https://api.devnet.solana.com"}, cfg.RPCURLs)
				assert.Equal(t, constant.USDCMintDevnet, cfg.TokenMint)
				assert.Equal(t, uint8(6), cfg.TokenDecimals)
				assert.Equal(t, 3, cfg.PollIntervalSeconds)
				assert.Equal(t, 180, cfg.PollTimeoutSeconds)
				assert.Equal(t, 24, cfg.StaleSessionHours)
				assert.Equal(t, uint32(60_000), cfg.SweepComputeUnitLimit)
				assert.Equal(t, uint64(5_000), cfg.ComputeUnitPriceMicroLamports)
				assert.Equal(t, 5, cfg.QuoteTimeoutSeconds)
				assert.Equal(t, 100, cfg.HistoryLimit)
				assert.Equal(t, 8080, cfg.QueryServerPort)
				assert.Equal(t, "http://localhost:8080", cfg.ActionBaseURL)
			},
		},
		{
			name: "Mainnet selects mainnet mint and rpc",
			config: &Config{
				LogFormat: "json",
				Network:   constant.NetworkMainnet,
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, constant.USDCMintMainnet, cfg.TokenMint)
				assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.RPCURLs)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateConfig(tc.config)

			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
				return
			}
			require.NoError(t, err)
			if tc.validate != nil {
				tc.validate(t, tc.config)
			}
		})
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 3, cfg.PollIntervalSeconds)
	assert.Equal(t, "https://quote-api.jup.ag/v6/quote", cfg.QuoteURL)
	assert.Equal(t, constant.SKRMint, cfg.LoyaltyMint)
}

func TestSaveAndLoad(t *testing.T) {
	home := t.TempDir()

	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)
	cfg.NodeHome = home
	cfg.QueryServerPort = 9191
	cfg.ActionBaseURL = "https://pay.example.com/"

	require.NoError(t, Save(cfg, home))

	info, err := os.Stat(filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.QueryServerPort)
	assert.Equal(t, "https://pay.example.com", loaded.ActionBaseURL)
	assert.Equal(t, home, loaded.NodeHome)
	assert.Equal(t, filepath.Join(home, constant.WalletFileName), loaded.WalletKeypairPath)
}

func TestLoadEnvOverride(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadDefaultConfig()
	require.NoError(t, err)
	cfg.NodeHome = home
	require.NoError(t, Save(cfg, home))

	t.Setenv("PHASMA_POLL_TIMEOUT_SECONDS", "30")

	loaded, err := Load(home)
	require.NoError(t, err)
	assert.Equal(t, 30, loaded.PollTimeoutSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
