package config

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" mapstructure:"log_level"`     // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" mapstructure:"log_format"`   // "json" or "console"
	LogSampler bool   `json:"log_sampler" mapstructure:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home" mapstructure:"node_home"` // Home directory (default: ~/.phasma)

	// Ledger configuration
	Network               string   `json:"network" mapstructure:"network"`                                 // "devnet" or "mainnet-beta"
	RPCURLs               []string `json:"rpc_urls" mapstructure:"rpc_urls"`                               // Solana RPC endpoints, used round-robin
	RPCRequestsPerSecond  int      `json:"rpc_requests_per_second" mapstructure:"rpc_requests_per_second"` // Client-side RPC rate limit (default: 10)
	ConfirmTimeoutSeconds int      `json:"confirm_timeout_seconds" mapstructure:"confirm_timeout_seconds"` // Max wait for a signature to confirm (default: 60)

	// Token configuration
	TokenMint     string `json:"token_mint" mapstructure:"token_mint"`         // Payment stablecoin mint (default: USDC for the network)
	TokenDecimals uint8  `json:"token_decimals" mapstructure:"token_decimals"` // Payment stablecoin decimals (default: 6)
	LoyaltyMint   string `json:"loyalty_mint" mapstructure:"loyalty_mint"`     // Staked loyalty token mint (default: SKR)

	// Ghost receive configuration
	PollIntervalSeconds int `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"` // Balance poll interval (default: 3)
	PollTimeoutSeconds  int `json:"poll_timeout_seconds" mapstructure:"poll_timeout_seconds"`   // Give up waiting for funds after (default: 180)
	StaleSessionHours   int `json:"stale_session_hours" mapstructure:"stale_session_hours"`     // Unfunded pending sessions are dropped after (default: 24)

	// Compute budget
	SweepComputeUnitLimit         uint32 `json:"sweep_compute_unit_limit" mapstructure:"sweep_compute_unit_limit"`                   // default: 60000
	BatchComputeUnitsPerItem      uint32 `json:"batch_compute_units_per_item" mapstructure:"batch_compute_units_per_item"`           // default: 50000
	TransferComputeUnitLimit      uint32 `json:"transfer_compute_unit_limit" mapstructure:"transfer_compute_unit_limit"`             // default: 40000
	ComputeUnitPriceMicroLamports uint64 `json:"compute_unit_price_micro_lamports" mapstructure:"compute_unit_price_micro_lamports"` // default: 5000

	// Swap routing
	QuoteURL            string `json:"quote_url" mapstructure:"quote_url"`                         // Quote endpoint
	SwapURL             string `json:"swap_url" mapstructure:"swap_url"`                           // Swap transaction endpoint
	QuoteTimeoutSeconds int    `json:"quote_timeout_seconds" mapstructure:"quote_timeout_seconds"` // Per-call timeout (default: 5)
	SlippageBps         int    `json:"slippage_bps" mapstructure:"slippage_bps"`                   // default: 50

	// History
	HistoryLimit int `json:"history_limit" mapstructure:"history_limit"` // Max stored transactions (default: 100)

	// Query Server Config
	QueryServerPort int    `json:"query_server_port" mapstructure:"query_server_port"` // Port for HTTP query server (default: 8080)
	ActionBaseURL   string `json:"action_base_url" mapstructure:"action_base_url"`     // Public base URL used in Solana Actions hrefs

	// Wallet
	WalletKeypairPath string `json:"wallet_keypair_path" mapstructure:"wallet_keypair_path"` // Local keypair used by the in-process wallet
}
