package constant

import "os"

// <NodeDir>/                    (e.g., /home/merchant/.phasma)
// └── config/
//	└── phasma_config.json
// └── databases/
//	└── phasma.db
// └── wallet.json

const (
	NodeDir = ".phasma"

	ConfigSubdir   = "config"
	ConfigFileName = "phasma_config.json"

	DatabasesSubdir = "databases"
	DatabaseFile    = "phasma.db"

	WalletFileName = "wallet.json"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// Networks
const (
	NetworkDevnet  = "devnet"
	NetworkMainnet = "mainnet-beta"
)

// Mints
const (
	USDCMintDevnet  = "Gh9ZwEmdLJ8DscKNTkTqPbNwLNNBjuSzaG9Vp2KGtKJr"
	USDCMintMainnet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	SOLMint         = "So11111111111111111111111111111111111111112"
	SKRMint         = "SKRjqAFEbFsrqf5nfvGBHFbg1NqSrAcqgNNGvGJJiJm"

	USDCDecimals = 6
	SOLDecimals  = 9
)

// BlockchainIDs maps a network to its CAIP-2 style chain id used by Solana Actions.
var BlockchainIDs = map[string]string{
	NetworkDevnet:  "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1",
	NetworkMainnet: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
}

// AppName is shown as the default label of published payment requests.
const AppName = "PhasmaPay"
