package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/phasmapay/phasma/phasmaClient/config"
	"github.com/phasmapay/phasma/phasmaClient/constant"
	"github.com/phasmapay/phasma/phasmaClient/core"
	"github.com/phasmapay/phasma/phasmaClient/history"
	"github.com/phasmapay/phasma/phasmaClient/logger"
	"github.com/phasmapay/phasma/phasmaClient/signer"
)

// Build metadata, set with -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		initCmd(),
		startCmd(),
		ghostCmd(),
		claimableCmd(),
		payCmd(),
		historyCmd(),
		loyaltyCmd(),
		queryCmd(),
		versionCmd(),
	)
}

func initCmd() *cobra.Command {
	var (
		network string
		rpcURLs []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config and create a wallet keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = homeDir
			if network != "" {
				cfg.Network = network
				cfg.RPCURLs = nil
			}
			if len(rpcURLs) > 0 {
				cfg.RPCURLs = rpcURLs
			}
			if err := config.Save(cfg, homeDir); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s/%s/%s\n", homeDir, constant.ConfigSubdir, constant.ConfigFileName)

			key, err := signer.LoadKeypairFile(cfg.WalletKeypairPath)
			if err != nil {
				key, err = solana.NewRandomPrivateKey()
				if err != nil {
					return fmt.Errorf("failed to generate wallet keypair: %w", err)
				}
				if err := signer.SaveKeypairFile(cfg.WalletKeypairPath, key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wallet keypair created at %s\n", cfg.WalletKeypairPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet address: %s\n", key.PublicKey())
			return nil
		},
	}

	cmd.Flags().StringVar(&network, "network", "", "Network to use (devnet|mainnet-beta)")
	cmd.Flags().StringSliceVar(&rpcURLs, "rpc", nil, "Solana RPC endpoints")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve the query and Solana Actions API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(cmd, os.Stdout)
			if err != nil {
				return err
			}
			return client.Start(ctx)
		},
	}
}

func historyCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored transactions and running totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer client.Close()

			entries, totals, err := client.History(cmd.Context())
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), HistoryOutput{
				Transactions:  entries,
				TotalCashback: totals.Cashback.String(),
				TotalSavedGas: totals.SavedGas.String(),
			}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func loyaltyCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "loyalty",
		Short: "Show the wallet's loyalty tier and cashback rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newConnectedClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.LoyaltyStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), status, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print phasmad version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Name:    %s\n", "phasmad")
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Commit:  %s\n", Commit)
		},
	}
}

// HistoryOutput is the printed form of the transaction history.
type HistoryOutput struct {
	Transactions  []history.StoredTransaction `yaml:"transactions" json:"transactions"`
	TotalCashback string                      `yaml:"total_cashback" json:"total_cashback"`
	TotalSavedGas string                      `yaml:"total_saved_gas" json:"total_saved_gas"`
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(homeDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config (run `phasmad init`?): %w", err)
	}
	return cfg, nil
}

// newClient builds a client whose logs go to logOut.
func newClient(cmd *cobra.Command, logOut io.Writer) (*core.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(logOut, cfg.LogLevel, cfg.LogFormat, cfg.LogSampler)
	return core.NewClient(cfg, core.Options{
		Out: cmd.OutOrStdout(),
		In:  cmd.InOrStdin(),
	}, log)
}

// newConnectedClient is newClient for one-shot commands, with the wallet
// session connected.
func newConnectedClient(cmd *cobra.Command) (*core.Client, error) {
	client, err := newClient(cmd, os.Stderr)
	if err != nil {
		return nil, err
	}
	if _, err := client.Connect(cmd.Context()); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
