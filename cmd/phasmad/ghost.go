package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/claimable"
	"github.com/phasmapay/phasma/phasmaClient/core"
	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/ghost"
	"github.com/phasmapay/phasma/phasmaClient/nearfield"
)

// ClaimableOutput is the printed form of a claimable scan.
type ClaimableOutput struct {
	Items []cache.ClaimableEntry `yaml:"items" json:"items"`
	Total string                 `yaml:"total" json:"total"`
}

// ClaimOutput is the printed result of a sweep.
type ClaimOutput struct {
	Signature string   `yaml:"signature" json:"signature"`
	Amount    string   `yaml:"amount" json:"amount"`
	Claimed   []string `yaml:"claimed,omitempty" json:"claimed,omitempty"`
	Skipped   []string `yaml:"skipped,omitempty" json:"skipped,omitempty"`
}

func ghostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghost",
		Short: "Receive payments on one-time addresses",
	}
	cmd.AddCommand(ghostReceiveCmd(), ghostClaimCmd())
	return cmd
}

func ghostReceiveCmd() *cobra.Command {
	var (
		amountFlag string
		noClaim    bool
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Publish a one-time address and wait for the payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(amountFlag)
			if err != nil {
				return perrors.NewValidationError("invalid amount: " + amountFlag)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newConnectedClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			states := make(chan ghost.State, 32)
			client.Ghost().OnStateChange(func(s ghost.State) {
				select {
				case states <- s:
				default:
				}
			})

			if err := client.Ghost().Start(ctx, amount); err != nil {
				return err
			}
			return followReceive(ctx, cmd, client, states, !noClaim)
		},
	}

	cmd.Flags().StringVar(&amountFlag, "amount", "", "Amount to request, in token units")
	cmd.Flags().BoolVar(&noClaim, "no-claim", false, "Leave received funds on the one-time address")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func followReceive(ctx context.Context, cmd *cobra.Command, client *core.Client, states <-chan ghost.State, claim bool) error {
	out := cmd.OutOrStdout()
	mint := solana.MustPublicKeyFromBase58(client.Config().TokenMint)

	for {
		select {
		case <-ctx.Done():
			client.Ghost().Reset(context.Background())
			fmt.Fprintln(out, "Stopped waiting. The address stays claimable with `phasmad claimable list`.")
			return nil
		case s := <-states:
			switch st := s.(type) {
			case ghost.Writing:
				fmt.Fprintf(out, "Session %s\n", st.SessionID)
				fmt.Fprintf(out, "Pay URL: %s\n", nearfield.BuildPayURL(st.Address, st.Amount, mint, nearfield.GhostLabel))
			case ghost.Polling:
				fmt.Fprintf(out, "Waiting for %s on %s...\n", st.Amount, st.Address)
			case ghost.Received:
				fmt.Fprintf(out, "Received %s\n", st.Amount)
				if !claim {
					return nil
				}
				done, err := client.Ghost().Claim(ctx, st.SessionID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Claimed %s, signature %s\n", done.Amount, done.Signature)
				return nil
			case ghost.Failed:
				return st.Err
			}
		}
	}
}

func ghostClaimCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "claim [session-id]",
		Short: "Sweep one recorded session to the wallet, the newest when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newConnectedClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Claimable().ListClaimable(cmd.Context())
			if err != nil {
				return err
			}
			item, err := pickItem(items, args)
			if err != nil {
				return err
			}
			return claimItems(cmd, client, []claimable.Item{item}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// pickItem selects the item named by args, or the newest one.
func pickItem(items []claimable.Item, args []string) (claimable.Item, error) {
	if len(args) == 0 {
		if len(items) == 0 {
			return claimable.Item{}, perrors.NewSessionNotFoundError("")
		}
		return items[0], nil
	}
	for _, item := range items {
		if item.ID == args[0] {
			return item, nil
		}
	}
	return claimable.Item{}, perrors.NewSessionNotFoundError(args[0])
}

func claimableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claimable",
		Short: "Inspect and sweep funds left on one-time addresses",
	}
	cmd.AddCommand(claimableListCmd(), claimableClaimAllCmd())
	return cmd
}

func claimableListCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Scan recorded sessions against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := client.Claimable().ListClaimable(cmd.Context()); err != nil {
				return err
			}
			entries, total, _ := client.ClaimableSnapshot()
			if entries == nil {
				entries = []cache.ClaimableEntry{}
			}
			return printOutput(cmd.OutOrStdout(), ClaimableOutput{Items: entries, Total: total.String()}, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func claimableClaimAllCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "claim-all",
		Short: "Sweep every claimable session to the wallet in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newConnectedClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Claimable().ListClaimable(cmd.Context())
			if err != nil {
				return err
			}
			return claimItems(cmd, client, items, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func claimItems(cmd *cobra.Command, client *core.Client, items []claimable.Item, outputFormat string) error {
	destination, _ := client.Session().PublicKey()
	result, err := client.Claimable().ClaimAll(cmd.Context(), items, destination)
	if err != nil {
		return err
	}
	return printOutput(cmd.OutOrStdout(), ClaimOutput{
		Signature: result.Signature.String(),
		Amount:    result.Amount.String(),
		Claimed:   result.Claimed,
		Skipped:   result.Skipped,
	}, outputFormat)
}
