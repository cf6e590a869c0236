package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phasmapay/phasma/phasmaClient/router"
)

// PlanOutput is the printed form of a prepared payment.
type PlanOutput struct {
	Recipient    string `yaml:"recipient" json:"recipient"`
	Amount       string `yaml:"amount" json:"amount"`
	Label        string `yaml:"label" json:"label"`
	Strategy     string `yaml:"strategy" json:"strategy"`
	EstimatedFee string `yaml:"estimated_fee" json:"estimated_fee"`
	SavedGas     string `yaml:"saved_gas" json:"saved_gas"`
	Signature    string `yaml:"signature,omitempty" json:"signature,omitempty"`
	Cashback     string `yaml:"cashback,omitempty" json:"cashback,omitempty"`
}

func planOutput(plan *router.Plan) PlanOutput {
	return PlanOutput{
		Recipient:    plan.Request.Recipient.String(),
		Amount:       plan.Request.Amount.String(),
		Label:        plan.Request.Label,
		Strategy:     string(plan.Strategy),
		EstimatedFee: plan.EstimatedFee.String(),
		SavedGas:     plan.SavedGas.String(),
	}
}

func payCmd() *cobra.Command {
	var (
		approve      bool
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "pay [solana-pay-url]",
		Short: "Pay a Solana Pay request, read from stdin when no URL is given",
		Long: `
Prepares the cheapest route for the request (a direct transfer, or a swap
from SOL when the token balance is short) and prints the plan. Pass --yes
to sign, send and wait for confirmation.
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newConnectedClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			pipeline := client.Payments()
			var plan *router.Plan
			if len(args) == 1 {
				plan, err = pipeline.PrepareURL(cmd.Context(), args[0])
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for a pay URL on stdin...")
				plan, err = pipeline.Read(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := planOutput(plan)
			if !approve {
				if err := printOutput(cmd.OutOrStdout(), out, outputFormat); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Run again with --yes to pay.")
				return nil
			}

			success, err := pipeline.Approve(cmd.Context())
			if err != nil {
				return err
			}
			out.Signature = success.Signature.String()
			out.Cashback = success.Cashback.String()
			return printOutput(cmd.OutOrStdout(), out, outputFormat)
		},
	}

	cmd.Flags().BoolVarP(&approve, "yes", "y", false, "Sign and send without stopping at the plan")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}
