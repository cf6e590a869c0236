package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/phasmapay/phasma/phasmaClient/cache"
	"github.com/phasmapay/phasma/phasmaClient/ghost"
	"github.com/phasmapay/phasma/phasmaClient/history"
)

// QueryResponse represents the standard query response format from HTTP API
type QueryResponse struct {
	Data        json.RawMessage `json:"data"`
	LastFetched time.Time       `json:"last_fetched"`
}

// ErrorResponse represents an error response from HTTP API
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClaimableQueryOutput is the daemon's last claimable scan.
type ClaimableQueryOutput struct {
	Items       []cache.ClaimableEntry `yaml:"items" json:"items"`
	Total       string                 `yaml:"total" json:"total"`
	LastFetched time.Time              `yaml:"last_fetched" json:"last_fetched"`
}

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query a running phasmad",
	}

	cmd.AddCommand(
		queryClaimableCmd(),
		queryHistoryCmd(),
		queryGhostCmd(),
	)
	return cmd
}

func queryClaimableCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "claimable",
		Short: "Query the last claimable scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data ClaimableQueryOutput
			resp, err := queryServer("/api/v1/claimable", &data)
			if err != nil {
				return err
			}
			data.LastFetched = resp.LastFetched
			return printOutput(cmd.OutOrStdout(), data, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func queryHistoryCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the transaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data struct {
				Transactions  []history.StoredTransaction `json:"transactions"`
				TotalCashback string                      `json:"total_cashback"`
				TotalSavedGas string                      `json:"total_saved_gas"`
			}
			if _, err := queryServer("/api/v1/history", &data); err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), HistoryOutput(data), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func queryGhostCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "ghost",
		Short: "Query the ghost receive state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var data ghost.Snapshot
			if _, err := queryServer("/api/v1/ghost/state", &data); err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), data, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

// queryServer fetches path from the local query server and decodes its data into out.
func queryServer(path string, out interface{}) (*QueryResponse, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d%s", cfg.QueryServerPort, path))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("server error: %s", errResp.Error)
	}

	var queryResp QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(queryResp.Data, out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return &queryResp, nil
}
