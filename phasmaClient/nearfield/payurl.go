// Package nearfield publishes and reads Solana Pay requests over near-field
// channels: emulated Type 4 tags, passive tags and plain text fallbacks.
package nearfield

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
)

const (
	payScheme    = "solana:"
	payMessage   = "PhasmaPay NFC Payment"
	unknownLabel = "Unknown"

	// GhostLabel labels ghost receive requests.
	GhostLabel = "Ghost Pay"
)

// PayRequest is a parsed Solana Pay transfer request.
type PayRequest struct {
	Recipient solana.PublicKey
	Amount    decimal.Decimal
	Label     string
	Mint      solana.PublicKey
}

// BuildPayURL renders solana:<recipient>?amount=&spl-token=&label=&message=.
func BuildPayURL(recipient solana.PublicKey, amount decimal.Decimal, mint solana.PublicKey, label string) string {
	params := []struct{ key, value string }{
		{"amount", amount.String()},
		{"spl-token", mint.String()},
		{"label", label},
		{"message", payMessage},
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return payScheme + recipient.String() + "?" + strings.Join(parts, "&")
}

// ParsePayURL parses a Solana Pay URL. The scheme prefix is optional, a
// missing label reads as "Unknown" and a missing spl-token as defaultMint.
func ParsePayURL(raw string, defaultMint solana.PublicKey) (PayRequest, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), payScheme)
	recipientPart, query, _ := strings.Cut(trimmed, "?")
	if recipientPart == "" {
		return PayRequest{}, perrors.NewValidationError("pay URL has no recipient")
	}

	recipient, err := solana.PublicKeyFromBase58(recipientPart)
	if err != nil {
		return PayRequest{}, perrors.NewValidationError(fmt.Sprintf("invalid recipient %q", recipientPart))
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return PayRequest{}, perrors.NewValidationError("invalid pay URL query")
	}

	req := PayRequest{
		Recipient: recipient,
		Amount:    decimal.Zero,
		Label:     unknownLabel,
		Mint:      defaultMint,
	}
	if v := params.Get("amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil || amount.IsNegative() {
			return PayRequest{}, perrors.NewValidationError(fmt.Sprintf("invalid amount %q", v))
		}
		req.Amount = amount
	}
	if v := params.Get("label"); v != "" {
		req.Label = v
	}
	if v := params.Get("spl-token"); v != "" {
		mint, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			return PayRequest{}, perrors.NewValidationError(fmt.Sprintf("invalid spl-token %q", v))
		}
		req.Mint = mint
	}
	return req, nil
}

// URL renders the request back into its Solana Pay form.
func (r PayRequest) URL() string {
	return BuildPayURL(r.Recipient, r.Amount, r.Mint, r.Label)
}
