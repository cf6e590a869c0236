package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/phasmapay/phasma/phasmaClient/chains/svm"
	"github.com/phasmapay/phasma/phasmaClient/utils"
)

var quickAmounts = []string{"1", "5", "10"}

func (s *Server) icon() string {
	return s.actions.BaseURL + "/icon.png"
}

func (s *Server) payHref(recipient, amount string) string {
	return fmt.Sprintf("%s/api/actions/pay/%s?amount=%s", s.actions.BaseURL, recipient, amount)
}

// handleActionsJSON handles GET /actions.json
func (s *Server) handleActionsJSON(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ActionsJSON{Rules: []ActionRule{
		{PathPattern: "/api/actions/pay", APIPath: "/api/actions/pay"},
		{PathPattern: "/api/actions/pay/**", APIPath: "/api/actions/pay/**"},
	}})
}

// handlePayMetadata handles GET /api/actions/pay
func (s *Server) handlePayMetadata(w http.ResponseWriter, r *http.Request) {
	recipient := ActionParameter{Name: "recipient", Label: "Recipient address", Required: true, Type: "text"}

	resp := ActionGetResponse{
		Type:        "action",
		Icon:        s.icon(),
		Title:       s.actions.AppName,
		Description: fmt.Sprintf("Send USDC via %s, NFC tap-to-pay on Solana. Enter a recipient address and amount.", s.actions.AppName),
		Label:       "Pay",
	}
	for _, amount := range quickAmounts {
		resp.Links.Actions = append(resp.Links.Actions, LinkedAction{
			Label:      "Pay $" + amount,
			Href:       s.payHref("{recipient}", amount),
			Parameters: []ActionParameter{recipient},
		})
	}
	resp.Links.Actions = append(resp.Links.Actions, LinkedAction{
		Label: "Pay Custom",
		Href:  s.payHref("{recipient}", "{amount}"),
		Parameters: []ActionParameter{
			recipient,
			{Name: "amount", Label: "USDC amount", Required: true, Type: "number"},
		},
	})
	s.writeJSON(w, http.StatusOK, resp)
}

// handlePayRecipient handles GET /api/actions/pay/{address}
func (s *Server) handlePayRecipient(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	short := utils.ShortAddress(address)

	resp := ActionGetResponse{
		Type:  "action",
		Icon:  s.icon(),
		Title: s.actions.AppName,
		Label: "Pay",
	}

	if amount, err := decimal.NewFromString(r.URL.Query().Get("amount")); err == nil && amount.IsPositive() {
		fixed := amount.StringFixed(2)
		resp.Description = fmt.Sprintf("Send $%s USDC to %s", fixed, short)
		resp.Label = "Pay $" + fixed
		resp.Links.Actions = []LinkedAction{{
			Label: fmt.Sprintf("Pay $%s USDC", fixed),
			Href:  s.payHref(address, amount.String()),
		}}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Description = "Send USDC to " + short
	for _, amount := range quickAmounts {
		resp.Links.Actions = append(resp.Links.Actions, LinkedAction{Label: "Pay $" + amount, Href: s.payHref(address, amount)})
	}
	resp.Links.Actions = append(resp.Links.Actions, LinkedAction{
		Label:      "Custom Amount",
		Href:       s.payHref(address, "{amount}"),
		Parameters: []ActionParameter{{Name: "amount", Label: "USDC amount", Required: true, Type: "number"}},
	})
	s.writeJSON(w, http.StatusOK, resp)
}

// handlePayTransaction handles POST /api/actions/pay/{address}?amount=
func (s *Server) handlePayTransaction(w http.ResponseWriter, r *http.Request) {
	var body ActionPostRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Account == "" {
		s.writeJSON(w, http.StatusBadRequest, ActionError{Message: `Missing "account" in request body`})
		return
	}
	sender, err := solana.PublicKeyFromBase58(body.Account)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ActionError{Message: "Invalid account"})
		return
	}
	recipient, err := solana.PublicKeyFromBase58(mux.Vars(r)["address"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ActionError{Message: "Invalid recipient address"})
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || !amount.IsPositive() {
		s.writeJSON(w, http.StatusBadRequest, ActionError{Message: "Invalid amount"})
		return
	}
	raw, err := utils.ToRaw(amount, s.actions.Decimals)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ActionError{Message: "Invalid amount"})
		return
	}

	tx, _, err := s.actions.Builder.BuildTransfer(r.Context(), sender, recipient, raw)
	if err != nil {
		s.logger.Error().Err(err).Str("recipient", recipient.String()).Msg("failed to build action transaction")
		s.writeJSON(w, http.StatusInternalServerError, ActionError{Message: "Failed to build transaction"})
		return
	}
	serialized, err := svm.SerializeUnsigned(tx)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, ActionError{Message: "Failed to serialize transaction"})
		return
	}

	s.writeJSON(w, http.StatusOK, ActionPostResponse{
		Transaction: base64.StdEncoding.EncodeToString(serialized),
		Message:     fmt.Sprintf("Paying $%s USDC via %s", amount.StringFixed(2), s.actions.AppName),
	})
}
