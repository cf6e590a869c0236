package api

import "time"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data        interface{} `json:"data"`
	LastFetched time.Time   `json:"last_fetched,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// ClaimableResponse is the payload of /api/v1/claimable.
type ClaimableResponse struct {
	Items interface{} `json:"items"`
	Total string      `json:"total"`
}

// HistoryResponse is the payload of /api/v1/history.
type HistoryResponse struct {
	Transactions  interface{} `json:"transactions"`
	TotalCashback string      `json:"total_cashback"`
	TotalSavedGas string      `json:"total_saved_gas"`
}

// ActionParameter is an input a Solana Actions client asks the user for.
type ActionParameter struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
}

// LinkedAction is one button of an action.
type LinkedAction struct {
	Label      string            `json:"label"`
	Href       string            `json:"href"`
	Parameters []ActionParameter `json:"parameters,omitempty"`
}

// ActionGetResponse is the metadata returned by an action GET.
type ActionGetResponse struct {
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Label       string `json:"label"`
	Links       struct {
		Actions []LinkedAction `json:"actions"`
	} `json:"links"`
}

// ActionPostRequest is the body of an action POST.
type ActionPostRequest struct {
	Account string `json:"account"`
}

// ActionPostResponse carries the transaction for the wallet to sign.
type ActionPostResponse struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message,omitempty"`
}

// ActionError is the error shape of the Actions endpoints.
type ActionError struct {
	Message string `json:"message"`
}

// ActionRule maps a website path to an action API path.
type ActionRule struct {
	PathPattern string `json:"pathPattern"`
	APIPath     string `json:"apiPath"`
}

// ActionsJSON is the payload of /actions.json.
type ActionsJSON struct {
	Rules []ActionRule `json:"rules"`
}
