package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	perrors "github.com/phasmapay/phasma/phasmaClient/errors"
	"github.com/phasmapay/phasma/phasmaClient/metrics"
)

const (
	DefaultQuoteURL     = "https://quote-api.jup.ag/v6/quote"
	DefaultSwapURL      = "https://quote-api.jup.ag/v6/swap"
	DefaultQuoteTimeout = 5 * time.Second
	DefaultSlippageBps  = 50

	maxErrorBody    = 512
	maxResponseBody = 1 << 20
)

// Quote is a conversion quote. The original response is kept so it can be
// handed back to the swap endpoint untouched.
type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`

	raw json.RawMessage
}

// OutRaw parses the quoted output in smallest units.
func (q *Quote) OutRaw() (uint64, error) {
	return strconv.ParseUint(q.OutAmount, 10, 64)
}

// SwapTransaction is an unsigned swap built by the quote service.
type SwapTransaction struct {
	Transaction          *solana.Transaction
	LastValidBlockHeight uint64
}

// Quoter quotes and builds currency conversions.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64) (*Quote, error)
	SwapTransaction(ctx context.Context, quote *Quote, user solana.PublicKey) (*SwapTransaction, error)
}

// JupiterConfig configures a JupiterClient.
type JupiterConfig struct {
	QuoteURL    string
	SwapURL     string
	SlippageBps int
	// Timeout bounds each call separately.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// JupiterClient talks to a Jupiter v6 compatible quote service.
type JupiterClient struct {
	cfg    JupiterConfig
	http   *http.Client
	logger zerolog.Logger
}

var _ Quoter = (*JupiterClient)(nil)

// NewJupiterClient creates a client. A nil httpClient uses http.DefaultClient.
func NewJupiterClient(cfg JupiterConfig, httpClient *http.Client, logger zerolog.Logger) *JupiterClient {
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = DefaultQuoteURL
	}
	if cfg.SwapURL == "" {
		cfg.SwapURL = DefaultSwapURL
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQuoteTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &JupiterClient{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With().Str("component", "jupiter").Logger(),
	}
}

// Quote asks for the best route converting amount of inputMint.
func (c *JupiterClient) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint.String())
	params.Set("outputMint", outputMint.String())
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(c.cfg.SlippageBps))
	params.Set("onlyDirectRoutes", "false")
	params.Set("asLegacyTransaction", "true")

	start := time.Now()
	body, err := c.do(ctx, http.MethodGet, c.cfg.QuoteURL+"?"+params.Encode(), nil)
	c.cfg.Metrics.GatewayRequest("quote", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, perrors.NewGatewayError("malformed quote response", err)
	}
	if _, err := quote.OutRaw(); err != nil {
		return nil, perrors.NewGatewayError("quote has no usable output amount", err)
	}
	quote.raw = body

	c.logger.Debug().
		Str("in", quote.InAmount).
		Str("out", quote.OutAmount).
		Str("price_impact", quote.PriceImpactPct).
		Msg("quote received")
	return &quote, nil
}

type swapRequest struct {
	QuoteResponse       json.RawMessage `json:"quoteResponse"`
	UserPublicKey       string          `json:"userPublicKey"`
	WrapAndUnwrapSol    bool            `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction bool            `json:"asLegacyTransaction"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction builds the transaction executing quote for user.
func (c *JupiterClient) SwapTransaction(ctx context.Context, quote *Quote, user solana.PublicKey) (*SwapTransaction, error) {
	if quote == nil || len(quote.raw) == 0 {
		return nil, perrors.NewValidationError("swap needs a quote from this client")
	}
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:       quote.raw,
		UserPublicKey:       user.String(),
		WrapAndUnwrapSol:    true,
		AsLegacyTransaction: true,
	})
	if err != nil {
		return nil, perrors.NewInternalError("failed to encode swap request", err)
	}

	start := time.Now()
	body, err := c.do(ctx, http.MethodPost, c.cfg.SwapURL, payload)
	c.cfg.Metrics.GatewayRequest("swap", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, perrors.NewGatewayError("malformed swap response", err)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, perrors.NewGatewayError("swap transaction is not base64", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, perrors.NewGatewayError("failed to decode swap transaction", err)
	}

	return &SwapTransaction{Transaction: tx, LastValidBlockHeight: resp.LastValidBlockHeight}, nil
}

func (c *JupiterClient) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, perrors.NewInternalError("failed to build quote service request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, perrors.NewTimeoutError("", fmt.Sprintf("quote service did not answer within %s", c.cfg.Timeout))
		}
		return nil, perrors.NewGatewayError("quote service request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, perrors.NewTimeoutError("", fmt.Sprintf("quote service did not answer within %s", c.cfg.Timeout))
		}
		return nil, perrors.NewGatewayError("failed to read quote service response", err)
	}
	if int64(len(body)) > maxResponseBody {
		return nil, perrors.NewGatewayError(fmt.Sprintf("quote service response exceeds %d bytes", maxResponseBody), nil)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, perrors.NewGatewayError(fmt.Sprintf("quote service returned %d", resp.StatusCode), errors.New(string(body))).
			WithContext("status", resp.StatusCode)
	}
	return body, nil
}
