package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
)

// Client implements domain.ExplorerClient against an Etherscan-style
// JSON API. Balances come back in the chain's base units; converting to
// display units is the caller's concern because token decimals are not
// part of the balance endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// Config holds the explorer endpoint and credentials.
type Config struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	Timeout    time.Duration
}

// NewClient creates a new explorer Client instance.
func NewClient(cfg Config, log *logger.Logger) *Client {
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		// Etherscan's free tier allows 5 calls per second.
		perSec = 4
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		log:     log,
	}
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// GetBalances retrieves a wallet's native coin balance plus one token
// balance per contract in tokenContracts.
func (c *Client) GetBalances(ctx context.Context, walletAddress string, tokenContracts []string) ([]domain.ExplorerBalance, error) {
	if walletAddress == "" {
		return nil, fmt.Errorf("%w: wallet address is required", domain.ErrValidation)
	}

	balances := make([]domain.ExplorerBalance, 0, 1+len(tokenContracts))

	native, err := c.query(ctx, url.Values{
		"module":  {"account"},
		"action":  {"balance"},
		"address": {walletAddress},
		"tag":     {"latest"},
	})
	if err != nil {
		return nil, err
	}
	balances = append(balances, domain.ExplorerBalance{Balance: native})

	for _, contract := range tokenContracts {
		token, err := c.query(ctx, url.Values{
			"module":          {"account"},
			"action":          {"tokenbalance"},
			"address":         {walletAddress},
			"contractaddress": {contract},
			"tag":             {"latest"},
		})
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.ExplorerBalance{
			Contract: contract,
			Balance:  token,
		})
	}
	return balances, nil
}

func (c *Client) query(ctx context.Context, params url.Values) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: building explorer request: %v", domain.ErrExternalAPI, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: explorer request: %v", domain.ErrExternalAPI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("%w: explorer returned %d: %s", domain.ErrExternalAPI, resp.StatusCode, string(body))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decoding explorer response: %v", domain.ErrExternalAPI, err)
	}
	if parsed.Status != "1" {
		return decimal.Zero, fmt.Errorf("%w: explorer rejected query: %s", domain.ErrExternalAPI, parsed.Message)
	}

	balance, err := decimal.NewFromString(parsed.Result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: explorer balance %q: %v", domain.ErrExternalAPI, parsed.Result, err)
	}
	return balance, nil
}
