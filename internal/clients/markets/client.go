// Package markets provides a client for the market data API serving live
// quotes, FX rates and historical closes for stocks, crypto and metals.
package markets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/models"
)

const (
	DefaultBaseURL   = "https://api.varlik.app/markets"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the PriceOracle interface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new market data client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("markets API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Markets API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type rateResponse struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price"`
}

// GetRate returns the current price of a pair symbol such as "USDTRY".
func (c *Client) GetRate(ctx context.Context, pair string) (float64, error) {
	var result rateResponse
	if err := c.get(ctx, "/rates/"+strings.ToUpper(pair), nil, &result); err != nil {
		return 0, err
	}
	if result.Price <= 0 {
		return 0, fmt.Errorf("no rate for pair '%s'", pair)
	}
	return result.Price, nil
}

type quoteResponse struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	DailyChangePct float64 `json:"daily_change_pct"`
}

// GetPrices returns live quotes for the given instruments, keyed by
// instrument id. Unknown instruments are absent from the result.
func (c *Client) GetPrices(ctx context.Context, instruments []string) (map[string]models.Quote, error) {
	if len(instruments) == 0 {
		return map[string]models.Quote{}, nil
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(instruments, ","))

	var results []quoteResponse
	if err := c.get(ctx, "/quotes", params, &results); err != nil {
		return nil, err
	}

	quotes := make(map[string]models.Quote, len(results))
	for _, q := range results {
		if q.Symbol == "" || q.Price <= 0 {
			continue
		}
		quotes[q.Symbol] = models.Quote{
			InstrumentID:   q.Symbol,
			Price:          q.Price,
			Currency:       q.Currency,
			DailyChangePct: q.DailyChangePct,
		}
	}
	return quotes, nil
}

type historicalResponse struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
}

// GetHistoricalPrice returns the closing price of a symbol on the day of the
// given timestamp.
func (c *Client) GetHistoricalPrice(ctx context.Context, symbol string, ts time.Time) (float64, error) {
	params := url.Values{}
	params.Set("date", ts.Format("2006-01-02"))

	var result historicalResponse
	if err := c.get(ctx, "/historical/"+strings.ToUpper(symbol), params, &result); err != nil {
		return 0, err
	}
	if result.Close <= 0 {
		return 0, fmt.Errorf("no close for '%s' on %s", symbol, ts.Format("2006-01-02"))
	}
	return result.Close, nil
}

var _ interfaces.PriceOracle = (*Client)(nil)
