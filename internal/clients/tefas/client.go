// Package tefas provides a client for the TEFAS fund price platform.
//
// TEFAS has no public JSON API; the endpoints used here are the form-POST
// endpoints behind the comparison screens. They require a warmed-up session
// cookie and browser-like headers, and they rate-limit aggressively.
package tefas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/varlik-app/varlik/internal/common"
	"github.com/varlik-app/varlik/internal/interfaces"
	"github.com/varlik-app/varlik/internal/models"
)

const (
	DefaultBaseURL   = "https://www.tefas.gov.tr"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	historyPath    = "/api/DB/BindHistoryInfo"
	comparisonPath = "/api/DB/BindComparisonFundReturns"

	fundTypeAll = "YAT" // securities mutual funds
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// Client implements the FundPriceClient interface against TEFAS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter

	warmupOnce sync.Once
	warmupErr  error
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

// NewClient creates a new TEFAS client.
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a TEFAS endpoint error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TEFAS API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// warmup loads the fund comparison page once to obtain the session cookie
// the POST endpoints require.
func (c *Client) warmup(ctx context.Context) error {
	c.warmupOnce.Do(func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/TarihselVeriler.aspx", nil)
		if err != nil {
			c.warmupErr = fmt.Errorf("failed to create warmup request: %w", err)
			return
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.warmupErr = fmt.Errorf("failed to warm up session: %w", err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	})
	return c.warmupErr
}

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// postForm performs a rate-limited form POST and decodes the JSON response.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if err := c.warmup(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", c.baseURL)

	c.logger.Debug().Str("url", c.baseURL+path).Msg("TEFAS API request")

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

// historyRow is one row of the BindHistoryInfo response. TARIH is
// milliseconds since epoch encoded as a string.
type historyRow struct {
	Date  string      `json:"TARIH"`
	Code  string      `json:"FONKODU"`
	Name  string      `json:"FONUNVAN"`
	Price flexFloat64 `json:"FIYAT"`
}

type historyResponse struct {
	Data []historyRow `json:"data"`
}

// GetFundPrice returns the latest unit price for a single fund code, looking
// back up to a week to cover weekends and holidays.
func (c *Client) GetFundPrice(ctx context.Context, code string) (*models.FundPrice, error) {
	now := time.Now()
	form := url.Values{}
	form.Set("fontip", fundTypeAll)
	form.Set("fonkod", strings.ToUpper(code))
	form.Set("bastarih", now.AddDate(0, 0, -7).Format("02.01.2006"))
	form.Set("bittarih", now.Format("02.01.2006"))

	var result historyResponse
	if err := c.postForm(ctx, historyPath, form, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("fund '%s' not found", code)
	}

	// Rows come newest first; keep the latest priced row and compute the
	// daily change from the one before it.
	latest := result.Data[0]
	price := &models.FundPrice{
		Code:  latest.Code,
		Name:  latest.Name,
		Price: float64(latest.Price),
		Date:  formatRowDate(latest.Date),
	}
	if len(result.Data) > 1 && result.Data[1].Price > 0 {
		prev := float64(result.Data[1].Price)
		price.DailyChangePct = (price.Price - prev) / prev * 100
	}
	return price, nil
}

// comparisonRow is one row of the BindComparisonFundReturns response.
type comparisonRow struct {
	Code      string      `json:"FONKODU"`
	Name      string      `json:"FONUNVAN"`
	Price     flexFloat64 `json:"SONFIYAT"`
	DailyRate flexFloat64 `json:"GUNLUKGETIRI"`
}

type comparisonResponse struct {
	Data []comparisonRow `json:"data"`
}

// GetAllFunds returns the full daily snapshot of fund prices, keyed by fund
// code. One request replaces hundreds of per-fund lookups.
func (c *Client) GetAllFunds(ctx context.Context) (map[string]models.FundPrice, error) {
	form := url.Values{}
	form.Set("fontip", fundTypeAll)
	form.Set("calismatipi", "1")

	var result comparisonResponse
	if err := c.postForm(ctx, comparisonPath, form, &result); err != nil {
		return nil, err
	}

	funds := make(map[string]models.FundPrice, len(result.Data))
	for _, row := range result.Data {
		if row.Code == "" || row.Price <= 0 {
			continue
		}
		funds[row.Code] = models.FundPrice{
			Code:           row.Code,
			Name:           row.Name,
			Price:          float64(row.Price),
			DailyChangePct: float64(row.DailyRate),
		}
	}

	c.logger.Debug().Int("funds", len(funds)).Msg("TEFAS snapshot fetched")
	return funds, nil
}

// formatRowDate converts TEFAS's millisecond-epoch date strings to ISO dates.
func formatRowDate(raw string) string {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

var _ interfaces.FundPriceClient = (*Client)(nil)
