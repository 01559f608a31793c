// REST API CLIENT FOR THE TIINGO DAILY PRICE FEED
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	defaultTiingoBaseURL = "https://api.tiingo.com"

	isoDateLayout = "2006-01-02"
)

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// TiingoDailyBar is one end-of-day record from /tiingo/daily/{ticker}/prices.
type TiingoDailyBar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	AdjClose float64   `json:"adjClose"`
}

// TiingoTickerMeta is the metadata record from /tiingo/daily/{ticker}.
type TiingoTickerMeta struct {
	Ticker       string `json:"ticker"`
	Name         string `json:"name"`
	ExchangeCode string `json:"exchangeCode"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
}

type TiingoClient struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

func NewTiingoClient(apiKey, baseURL string) *TiingoClient {
	retryCount := defaultRetryAttempts - 1

	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultTiingoBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &TiingoClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
	}
}

func (c *TiingoClient) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Token "+c.apiKey)

	if len(params) > 0 {
		req = req.SetQueryParamsFromValues(params)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return err
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("json unmarshal failed: %w. raw=%s", err, string(raw))
		}
	}

	return nil
}

// GetDailyBars fetches end-of-day bars for symbol between start and end,
// both inclusive. Tiingo returns them oldest first.
func (c *TiingoClient) GetDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]TiingoDailyBar, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, errors.New("symbol is required")
	}

	params := url.Values{}
	params.Set("startDate", start.Format(isoDateLayout))
	params.Set("endDate", end.Format(isoDateLayout))
	params.Set("format", "json")

	endpoint := "/tiingo/daily/" + url.PathEscape(strings.ToLower(symbol)) + "/prices"

	var out []TiingoDailyBar
	if err := c.doGet(ctx, endpoint, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTickerMeta fetches the feed's metadata for symbol. A 404 here means the
// ticker is not covered by the feed.
func (c *TiingoClient) GetTickerMeta(ctx context.Context, symbol string) (*TiingoTickerMeta, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, errors.New("symbol is required")
	}

	endpoint := "/tiingo/daily/" + url.PathEscape(strings.ToLower(symbol))

	var out TiingoTickerMeta
	if err := c.doGet(ctx, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
