package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client fetches candle history from the Binance spot REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new market data client. baseURL defaults to the
// public Binance endpoint when empty.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CandlesSince fetches candles for the ticker/timeframe starting at the
// baseline, oldest first.
func (c *Client) CandlesSince(ctx context.Context, ticker, timeframe string, since time.Time) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("interval", timeframe)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", "1000")

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building klines request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, len(rawKlines))
	for i, raw := range rawKlines {
		candles[i] = Candle{
			OpenTime: time.UnixMilli(int64(raw[0].(float64))),
			Open:     parseFloat(raw[1]),
			High:     parseFloat(raw[2]),
			Low:      parseFloat(raw[3]),
			Close:    parseFloat(raw[4]),
		}
	}

	return candles, nil
}

// LastPrice returns the latest close price for the ticker.
func (c *Client) LastPrice(ctx context.Context, ticker, timeframe string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", ticker)

	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("error building ticker request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error fetching ticker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("API error: %s", string(body))
	}

	var ticker24 struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker24); err != nil {
		return 0, fmt.Errorf("error parsing ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker24.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing price %q: %w", ticker24.Price, err)
	}
	return price, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
