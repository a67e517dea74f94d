package binance

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the Binance public REST API. Kline endpoints work without
// API keys, which is all the signal pipeline needs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Kline represents a single candlestick.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// supportedIntervals is the fixed set of intervals Binance accepts for the
// kline endpoint. Anything else is a configuration mistake, not something to
// fall back from at runtime.
var supportedIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "12h": true,
	"1d": true, "1w": true,
}

// ValidateInterval reports whether interval is one of the supported kline
// intervals.
func ValidateInterval(interval string) error {
	if !supportedIntervals[interval] {
		return fmt.Errorf("unsupported interval %q", interval)
	}
	return nil
}

// GetKlines fetches up to limit candlesticks for symbol at the given
// interval, oldest first.
func (c *Client) GetKlines(symbol, interval string, limit int) ([]Kline, error) {
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	resp, err := c.httpClient.Get(endpoint)
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

	// Binance returns klines as positional arrays:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			return nil, fmt.Errorf("malformed kline row with %d fields", len(raw))
		}
		klines = append(klines, Kline{
			OpenTime:  asInt64(raw[0]),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: asInt64(raw[6]),
		})
	}

	return klines, nil
}

// GetLastPrice returns the close of the most recent candle for symbol.
func (c *Client) GetLastPrice(symbol, interval string) (float64, error) {
	klines, err := c.GetKlines(symbol, interval, 1)
	if err != nil {
		return 0, err
	}
	if len(klines) == 0 {
		return 0, fmt.Errorf("no klines returned for %s", symbol)
	}
	return klines[len(klines)-1].Close, nil
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		if f, ok := v.(float64); ok {
			return f
		}
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func asInt64(v interface{}) int64 {
	if f, ok := v.(float64); ok {
		return int64(f)
	}
	return 0
}
