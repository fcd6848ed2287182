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

// RESTSource fetches klines from a Binance-compatible REST API.
type RESTSource struct {
	baseURL    string
	limit      int
	httpClient *http.Client
}

// NewRESTSource creates a REST kline source.
func NewRESTSource(baseURL string, limit int) *RESTSource {
	if limit <= 0 {
		limit = 200
	}
	return &RESTSource{
		baseURL: baseURL,
		limit:   limit,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Fetch retrieves ordered OHLCV bars for the symbol and timeframe. An empty
// slice with a nil error means the exchange had no data for the window.
func (s *RESTSource) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe string) ([]Candle, string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", strconv.Itoa(s.limit))
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", s.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("API error: %s", string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, "", fmt.Errorf("error parsing klines: %w", err)
	}

	candles := make([]Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 7 {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:  time.UnixMilli(int64(raw[0].(float64))),
			Open:      parseFloat(raw[1]),
			High:      parseFloat(raw[2]),
			Low:       parseFloat(raw[3]),
			Close:     parseFloat(raw[4]),
			Volume:    parseFloat(raw[5]),
			CloseTime: time.UnixMilli(int64(raw[6].(float64))),
		})
	}

	return candles, "binance-rest", nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
