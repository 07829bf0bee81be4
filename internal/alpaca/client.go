// Package alpaca provides the equity-bars vendor client. It exposes paged
// historical minute bars and a latest-bar lookup; pagination is walked
// transparently and no store coupling exists here.
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Bar is one OHLCV bar as the vendor reports it.
type Bar struct {
	Timestamp        string  `json:"t"` // ISO-8601 instant
	Open             float64 `json:"o"`
	High             float64 `json:"h"`
	Low              float64 `json:"l"`
	Close            float64 `json:"c"`
	Volume           float64 `json:"v"`
	VWAP             float64 `json:"vw"`
	TransactionCount int64   `json:"n"`
}

// barsResponse is the paged reply of the bars endpoint.
type barsResponse struct {
	Bars          []Bar  `json:"bars"`
	Symbol        string `json:"symbol"`
	NextPageToken string `json:"next_page_token"`
}

// latestBarResponse is the reply of the latest-bar endpoint.
type latestBarResponse struct {
	Bar    *Bar   `json:"bar"`
	Symbol string `json:"symbol"`
}

// APIError represents an error from the equity-bars vendor.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client provides access to the equity-bars REST API.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new equity-bars client.
func NewClient(baseURL, keyID, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetHistoricalBars fetches every bar for symbol in [from, to] at the
// given granularity (e.g. "1Min"), walking page_token pagination.
func (c *Client) GetHistoricalBars(ctx context.Context, symbol string, from, to time.Time, granularity string) ([]Bar, error) {
	var bars []Bar
	pageToken := ""

	for {
		query := url.Values{}
		query.Set("timeframe", granularity)
		query.Set("start", from.UTC().Format(time.RFC3339))
		query.Set("end", to.UTC().Format(time.RFC3339))
		query.Set("limit", "10000")
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		var resp barsResponse
		if err := c.get(ctx, "/v2/stocks/"+symbol+"/bars", query, &resp); err != nil {
			return nil, fmt.Errorf("get historical bars %s: %w", symbol, err)
		}
		bars = append(bars, resp.Bars...)

		if resp.NextPageToken == "" {
			return bars, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetLatestBar fetches the most recent minute bar for symbol, or nil when
// the vendor has none.
func (c *Client) GetLatestBar(ctx context.Context, symbol string) (*Bar, error) {
	var resp latestBarResponse
	if err := c.get(ctx, "/v2/stocks/"+symbol+"/bars/latest", nil, &resp); err != nil {
		return nil, fmt.Errorf("get latest bar %s: %w", symbol, err)
	}
	return resp.Bar, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
