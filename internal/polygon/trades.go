package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const ticksPageLimit = "50000"

// GetOptionTrades fetches every tick-level trade for the option ticker in
// [from, to), walking next_url cursor pagination.
func (c *Client) GetOptionTrades(ctx context.Context, ticker string, from, to time.Time) ([]Trade, error) {
	query := url.Values{}
	query.Set("timestamp.gte", strconv.FormatInt(from.UTC().UnixNano(), 10))
	query.Set("timestamp.lt", strconv.FormatInt(to.UTC().UnixNano(), 10))
	query.Set("order", "asc")
	query.Set("limit", ticksPageLimit)

	var trades []Trade

	var resp TradesResponse
	if err := c.get(ctx, "/v3/trades/"+ticker, query, &resp); err != nil {
		return nil, fmt.Errorf("get option trades %s: %w", ticker, err)
	}
	trades = append(trades, resp.Results...)

	for resp.NextURL != "" {
		next := resp.NextURL
		resp = TradesResponse{}
		if err := c.getURL(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("get option trades %s (cursor): %w", ticker, err)
		}
		trades = append(trades, resp.Results...)
	}

	return trades, nil
}

// GetOptionQuotes fetches every NBBO quote for the option ticker in
// [from, to), walking next_url cursor pagination.
func (c *Client) GetOptionQuotes(ctx context.Context, ticker string, from, to time.Time) ([]Quote, error) {
	query := url.Values{}
	query.Set("timestamp.gte", strconv.FormatInt(from.UTC().UnixNano(), 10))
	query.Set("timestamp.lt", strconv.FormatInt(to.UTC().UnixNano(), 10))
	query.Set("order", "asc")
	query.Set("limit", ticksPageLimit)

	var quotes []Quote

	var resp QuotesResponse
	if err := c.get(ctx, "/v3/quotes/"+ticker, query, &resp); err != nil {
		return nil, fmt.Errorf("get option quotes %s: %w", ticker, err)
	}
	quotes = append(quotes, resp.Results...)

	for resp.NextURL != "" {
		next := resp.NextURL
		resp = QuotesResponse{}
		if err := c.getURL(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("get option quotes %s (cursor): %w", ticker, err)
		}
		quotes = append(quotes, resp.Results...)
	}

	return quotes, nil
}
