package polygon

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// contractsPageLimit is the vendor's maximum page size.
const contractsPageLimit = "1000"

// GetOptionContracts fetches every non-expired contract listed for the
// underlying as of the given date, walking next_url cursor pagination.
func (c *Client) GetOptionContracts(ctx context.Context, underlying string, asOf time.Time) ([]Contract, error) {
	query := url.Values{}
	query.Set("underlying_ticker", underlying)
	query.Set("expired", "false")
	query.Set("limit", contractsPageLimit)
	query.Set("as_of", asOf.UTC().Format("2006-01-02"))

	var contracts []Contract

	var resp ContractsResponse
	if err := c.get(ctx, "/v3/reference/options/contracts", query, &resp); err != nil {
		return nil, fmt.Errorf("get option contracts %s: %w", underlying, err)
	}
	contracts = append(contracts, resp.Results...)

	for resp.NextURL != "" {
		next := resp.NextURL
		resp = ContractsResponse{}
		if err := c.getURL(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("get option contracts %s (cursor): %w", underlying, err)
		}
		contracts = append(contracts, resp.Results...)
	}

	return contracts, nil
}
