// Package marketdata fetches current market prices for the price monitor.
// The upstream is an opaque HTTP source; failures surface as errors and the
// caller treats the tick as "no data" for that position.
package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	requestTimeout = 5 * time.Second
	retryCount     = 1
)

// MarketPrice is the price snapshot for one condition.
type MarketPrice struct {
	YesPrice decimal.Decimal `json:"yes_price"`
	NoPrice  decimal.Decimal `json:"no_price"`
	BestBid  decimal.Decimal `json:"best_bid"`
}

// ForOutcome maps an outcome label to its price.
func (m *MarketPrice) ForOutcome(outcome string) decimal.Decimal {
	if strings.EqualFold(outcome, "no") {
		return m.NoPrice
	}
	return m.YesPrice
}

// Client fetches market data over HTTP with a bounded per-request timeout
// and a single retry on transient failure.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(requestTimeout).
		SetRetryCount(retryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// GetMarketPrice fetches the price snapshot for a condition.
func (c *Client) GetMarketPrice(ctx context.Context, conditionID string) (*MarketPrice, error) {
	var out MarketPrice
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/prices/" + conditionID)
	if err != nil {
		return nil, fmt.Errorf("market data fetch %s: %w", conditionID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("market data fetch %s: status %d", conditionID, resp.StatusCode())
	}
	return &out, nil
}

// GetPrice returns the current price for one outcome of a condition.
// Implements the monitor's PriceSource.
func (c *Client) GetPrice(ctx context.Context, conditionID, outcome string) (decimal.Decimal, error) {
	mp, err := c.GetMarketPrice(ctx, conditionID)
	if err != nil {
		log.Debug().Err(err).Str("condition", conditionID).Msg("Price fetch failed")
		return decimal.Zero, err
	}
	return mp.ForOutcome(outcome), nil
}
