// Package goodrx fetches consumer discount prices. The upstream API needs
// a credential; without one the provider contributes nothing and the
// request carries on.
package goodrx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"rxcost/core/fetch"
	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/internal/errors"
)

const cacheBucket = "goodrx"

// Config configures the GoodRx client
type Config struct {
	// BaseURL is the price endpoint
	BaseURL string

	// APIKey is the upstream credential; empty degrades the provider silently
	APIKey string

	// TTL is how long price responses stay cached
	TTL time.Duration

	// Timeout bounds each upstream call
	Timeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.goodrx.com/low-price",
		TTL:     time.Minute,
		Timeout: 10 * time.Second,
	}
}

// Client queries the discount price endpoint.
type Client struct {
	cfg     *Config
	fetcher *fetch.Client
}

// NewClient creates a GoodRx client
func NewClient(cfg *Config, fetcher *fetch.Client) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// ID implements provider.PriceSource
func (c *Client) ID() provider.ID {
	return provider.GoodRx
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// lowPriceResponse is the upstream wire shape
type lowPriceResponse struct {
	Success bool `json:"success"`
	Data    struct {
		DisplayName string       `json:"display_name"`
		Quantity    int          `json:"quantity"`
		Prices      []priceEntry `json:"prices"`
	} `json:"data"`
}

type priceEntry struct {
	Pharmacy string  `json:"pharmacy"`
	Price    float64 `json:"price"`
	URL      string  `json:"url"`
}

// Fetch implements provider.PriceSource. The provenance URL never carries
// the credential.
func (c *Client) Fetch(ctx context.Context, req provider.Request) ([]quote.PriceQuote, string, error) {
	if !c.Configured() {
		return nil, "", nil
	}

	public := url.Values{}
	public.Set("name", req.Drug)
	public.Set("quantity", fmt.Sprintf("%d", req.Qty))
	if req.ZIP != "" {
		public.Set("zip", req.ZIP)
	}
	sourceURL := c.cfg.BaseURL + "?" + public.Encode()

	signed := url.Values{}
	for k, vs := range public {
		signed[k] = vs
	}
	signed.Set("api_key", c.cfg.APIKey)

	data, err := c.fetcher.Do(ctx, fetch.Spec{
		Bucket:  cacheBucket,
		Key:     public.Encode(),
		TTL:     c.cfg.TTL,
		URL:     c.cfg.BaseURL + "?" + signed.Encode(),
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return nil, sourceURL, err
	}

	var resp lowPriceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, sourceURL, errors.Parsing("failed to decode GoodRx response", err)
	}
	if !resp.Success {
		return nil, sourceURL, errors.New(errors.TypeProvider, "GoodRx reported an unsuccessful lookup")
	}

	drugName := resp.Data.DisplayName
	if drugName == "" {
		drugName = req.Drug
	}

	rows := make([]quote.PriceQuote, 0, len(resp.Data.Prices))
	for _, entry := range resp.Data.Prices {
		if entry.Price < 0 {
			continue
		}
		total := decimal.NewFromFloat(entry.Price)

		var unitPrice, totalPrice float64
		if resp.Data.Quantity > 0 && resp.Data.Quantity != req.Qty {
			// Upstream priced a different pack size.
			unitPrice, totalPrice = quote.Rescale(total, resp.Data.Quantity, req.Qty)
		} else {
			unitPrice, _ = quote.Rescale(total, req.Qty, req.Qty)
			totalPrice = quote.Round(total)
		}

		rows = append(rows, quote.PriceQuote{
			DrugName:   drugName,
			Qty:        req.Qty,
			UnitPrice:  unitPrice,
			TotalPrice: totalPrice,
			Pharmacy: &quote.Pharmacy{
				Name:  entry.Pharmacy,
				Chain: quote.ClassifyChain(entry.Pharmacy),
			},
			ZIP:       req.ZIP,
			Dataset:   string(provider.GoodRx),
			SourceURL: sourceURL,
			Note:      "discount coupon price",
		})
	}
	return rows, sourceURL, nil
}
