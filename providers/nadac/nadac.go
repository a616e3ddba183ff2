// Package nadac fetches the National Average Drug Acquisition Cost
// benchmark published through the Medicaid open data portal.
package nadac

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rxcost/core/fetch"
	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/internal/errors"
)

const cacheBucket = "nadac"

// maxPageSize is the upstream page cap, applied regardless of what the
// caller asks for.
const maxPageSize = 50

// Config configures the NADAC client
type Config struct {
	// QueryURL is the datastore query endpoint
	QueryURL string

	// TTL is how long query responses stay cached
	TTL time.Duration

	// Timeout bounds each upstream call
	Timeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		QueryURL: "https://data.medicaid.gov/api/1/datastore/query/nadac/0",
		TTL:      15 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Client queries the NADAC datastore. One query per request: substring
// match on the description or generic name, newest effective date first.
type Client struct {
	cfg     *Config
	fetcher *fetch.Client
}

// NewClient creates a NADAC client
func NewClient(cfg *Config, fetcher *fetch.Client) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// ID implements provider.PriceSource
func (c *Client) ID() provider.ID {
	return provider.NADAC
}

// datastoreQuery is the request body for the datastore query endpoint
type datastoreQuery struct {
	Limit      int              `json:"limit"`
	Conditions []conditionGroup `json:"conditions"`
	Sorts      []sortSpec       `json:"sorts"`
}

type conditionGroup struct {
	GroupOperator string      `json:"groupOperator"`
	Conditions    []condition `json:"conditions"`
}

type condition struct {
	Property string `json:"property"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type sortSpec struct {
	Property string `json:"property"`
	Order    string `json:"order"`
}

// queryResponse is the datastore response wire shape
type queryResponse struct {
	Results []record `json:"results"`
	Count   int      `json:"count"`
}

type record struct {
	NDCDescription string `json:"ndc_description"`
	GenericName    string `json:"generic_name"`
	NDC            string `json:"ndc"`
	NADACPerUnit   string `json:"nadac_per_unit"`
	EffectiveDate  string `json:"effective_date"`
	PricingUnit    string `json:"pricing_unit"`
}

// Fetch implements provider.PriceSource
func (c *Client) Fetch(ctx context.Context, req provider.Request) ([]quote.PriceQuote, string, error) {
	term := strings.ToLower(strings.TrimSpace(req.Drug))
	limit := req.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	body, err := json.Marshal(datastoreQuery{
		Limit: limit,
		Conditions: []conditionGroup{{
			GroupOperator: "or",
			Conditions: []condition{
				{Property: "ndc_description", Operator: "contains", Value: term},
				{Property: "generic_name", Operator: "contains", Value: term},
			},
		}},
		Sorts: []sortSpec{{Property: "effective_date", Order: "desc"}},
	})
	if err != nil {
		return nil, "", errors.Internal("failed to build NADAC query", err)
	}

	data, err := c.fetcher.Do(ctx, fetch.Spec{
		Bucket:  cacheBucket,
		Key:     fmt.Sprintf("%s|%d", term, limit),
		TTL:     c.cfg.TTL,
		URL:     c.cfg.QueryURL,
		Method:  "POST",
		Body:    body,
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return nil, c.cfg.QueryURL, err
	}

	var resp queryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, c.cfg.QueryURL, errors.Parsing("failed to decode NADAC response", err)
	}

	rows := make([]quote.PriceQuote, 0, len(resp.Results))
	for _, rec := range resp.Results {
		unit, err := decimal.NewFromString(rec.NADACPerUnit)
		if err != nil || unit.IsNegative() {
			continue
		}
		unitPrice, totalPrice := quote.FromUnitPrice(unit, req.Qty)
		rows = append(rows, quote.PriceQuote{
			DrugName:      rec.NDCDescription,
			Qty:           req.Qty,
			UnitPrice:     unitPrice,
			TotalPrice:    totalPrice,
			PricingUnit:   rec.PricingUnit,
			NDC:           rec.NDC,
			Dataset:       string(provider.NADAC),
			SourceURL:     c.cfg.QueryURL,
			EffectiveDate: rec.EffectiveDate,
			Note:          "pharmacy acquisition benchmark, not a retail offer",
		})
	}
	return rows, c.cfg.QueryURL, nil
}
