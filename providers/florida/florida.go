// Package florida serves the state's retail drug price export: a live
// templated URL when configured, a local export file otherwise, and a small
// bundled sample as the last resort.
package florida

import (
	"context"
	_ "embed"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rxcost/core/fetch"
	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/internal/logging"
)

//go:embed sample_export.csv
var sampleExport []byte

const cacheBucket = "florida"

// Config configures the Florida export client
type Config struct {
	// TemplateURL is the live export URL with {drug} and {county}
	// placeholders; empty skips the live tier
	TemplateURL string

	// FilePath is a local export file; empty falls back to the bundled sample
	FilePath string

	// DefaultCounty is used when a request carries no county hint
	DefaultCounty string

	// TTL is how long live export payloads stay cached
	TTL time.Duration

	// Timeout bounds the live export fetch
	Timeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		DefaultCounty: "DADE",
		TTL:           6 * time.Hour,
		Timeout:       12 * time.Second,
	}
}

// Client reads the retail claims export and maps it to price rows.
type Client struct {
	cfg     *Config
	fetcher *fetch.Client
	rows    RowSource
}

// NewClient creates a Florida export client. A nil rows source uses the
// bundled CSV reader.
func NewClient(cfg *Config, fetcher *fetch.Client, rows RowSource) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if rows == nil {
		rows = CSVSource{}
	}
	return &Client{cfg: cfg, fetcher: fetcher, rows: rows}
}

// ID implements provider.PriceSource
func (c *Client) ID() provider.ID {
	return provider.Florida
}

// Fetch implements provider.PriceSource. A configured but unreadable export
// file yields an empty result with no source URL rather than an error; the
// pipeline reports that as a configuration caveat.
func (c *Client) Fetch(ctx context.Context, req provider.Request) ([]quote.PriceQuote, string, error) {
	county := strings.ToUpper(strings.TrimSpace(req.County))
	if county == "" {
		county = strings.ToUpper(c.cfg.DefaultCounty)
	}

	data, sourceURL, err := c.payload(ctx, req.Drug, county)
	if err != nil {
		return nil, sourceURL, err
	}
	if data == nil {
		return nil, "", nil
	}

	raw, err := c.rows.Rows(data)
	if err != nil {
		return nil, sourceURL, err
	}

	term := strings.ToLower(strings.TrimSpace(req.Drug))
	quotes := make([]quote.PriceQuote, 0, req.Limit)
	for _, row := range raw {
		name := column(row, "drug")
		if name == "" || !strings.Contains(strings.ToLower(name), term) {
			continue
		}
		if rowCounty := column(row, "county"); rowCounty != "" && !strings.EqualFold(rowCounty, county) {
			continue
		}

		price := strings.TrimPrefix(column(row, "price"), "$")
		price = strings.ReplaceAll(price, ",", "")
		unit, err := decimal.NewFromString(price)
		if err != nil || unit.IsNegative() {
			continue
		}
		unitPrice, totalPrice := quote.FromUnitPrice(unit, req.Qty)

		pharmacy := column(row, "pharmacy")
		quotes = append(quotes, quote.PriceQuote{
			DrugName:   name,
			Form:       column(row, "form"),
			Strength:   column(row, "strength"),
			Qty:        req.Qty,
			UnitPrice:  unitPrice,
			TotalPrice: totalPrice,
			Pharmacy: &quote.Pharmacy{
				Name:   pharmacy,
				Chain:  quote.ClassifyChain(pharmacy),
				City:   column(row, "city"),
				County: column(row, "county"),
				State:  "FL",
			},
			NDC:           column(row, "ndc"),
			ZIP:           column(row, "zip"),
			Dataset:       string(provider.Florida),
			SourceURL:     sourceURL,
			EffectiveDate: column(row, "date"),
		})
		if req.Limit > 0 && len(quotes) >= req.Limit {
			break
		}
	}
	return quotes, sourceURL, nil
}

// payload resolves the export bytes through the three source tiers.
func (c *Client) payload(ctx context.Context, drug, county string) ([]byte, string, error) {
	if c.cfg.TemplateURL != "" {
		u := expandTemplate(c.cfg.TemplateURL, drug, county)
		data, err := c.fetcher.Do(ctx, fetch.Spec{
			Bucket:  cacheBucket,
			Key:     strings.ToLower(drug) + "|" + county,
			TTL:     c.cfg.TTL,
			URL:     u,
			Timeout: c.cfg.Timeout,
		})
		if err != nil {
			return nil, u, err
		}
		return data, u, nil
	}

	if c.cfg.FilePath != "" {
		data, err := os.ReadFile(c.cfg.FilePath)
		if err != nil {
			logging.Warn("configured export file is unreadable",
				zap.String("path", c.cfg.FilePath),
				zap.Error(err))
			return nil, "", nil
		}
		return data, "file://" + c.cfg.FilePath, nil
	}

	return sampleExport, "builtin://florida-sample", nil
}

func expandTemplate(template, drug, county string) string {
	return strings.NewReplacer(
		"{drug}", url.QueryEscape(drug),
		"{county}", url.QueryEscape(county),
	).Replace(template)
}
