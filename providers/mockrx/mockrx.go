// Package mockrx serves a small fixed dataset so the service demonstrates
// end to end without any upstream credentials or network access.
package mockrx

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rxcost/core/provider"
	"rxcost/core/quote"
)

//go:embed fixture.yaml
var fixture []byte

type pharmacyEntry struct {
	Name  string `yaml:"name"`
	Chain string `yaml:"chain"`
	City  string `yaml:"city"`
	State string `yaml:"state"`
}

type entry struct {
	Drug         string        `yaml:"drug"`
	Form         string        `yaml:"form"`
	Strength     string        `yaml:"strength"`
	NDC          string        `yaml:"ndc"`
	PackageQty   int           `yaml:"package_qty"`
	PackagePrice string        `yaml:"package_price"`
	Pharmacy     pharmacyEntry `yaml:"pharmacy"`
	ZIPs         []string      `yaml:"zips"`
	Note         string        `yaml:"note"`
}

func (e *entry) covers(zip string) bool {
	for _, z := range e.ZIPs {
		if z == zip {
			return true
		}
	}
	return false
}

var entries []entry

func init() {
	if err := yaml.Unmarshal(fixture, &entries); err != nil {
		panic(fmt.Sprintf("mockrx: bad fixture: %v", err))
	}
}

// Source serves the embedded dataset.
type Source struct{}

// NewSource creates the demo price source
func NewSource() *Source {
	return &Source{}
}

// ID implements provider.PriceSource
func (s *Source) ID() provider.ID {
	return provider.MockRx
}

// Fetch implements provider.PriceSource. Entries match on a drug name
// substring; when the request carries a ZIP, the entry must cover it.
func (s *Source) Fetch(ctx context.Context, req provider.Request) ([]quote.PriceQuote, string, error) {
	term := strings.ToLower(strings.TrimSpace(req.Drug))

	rows := make([]quote.PriceQuote, 0, 4)
	for i := range entries {
		e := &entries[i]
		if !strings.Contains(strings.ToLower(e.Drug), term) {
			continue
		}
		if req.ZIP != "" && !e.covers(req.ZIP) {
			continue
		}

		price, err := decimal.NewFromString(e.PackagePrice)
		if err != nil || price.IsNegative() {
			continue
		}
		unitPrice, totalPrice := quote.Rescale(price, e.PackageQty, req.Qty)

		rows = append(rows, quote.PriceQuote{
			DrugName:   e.Drug,
			Form:       e.Form,
			Strength:   e.Strength,
			Qty:        req.Qty,
			UnitPrice:  unitPrice,
			TotalPrice: totalPrice,
			Pharmacy: &quote.Pharmacy{
				Name:  e.Pharmacy.Name,
				Chain: e.Pharmacy.Chain,
				City:  e.Pharmacy.City,
				State: e.Pharmacy.State,
			},
			NDC:       e.NDC,
			ZIP:       req.ZIP,
			Dataset:   string(provider.MockRx),
			SourceURL: "builtin://mockrx",
			Note:      e.Note,
		})
		if req.Limit > 0 && len(rows) >= req.Limit {
			break
		}
	}
	return rows, "builtin://mockrx", nil
}
