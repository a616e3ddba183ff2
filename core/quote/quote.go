// Package quote defines the normalized price row shared by every provider.
package quote

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places exposed on price fields.
const Precision = 4

// Pharmacy identifies where a price was observed.
type Pharmacy struct {
	// Name is the pharmacy display name
	Name string `json:"name"`

	// Chain is the chain classification, empty when unknown
	Chain string `json:"chain,omitempty"`

	// City is the pharmacy city
	City string `json:"city,omitempty"`

	// County is the pharmacy county
	County string `json:"county,omitempty"`

	// State is the two-letter state code
	State string `json:"state,omitempty"`
}

// PriceQuote is the single row shape every provider normalizes into.
type PriceQuote struct {
	// DrugName is the drug this price applies to
	DrugName string `json:"drugName"`

	// Form is the dosage form (tablet, capsule, ...)
	Form string `json:"form,omitempty"`

	// Strength is the dosage strength (e.g. "500 mg")
	Strength string `json:"strength,omitempty"`

	// Qty is the quantity the total price covers; always the requested quantity
	Qty int `json:"qty"`

	// UnitPrice is the price per unit, rounded to Precision places
	UnitPrice float64 `json:"unitPrice"`

	// TotalPrice is the price for Qty units, rounded to Precision places
	TotalPrice float64 `json:"totalPrice"`

	// PricingUnit is the unit the price is expressed in (EA, ML, GM)
	PricingUnit string `json:"pricingUnit,omitempty"`

	// Pharmacy is the pharmacy identity when the source reports one
	Pharmacy *Pharmacy `json:"pharmacy,omitempty"`

	// NDC is the National Drug Code when known
	NDC string `json:"ndc,omitempty"`

	// ZIP is the location the price applies to when the source is regional
	ZIP string `json:"zip,omitempty"`

	// Dataset identifies the provider that produced the row
	Dataset string `json:"dataset"`

	// SourceURL points at the upstream query that produced the row
	SourceURL string `json:"sourceUrl,omitempty"`

	// EffectiveDate is the upstream effective date when reported
	EffectiveDate string `json:"effectiveDate,omitempty"`

	// Note carries provider-specific remarks
	Note string `json:"note,omitempty"`
}

// Chain returns the chain classification of the row's pharmacy.
func (q *PriceQuote) Chain() string {
	if q.Pharmacy == nil {
		return ""
	}
	return q.Pharmacy.Chain
}

// PharmacyName returns the pharmacy name, empty when no pharmacy is attached.
func (q *PriceQuote) PharmacyName() string {
	if q.Pharmacy == nil {
		return ""
	}
	return q.Pharmacy.Name
}

// Round reduces a decimal amount to the exposed precision.
func Round(d decimal.Decimal) float64 {
	return d.Round(Precision).InexactFloat64()
}

// FromUnitPrice derives the exposed unit and total prices for qty units.
func FromUnitPrice(unit decimal.Decimal, qty int) (unitPrice, totalPrice float64) {
	total := unit.Mul(decimal.NewFromInt(int64(qty)))
	return Round(unit), Round(total)
}

// Rescale re-derives unit and total prices when a provider reports a pack
// size different from the requested quantity.
func Rescale(packTotal decimal.Decimal, packQty, qty int) (unitPrice, totalPrice float64) {
	if packQty <= 0 {
		return 0, 0
	}
	unit := packTotal.Div(decimal.NewFromInt(int64(packQty)))
	total := unit.Mul(decimal.NewFromInt(int64(qty)))
	return Round(unit), Round(total)
}

// SortByTotal orders rows ascending by total price. The sort is stable so
// ties keep their provider merge order.
func SortByTotal(rows []PriceQuote) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalPrice < rows[j].TotalPrice
	})
}

// ChainStat summarizes the rows observed for one pharmacy chain.
type ChainStat struct {
	// Chain is the chain classification
	Chain string `json:"chain"`

	// Count is how many rows the chain contributed
	Count int `json:"count"`

	// MinTotalPrice is the cheapest total price seen for the chain
	MinTotalPrice float64 `json:"minTotalPrice"`
}

// Summarize computes per-chain row counts and minimum totals. Rows without a
// chain classification are not summarized. Output is sorted by chain name.
func Summarize(rows []PriceQuote) []ChainStat {
	byChain := make(map[string]*ChainStat)
	for i := range rows {
		chain := rows[i].Chain()
		if chain == "" {
			continue
		}
		stat, ok := byChain[chain]
		if !ok {
			byChain[chain] = &ChainStat{Chain: chain, Count: 1, MinTotalPrice: rows[i].TotalPrice}
			continue
		}
		stat.Count++
		if rows[i].TotalPrice < stat.MinTotalPrice {
			stat.MinTotalPrice = rows[i].TotalPrice
		}
	}

	stats := make([]ChainStat, 0, len(byChain))
	for _, stat := range byChain {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Chain < stats[j].Chain
	})
	return stats
}

// knownChains maps a lowercase name fragment to its chain classification.
// Order matters: more specific fragments come first.
var knownChains = []struct {
	fragment string
	chain    string
}{
	{"sam's club", "Sam's Club"},
	{"sams club", "Sam's Club"},
	{"costco", "Costco"},
	{"walmart", "Walmart"},
	{"wal-mart", "Walmart"},
	{"walgreens", "Walgreens"},
	{"cvs", "CVS"},
	{"rite aid", "Rite Aid"},
	{"kroger", "Kroger"},
	{"publix", "Publix"},
	{"target", "Target"},
	{"safeway", "Safeway"},
	{"winn-dixie", "Winn-Dixie"},
	{"winn dixie", "Winn-Dixie"},
	{"albertsons", "Albertsons"},
	{"h-e-b", "H-E-B"},
	{"heb pharmacy", "H-E-B"},
}

// ClassifyChain maps a pharmacy display name to a chain classification.
// Returns the empty string for independents and unrecognized names.
func ClassifyChain(pharmacyName string) string {
	name := strings.ToLower(pharmacyName)
	for _, kc := range knownChains {
		if strings.Contains(name, kc.fragment) {
			return kc.chain
		}
	}
	return ""
}
