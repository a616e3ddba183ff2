// Package provider defines the price source plugin surface.
// Price providers are modular plugins that can be added without modifying core.
package provider

import (
	"context"
	"fmt"
	"sync"

	"rxcost/core/quote"
)

// ID identifies a data provider.
type ID string

const (
	// RxNorm is the drug name reference resolver. It is consulted before
	// the price fan-out and never produces price rows itself.
	RxNorm ID = "rxnorm"

	// NADAC is the national average drug acquisition cost benchmark.
	NADAC ID = "nadac"

	// GoodRx is the consumer discount price source.
	GoodRx ID = "goodrx"

	// Florida is the state retail claims price export.
	Florida ID = "florida"

	// MockRx is the built-in demonstration dataset.
	MockRx ID = "mockrx"
)

// MergeOrder is the fixed order provider rows are merged in before sorting,
// so equal prices keep a deterministic ordering.
var MergeOrder = []ID{GoodRx, NADAC, Florida, MockRx}

// Descriptor is the static identity a provider contributes to the
// transparency block.
type Descriptor struct {
	// ID is the provider identifier
	ID ID `json:"id"`

	// Label is the display name
	Label string `json:"label"`

	// Homepage is the provider's public site
	Homepage string `json:"homepage,omitempty"`

	// Info describes what the dataset contains
	Info string `json:"info,omitempty"`
}

var descriptors = map[ID]Descriptor{
	RxNorm: {
		ID:       RxNorm,
		Label:    "RxNorm",
		Homepage: "https://rxnav.nlm.nih.gov/",
		Info:     "Normalized drug names and identifiers from the National Library of Medicine.",
	},
	NADAC: {
		ID:       NADAC,
		Label:    "NADAC",
		Homepage: "https://data.medicaid.gov/",
		Info:     "National Average Drug Acquisition Cost: what pharmacies pay to acquire drugs.",
	},
	GoodRx: {
		ID:       GoodRx,
		Label:    "GoodRx",
		Homepage: "https://www.goodrx.com/",
		Info:     "Consumer discount prices at nearby retail pharmacies.",
	},
	Florida: {
		ID:       Florida,
		Label:    "Florida Drug Price Finder",
		Homepage: "https://www.myfloridarx.gov/",
		Info:     "Retail prices reported through Florida Medicaid claims.",
	},
	MockRx: {
		ID:       MockRx,
		Label:    "Mock",
		Info:     "Built-in demonstration dataset with a handful of common drugs.",
	},
}

// Describe returns the static descriptor for a provider.
func Describe(id ID) Descriptor {
	if d, ok := descriptors[id]; ok {
		return d
	}
	return Descriptor{ID: id, Label: string(id)}
}

// Request is the canonical provider input, already validated and
// name-resolved by the time a provider sees it.
type Request struct {
	// Drug is the search term, canonical when resolution succeeded
	Drug string

	// Qty is the requested quantity every row must be priced for
	Qty int

	// ZIP is the five-digit location hint, may be empty
	ZIP string

	// Limit caps how many rows the provider should return
	Limit int

	// County is the regional-export county hint, may be empty
	County string
}

// PriceSource fetches price rows from one upstream dataset. Fetch returns
// the rows, the upstream query URL for provenance, and any failure; callers
// treat a failure as a degraded (empty) contribution, never a request error.
type PriceSource interface {
	ID() ID
	Fetch(ctx context.Context, req Request) ([]quote.PriceQuote, string, error)
}

// Registry holds the configured price sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[ID]PriceSource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[ID]PriceSource),
	}
}

// Register adds a price source to the registry.
func (r *Registry) Register(s PriceSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[s.ID()]; exists {
		return fmt.Errorf("price source already registered: %s", s.ID())
	}
	r.sources[s.ID()] = s
	return nil
}

// Get returns a price source by ID.
func (r *Registry) Get(id ID) (PriceSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	return s, ok
}

// InMergeOrder returns the registered sources in the fixed merge order.
func (r *Registry) InMergeOrder() []PriceSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PriceSource, 0, len(r.sources))
	for _, id := range MergeOrder {
		if s, ok := r.sources[id]; ok {
			sources = append(sources, s)
		}
	}
	return sources
}
