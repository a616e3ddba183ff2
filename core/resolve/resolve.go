// Package resolve rewrites free-text drug queries into canonical names
// before the price fan-out. Resolution is best effort: a failure never
// stops a request, the raw query just passes through unresolved.
package resolve

import (
	"context"
	"strings"
)

// maxNDCs caps how many drug codes a resolution carries.
const maxNDCs = 10

// Lookup is the reference vocabulary the resolver consults.
type Lookup interface {
	// ExactMatch returns the concept ID for a normalized exact match,
	// empty when the name is unknown.
	ExactMatch(ctx context.Context, name string) (rxcui, sourceURL string, err error)

	// ApproximateMatch returns the best fuzzy candidate, empty when
	// nothing comes close.
	ApproximateMatch(ctx context.Context, term string) (rxcui, sourceURL string, err error)

	// CanonicalName returns the display name for a concept.
	CanonicalName(ctx context.Context, rxcui string) (name, sourceURL string, err error)

	// NDCs returns the drug codes attached to a concept.
	NDCs(ctx context.Context, rxcui string) (ndcs []string, sourceURL string, err error)
}

// ResolvedName is the outcome of a successful resolution. It is never
// mutated after being returned.
type ResolvedName struct {
	// RxCUI is the matched concept identifier
	RxCUI string `json:"rxcui"`

	// Name is the canonical display name
	Name string `json:"name"`

	// NDCs is a bounded sample of the concept's drug codes
	NDCs []string `json:"ndcs,omitempty"`

	// Approximate is true when only the fuzzy step matched
	Approximate bool `json:"approximate,omitempty"`

	// SourceURL is the lookup that produced the match
	SourceURL string `json:"sourceUrl,omitempty"`

	// NDCSourceURL is the lookup that produced the code list
	NDCSourceURL string `json:"ndcSourceUrl,omitempty"`
}

// Resolver runs the exact-then-approximate resolution.
type Resolver struct {
	lookup Lookup
}

// New creates a resolver over the given vocabulary.
func New(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve maps a raw query to a canonical name. It returns (nil, nil) when
// the term stays unresolved and (nil, err) when a lookup failed; in both
// cases the caller continues with the raw query.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*ResolvedName, error) {
	term := strings.TrimSpace(raw)

	rxcui, sourceURL, err := r.lookup.ExactMatch(ctx, term)
	if err != nil {
		return nil, err
	}

	approximate := false
	if rxcui == "" {
		rxcui, sourceURL, err = r.lookup.ApproximateMatch(ctx, term)
		if err != nil {
			return nil, err
		}
		if rxcui == "" {
			return nil, nil
		}
		approximate = true
	}

	name, _, err := r.lookup.CanonicalName(ctx, rxcui)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = term
	}

	ndcs, ndcSourceURL, err := r.lookup.NDCs(ctx, rxcui)
	if err != nil {
		return nil, err
	}
	if len(ndcs) > maxNDCs {
		ndcs = ndcs[:maxNDCs]
	}

	return &ResolvedName{
		RxCUI:        rxcui,
		Name:         name,
		NDCs:         ndcs,
		Approximate:  approximate,
		SourceURL:    sourceURL,
		NDCSourceURL: ndcSourceURL,
	}, nil
}
