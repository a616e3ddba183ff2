// Package aggregate orchestrates one price lookup: resolve the query,
// fan out to the enabled providers, then filter, dedupe, sort and
// summarize the merged rows.
package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/core/ratelimit"
	"rxcost/core/resolve"
	"rxcost/internal/logging"
)

// DedupeMode selects how duplicate pharmacy rows collapse.
type DedupeMode string

const (
	// DedupeNone keeps every row
	DedupeNone DedupeMode = "none"

	// DedupeChain keeps the cheapest row per chain, falling back to the
	// pharmacy name and then "unknown" for rows without one
	DedupeChain DedupeMode = "chain"

	// DedupePharmacy keeps the cheapest row per pharmacy name
	DedupePharmacy DedupeMode = "pharmacy"
)

// ParseDedupeMode maps a request parameter to a mode.
func ParseDedupeMode(s string) (DedupeMode, bool) {
	switch s {
	case "", string(DedupeNone):
		return DedupeNone, true
	case string(DedupeChain):
		return DedupeChain, true
	case string(DedupePharmacy):
		return DedupePharmacy, true
	}
	return "", false
}

// Query is one aggregation request, validated by the caller.
type Query struct {
	// Drug is the raw search term
	Drug string

	// ZIP is the optional five-digit location hint
	ZIP string

	// Qty is the quantity every row is priced for
	Qty int

	// Limit caps the returned rows
	Limit int

	// County is the regional export hint
	County string

	// Resolve enables the name resolution step
	Resolve bool

	// IncludeNADAC, IncludeGoodRx, IncludeFlorida, IncludeMock toggle
	// the individual price providers for this request
	IncludeNADAC   bool
	IncludeGoodRx  bool
	IncludeFlorida bool
	IncludeMock    bool

	// Chains restricts rows to these chains; empty keeps all rows
	Chains []string

	// Form keeps rows whose dosage form contains this fragment
	Form string

	// Strength keeps rows whose strength contains this fragment
	Strength string

	// Dedupe selects duplicate collapsing
	Dedupe DedupeMode

	// ClientKey scopes per-provider throttles to the caller
	ClientKey string
}

// Transparency explains where rows came from and what degraded.
type Transparency struct {
	// Attempted lists the display names of every provider this request
	// tried, whatever the outcome
	Attempted []string `json:"attempted"`

	// Datasets describes the data sources behind the attempt
	Datasets []provider.Descriptor `json:"datasets"`

	// Caveats are plain-language notes about degraded results
	Caveats []string `json:"caveats,omitempty"`

	// Resolution reports how the query was rewritten, when it was
	Resolution *resolve.ResolvedName `json:"resolution,omitempty"`

	// NADACMinUnitPrice is the cheapest acquisition benchmark unit price
	NADACMinUnitPrice *float64 `json:"nadacMinUnitPrice,omitempty"`
}

// Result is a completed aggregation.
type Result struct {
	// Rows is the ranked result set
	Rows []quote.PriceQuote `json:"results"`

	// ChainSummary counts rows and minimum totals per chain
	ChainSummary []quote.ChainStat `json:"chainSummary"`

	// Transparency is the provenance block
	Transparency Transparency `json:"transparency"`
}

// Throttle is a per-client upstream call budget.
type Throttle struct {
	Max    int
	Window time.Duration
}

// Options wire an Aggregator. Everything is injected so tests can supply
// fakes and a deterministic clock sits behind the limiter.
type Options struct {
	// Registry holds the registered price sources
	Registry *provider.Registry

	// Resolver rewrites queries; nil disables resolution
	Resolver *resolve.Resolver

	// Limiter enforces per-provider throttles; nil disables them
	Limiter *ratelimit.Limiter

	// GoodRxConfigured reports whether the discount source has a credential
	GoodRxConfigured bool

	// GoodRxThrottle is the per-client budget for the discount source
	GoodRxThrottle Throttle
}

// Aggregator runs price lookups.
type Aggregator struct {
	opts Options
}

// New creates an aggregator.
func New(opts Options) *Aggregator {
	return &Aggregator{opts: opts}
}

// attempt tracks one provider's contribution to a request.
type attempt struct {
	source    provider.PriceSource
	rows      []quote.PriceQuote
	sourceURL string
	err       error
	skipped   string
}

// Run executes the full pipeline. It never fails: provider problems
// degrade into caveats and an empty result set is a valid answer.
func (a *Aggregator) Run(ctx context.Context, q Query) Result {
	var caveats []string

	// Step 1: rewrite the query through the reference vocabulary.
	resolution, drug, caveat := a.resolveName(ctx, q)
	if caveat != "" {
		caveats = append(caveats, caveat)
	}

	req := provider.Request{
		Drug:   drug,
		Qty:    q.Qty,
		ZIP:    q.ZIP,
		Limit:  q.Limit,
		County: q.County,
	}

	// Step 2: fan out to every included provider. Each goroutine owns its
	// slot, and the pipeline resumes only after the last one settles.
	attempts := a.plan(q)
	var g errgroup.Group
	for i := range attempts {
		at := &attempts[i]
		if at.skipped != "" {
			continue
		}
		g.Go(func() error {
			at.rows, at.sourceURL, at.err = at.source.Fetch(ctx, req)
			if at.err != nil {
				logging.Warn("price provider failed",
					zap.String("provider", string(at.source.ID())),
					zap.Error(at.err))
			}
			return nil
		})
	}
	g.Wait()

	merged := make([]quote.PriceQuote, 0, len(attempts)*8)
	attempted := make([]string, 0, len(attempts))
	datasets := make([]provider.Descriptor, 0, len(attempts)+1)
	if q.Resolve && a.opts.Resolver != nil {
		datasets = append(datasets, provider.Describe(provider.RxNorm))
	}
	for i := range attempts {
		at := &attempts[i]
		desc := provider.Describe(at.source.ID())
		attempted = append(attempted, desc.Label)
		datasets = append(datasets, desc)

		switch {
		case at.skipped != "":
			caveats = append(caveats, at.skipped)
		case at.err != nil:
			caveats = append(caveats, fmt.Sprintf("%s was unavailable; results may be incomplete.", desc.Label))
		case at.source.ID() == provider.Florida && len(at.rows) == 0 && at.sourceURL == "":
			caveats = append(caveats, "The Florida price export is misconfigured; no regional rows.")
		default:
			merged = append(merged, at.rows...)
		}
	}

	// Step 3: acquisition-cost baseline.
	baseline := nadacBaseline(merged)

	// Steps 4-6: filter, dedupe, rank.
	rows := filterRows(merged, q)
	rows = dedupeRows(rows, q.Dedupe)
	quote.SortByTotal(rows)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	// Step 7: per-chain summary of what is actually returned.
	summary := quote.Summarize(rows)

	return Result{
		Rows:         rows,
		ChainSummary: summary,
		Transparency: Transparency{
			Attempted:         attempted,
			Datasets:          datasets,
			Caveats:           caveats,
			Resolution:        resolution,
			NADACMinUnitPrice: baseline,
		},
	}
}

// resolveName runs the optional resolution step and reports the drug name
// the fan-out should use.
func (a *Aggregator) resolveName(ctx context.Context, q Query) (*resolve.ResolvedName, string, string) {
	if !q.Resolve || a.opts.Resolver == nil {
		return nil, q.Drug, ""
	}

	resolved, err := a.opts.Resolver.Resolve(ctx, q.Drug)
	if err != nil {
		logging.Warn("name resolution failed", zap.String("drug", q.Drug), zap.Error(err))
		return nil, q.Drug, "Name resolution was unavailable; searched with the query as typed."
	}
	if resolved == nil {
		return nil, q.Drug, fmt.Sprintf("%q did not match a known drug name; searched as typed.", q.Drug)
	}
	return resolved, resolved.Name, ""
}

// plan decides which providers this request attempts, applying pre-flight
// skips for the discount source.
func (a *Aggregator) plan(q Query) []attempt {
	include := map[provider.ID]bool{
		provider.GoodRx:  q.IncludeGoodRx,
		provider.NADAC:   q.IncludeNADAC,
		provider.Florida: q.IncludeFlorida,
		provider.MockRx:  q.IncludeMock,
	}

	var attempts []attempt
	for _, source := range a.opts.Registry.InMergeOrder() {
		if !include[source.ID()] {
			continue
		}
		at := attempt{source: source}
		if source.ID() == provider.GoodRx {
			at.skipped = a.goodRxSkip(q)
		}
		attempts = append(attempts, at)
	}
	return attempts
}

// goodRxSkip returns the caveat for a discount lookup that must not run:
// missing credential or an exhausted per-client budget. Skipped is not
// failed, so the wording names the reason.
func (a *Aggregator) goodRxSkip(q Query) string {
	if !a.opts.GoodRxConfigured {
		return "GoodRx is not configured (no API key); discount prices were skipped."
	}
	t := a.opts.GoodRxThrottle
	if a.opts.Limiter == nil || t.Max <= 0 {
		return ""
	}
	decision := a.opts.Limiter.Allow(q.ClientKey+"|goodrx", t.Max, t.Window)
	if !decision.Allowed {
		logging.Debug("discount source throttled", zap.String("client", q.ClientKey))
		return "GoodRx lookups are briefly throttled for this client; discount prices were skipped."
	}
	return ""
}

// nadacBaseline returns the minimum acquisition benchmark unit price.
func nadacBaseline(rows []quote.PriceQuote) *float64 {
	var min *float64
	for i := range rows {
		if rows[i].Dataset != string(provider.NADAC) {
			continue
		}
		v := rows[i].UnitPrice
		if min == nil || v < *min {
			min = &v
		}
	}
	return min
}

// filterRows applies the chain allow-list and the form/strength fragments.
// Rows missing a filtered field never match it.
func filterRows(rows []quote.PriceQuote, q Query) []quote.PriceQuote {
	allowed := make(map[string]bool, len(q.Chains))
	for _, c := range q.Chains {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			allowed[c] = true
		}
	}
	form := strings.ToLower(strings.TrimSpace(q.Form))
	strength := strings.ToLower(strings.TrimSpace(q.Strength))

	if len(allowed) == 0 && form == "" && strength == "" {
		return rows
	}

	kept := rows[:0]
	for _, row := range rows {
		if len(allowed) > 0 && !allowed[strings.ToLower(row.Chain())] {
			continue
		}
		if form != "" && !strings.Contains(strings.ToLower(row.Form), form) {
			continue
		}
		if strength != "" && !strings.Contains(strings.ToLower(row.Strength), strength) {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// dedupeRows keeps the cheapest row per group, the earlier row on ties.
func dedupeRows(rows []quote.PriceQuote, mode DedupeMode) []quote.PriceQuote {
	if mode == DedupeNone || mode == "" {
		return rows
	}

	index := make(map[string]int)
	kept := make([]quote.PriceQuote, 0, len(rows))
	for _, row := range rows {
		key := groupKey(&row, mode)
		at, seen := index[key]
		if !seen {
			index[key] = len(kept)
			kept = append(kept, row)
			continue
		}
		if row.TotalPrice < kept[at].TotalPrice {
			kept[at] = row
		}
	}
	return kept
}

// groupKey is the dedupe identity: chain, then pharmacy name, then a
// shared "unknown" bucket.
func groupKey(row *quote.PriceQuote, mode DedupeMode) string {
	if mode == DedupeChain {
		if chain := row.Chain(); chain != "" {
			return "chain:" + strings.ToLower(chain)
		}
	}
	if name := row.PharmacyName(); name != "" {
		return "pharmacy:" + strings.ToLower(name)
	}
	return "unknown"
}
