package api

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rxcost/core/aggregate"
	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/internal/errors"
	"rxcost/internal/logging"
)

const (
	defaultQty = 30
	maxQty     = 5000

	defaultLimit = 25
	maxLimit     = 50
)

// handlePrices handles GET /api/prices. The rate gate runs before any
// parsing or provider work so an exhausted client cannot cost anything.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()

	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Cache-Control", "no-store")

	rl := s.app.Config.RateLimit
	client := clientKey(r)
	decision := s.app.Limiter.Allow(client, rl.MaxRequests, time.Duration(rl.WindowSeconds)*time.Second)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", decision.ResetAt.UTC().Format(time.RFC3339))

	if !decision.Allowed {
		logging.Debug("client rate limited", zap.String("client", client))
		s.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
			"too many requests; retry after the window resets")
		return
	}

	query, echo, err := s.parsePricesQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INPUT_ERROR", err.Error())
		return
	}
	query.ClientKey = client

	result := s.app.Aggregator.Run(r.Context(), query)

	if result.Rows == nil {
		result.Rows = []quote.PriceQuote{}
	}
	if result.ChainSummary == nil {
		result.ChainSummary = []quote.ChainStat{}
	}

	s.writeJSON(w, http.StatusOK, PricesResponse{
		OK:           true,
		Count:        len(result.Rows),
		Query:        echo,
		Results:      result.Rows,
		ChainSummary: result.ChainSummary,
		Transparency: result.Transparency,
		RateLimit: RateInfo{
			Limit:     rl.MaxRequests,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt.UTC().Format(time.RFC3339),
		},
		RequestID:  requestID,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// handleProviders handles GET /api/providers
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	p := s.app.Config.Providers

	statuses := []ProviderStatus{
		{
			Descriptor: provider.Describe(provider.RxNorm),
			Enabled:    p.RxNorm.Enabled,
			Configured: p.RxNorm.Enabled,
		},
	}
	for _, id := range provider.MergeOrder {
		status := ProviderStatus{Descriptor: provider.Describe(id)}
		switch id {
		case provider.GoodRx:
			status.Enabled = p.GoodRx.IsEnabled()
			status.Configured = status.Enabled && p.GoodRx.Configured()
		case provider.NADAC:
			status.Enabled = p.NADAC.Enabled
			status.Configured = p.NADAC.Enabled
		case provider.Florida:
			status.Enabled = p.Florida.Enabled
			status.Configured = p.Florida.Enabled
		case provider.MockRx:
			status.Enabled = p.MockRx.Enabled
			status.Configured = p.MockRx.Enabled
		}
		statuses = append(statuses, status)
	}

	s.writeJSON(w, http.StatusOK, ProvidersResponse{OK: true, Providers: statuses})
}

// parsePricesQuery validates the query string and applies defaults and
// clamps. It returns the aggregation query plus the echo for the response.
func (s *Server) parsePricesQuery(r *http.Request) (aggregate.Query, QueryEcho, error) {
	values := r.URL.Query()

	drug := strings.TrimSpace(values.Get("drug"))
	if drug == "" {
		return aggregate.Query{}, QueryEcho{}, errors.New(errors.TypeInput, "drug parameter is required")
	}

	zip := strings.TrimSpace(values.Get("zip"))
	if zip != "" && !isFiveDigits(zip) {
		return aggregate.Query{}, QueryEcho{}, errors.New(errors.TypeInput, "zip must be exactly five digits")
	}

	qty, err := intParam(values, "qty", defaultQty, 1, maxQty)
	if err != nil {
		return aggregate.Query{}, QueryEcho{}, err
	}
	limit, err := intParam(values, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		return aggregate.Query{}, QueryEcho{}, err
	}

	dedupe, ok := aggregate.ParseDedupeMode(strings.TrimSpace(values.Get("dedupe")))
	if !ok {
		return aggregate.Query{}, QueryEcho{}, errors.New(errors.TypeInput, "dedupe must be one of none, chain or pharmacy")
	}

	var chains []string
	for _, c := range strings.Split(values.Get("chains"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			chains = append(chains, c)
		}
	}

	privacy := strings.TrimSpace(values.Get("privacy"))
	if privacy == "" {
		privacy = "on"
	}

	query := aggregate.Query{
		Drug:           drug,
		ZIP:            zip,
		Qty:            qty,
		Limit:          limit,
		County:         strings.TrimSpace(values.Get("county")),
		Resolve:        boolParam(values, "resolve", true),
		IncludeMock:    boolParam(values, "includeMock", true),
		IncludeNADAC:   boolParam(values, "includeNadac", true),
		IncludeGoodRx:  boolParam(values, "includeGoodRx", s.app.Config.Providers.GoodRx.Configured()),
		IncludeFlorida: boolParam(values, "includeFlorida", false),
		Chains:         chains,
		Form:           strings.TrimSpace(values.Get("form")),
		Strength:       strings.TrimSpace(values.Get("strength")),
		Dedupe:         dedupe,
	}

	echo := QueryEcho{
		Drug:           query.Drug,
		ZIP:            query.ZIP,
		Qty:            query.Qty,
		Limit:          query.Limit,
		County:         query.County,
		Resolve:        query.Resolve,
		IncludeMock:    query.IncludeMock,
		IncludeNadac:   query.IncludeNADAC,
		IncludeGoodRx:  query.IncludeGoodRx,
		IncludeFlorida: query.IncludeFlorida,
		Chains:         query.Chains,
		Form:           query.Form,
		Strength:       query.Strength,
		Dedupe:         string(dedupe),
		Privacy:        privacy,
	}

	return query, echo, nil
}

// clientKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the remote address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isFiveDigits(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func intParam(values url.Values, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf(errors.TypeInput, "%s must be an integer", name)
	}
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n, nil
}

// boolParam is lenient: anything strconv.ParseBool rejects keeps the default.
func boolParam(values url.Values, name string, def bool) bool {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
