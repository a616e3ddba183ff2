package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"rxcost/core/aggregate"
	"rxcost/core/provider"
	"rxcost/core/quote"
	"rxcost/core/ratelimit"
	"rxcost/internal/app"
	"rxcost/internal/config"
)

// mockOnlyConfig disables every provider that would touch the network.
func mockOnlyConfig() *config.Config {
	cfg := config.Default()
	off := false
	cfg.Providers.RxNorm.Enabled = false
	cfg.Providers.NADAC.Enabled = false
	cfg.Providers.GoodRx.Enabled = &off
	cfg.Providers.Florida.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	return NewServer(a, "test")
}

func doGet(t *testing.T, handler http.Handler, target, forwardedFor string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:51234"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodePrices(t *testing.T, rec *httptest.ResponseRecorder) PricesResponse {
	t.Helper()
	var resp PricesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestPricesMockOnlyScenario(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/api/prices?drug=metformin&qty=60&includeNadac=false&includeGoodRx=false", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodePrices(t, rec)
	if !resp.OK || resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected exactly one row, got %+v", resp)
	}
	row := resp.Results[0]
	if row.Pharmacy == nil || row.Pharmacy.Name != "Costco (Mock)" {
		t.Fatalf("unexpected pharmacy: %+v", row.Pharmacy)
	}
	if row.TotalPrice != 6.5 {
		t.Fatalf("expected total 6.5 for 60 units, got %v", row.TotalPrice)
	}
	if row.Qty != 60 {
		t.Fatalf("expected qty 60, got %d", row.Qty)
	}
	if len(resp.Transparency.Attempted) != 1 || resp.Transparency.Attempted[0] != "Mock" {
		t.Fatalf("expected only the mock dataset, got %v", resp.Transparency.Attempted)
	}
	if len(resp.Transparency.Datasets) != 1 || resp.Transparency.Datasets[0].ID != provider.MockRx {
		t.Fatalf("unexpected datasets: %v", resp.Transparency.Datasets)
	}
}

func TestPricesZIPCoverageScenario(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/api/prices?drug=atorvastatin&zip=99999", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodePrices(t, rec)
	if resp.Count != 1 {
		t.Fatalf("expected exactly one row covering 99999, got %+v", resp.Results)
	}
	row := resp.Results[0]
	if row.Strength != "20 mg" || row.Chain() != "Walmart" {
		t.Fatalf("expected the 20 mg Walmart row, got %+v", row)
	}
}

func TestPricesGoodRxWithoutCredential(t *testing.T) {
	cfg := mockOnlyConfig()
	cfg.Providers.GoodRx.Enabled = nil // enabled, but no API key
	router := newTestServer(t, cfg).Router()

	rec := doGet(t, router, "/api/prices?drug=metformin&includeGoodRx=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodePrices(t, rec)
	if !resp.OK {
		t.Fatal("request should succeed without a credential")
	}
	if got := resp.Transparency.Attempted; len(got) != 2 || got[0] != "GoodRx" || got[1] != "Mock" {
		t.Fatalf("expected GoodRx to stay attempted, got %v", got)
	}
	found := false
	for _, c := range resp.Transparency.Caveats {
		if c == "GoodRx is not configured (no API key); discount prices were skipped." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the not-configured caveat, got %v", resp.Transparency.Caveats)
	}
	for _, row := range resp.Results {
		if row.Dataset == "goodrx" {
			t.Fatalf("no discount rows should appear, got %+v", row)
		}
	}
}

func TestPricesMissingDrug(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/api/prices?qty=30", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.OK || resp.Error.Code != "INPUT_ERROR" {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}
}

func TestPricesInputErrorInvokesNoProvider(t *testing.T) {
	counter := &countingSource{id: provider.MockRx}
	registry := provider.NewRegistry()
	if err := registry.Register(counter); err != nil {
		t.Fatal(err)
	}

	cfg := mockOnlyConfig()
	a := &app.App{
		Config:     cfg,
		Limiter:    ratelimit.New(),
		Registry:   registry,
		Aggregator: aggregate.New(aggregate.Options{Registry: registry}),
	}
	router := NewServer(a, "test").Router()

	for _, target := range []string{
		"/api/prices",
		"/api/prices?drug=metformin&zip=123",
		"/api/prices?drug=metformin&qty=ten",
		"/api/prices?drug=metformin&dedupe=store",
	} {
		rec := doGet(t, router, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
	if counter.callCount() != 0 {
		t.Fatalf("input errors must not reach providers, got %d calls", counter.callCount())
	}
}

func TestPricesRateLimit(t *testing.T) {
	cfg := mockOnlyConfig()
	cfg.RateLimit.MaxRequests = 2
	cfg.RateLimit.WindowSeconds = 60
	router := newTestServer(t, cfg).Router()

	for i := 0; i < 2; i++ {
		rec := doGet(t, router, "/api/prices?drug=metformin", "203.0.113.7")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := doGet(t, router, "/api/prices?drug=metformin", "203.0.113.7")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected zero remaining, got %q", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatal("expected a reset header")
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != "RATE_LIMITED" {
		t.Fatalf("unexpected error code: %+v", resp)
	}

	// A different client is untouched.
	other := doGet(t, router, "/api/prices?drug=metformin", "198.51.100.9")
	if other.Code != http.StatusOK {
		t.Fatalf("other client should pass, got %d", other.Code)
	}
}

func TestPricesClampsAndEcho(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/api/prices?drug=metformin&qty=999999&limit=200&privacy=off&chains=Costco,%20Walmart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodePrices(t, rec)
	if resp.Query.Qty != 5000 {
		t.Fatalf("qty should clamp to 5000, got %d", resp.Query.Qty)
	}
	if resp.Query.Limit != 50 {
		t.Fatalf("limit should clamp to 50, got %d", resp.Query.Limit)
	}
	if resp.Query.Privacy != "off" {
		t.Fatalf("privacy flag should echo untouched, got %q", resp.Query.Privacy)
	}
	if len(resp.Query.Chains) != 2 || resp.Query.Chains[1] != "Walmart" {
		t.Fatalf("chains should parse as a trimmed list, got %v", resp.Query.Chains)
	}
	if resp.Query.Dedupe != "none" {
		t.Fatalf("dedupe should default to none, got %q", resp.Query.Dedupe)
	}
}

func TestPricesResponseHeaders(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/api/prices?drug=metformin", "")
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" || rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatal("expected rate limit headers")
	}
}

func TestProvidersListing(t *testing.T) {
	cfg := config.Default()
	router := newTestServer(t, cfg).Router()

	rec := doGet(t, router, "/api/providers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ProvidersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(resp.Providers) != 5 {
		t.Fatalf("expected 5 providers, got %d", len(resp.Providers))
	}
	byID := make(map[provider.ID]ProviderStatus)
	for _, p := range resp.Providers {
		byID[p.ID] = p
	}
	if g := byID[provider.GoodRx]; !g.Enabled || g.Configured {
		t.Fatalf("goodrx should be enabled but unconfigured without a key: %+v", g)
	}
	if n := byID[provider.NADAC]; !n.Enabled || !n.Configured {
		t.Fatalf("nadac should be enabled and configured: %+v", n)
	}

	cfg.Providers.GoodRx.APIKey = "k-123"
	rec = doGet(t, router, "/api/providers", "")
	resp = ProvidersResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	for _, p := range resp.Providers {
		if p.ID == provider.GoodRx && !p.Configured {
			t.Fatalf("goodrx should report configured with a key: %+v", p)
		}
	}
}

func TestHealthAndVersion(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	rec := doGet(t, router, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	rec = doGet(t, router, "/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("version: expected 200, got %d", rec.Code)
	}
	var v map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v["version"] != "test" || v["service"] != "rxcost" {
		t.Fatalf("unexpected version payload: %v", v)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestServer(t, mockOnlyConfig()).Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/prices", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers on preflight")
	}
}

func TestSetGateWrapsEverything(t *testing.T) {
	server := newTestServer(t, mockOnlyConfig())
	server.SetGate(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Gate", "checked")
			next.ServeHTTP(w, r)
		})
	})

	rec := doGet(t, server.Router(), "/health", "")
	if rec.Header().Get("X-Gate") != "checked" {
		t.Fatal("gate middleware should wrap every route")
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		want         string
	}{
		{name: "remote address", remoteAddr: "192.0.2.10:51234", want: "192.0.2.10"},
		{name: "forwarded first hop", remoteAddr: "10.0.0.1:80", forwardedFor: "203.0.113.7, 10.0.0.1", want: "203.0.113.7"},
		{name: "forwarded single hop", remoteAddr: "10.0.0.1:80", forwardedFor: "203.0.113.7", want: "203.0.113.7"},
		{name: "no port", remoteAddr: "192.0.2.10", want: "192.0.2.10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}
			if got := clientKey(req); got != tc.want {
				t.Fatalf("clientKey = %q, want %q", got, tc.want)
			}
		})
	}
}

type countingSource struct {
	id    provider.ID
	mu    sync.Mutex
	calls int
}

func (c *countingSource) ID() provider.ID { return c.id }

func (c *countingSource) Fetch(ctx context.Context, req provider.Request) ([]quote.PriceQuote, string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil, "builtin://counting", nil
}

func (c *countingSource) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
