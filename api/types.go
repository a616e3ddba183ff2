package api

import (
	"rxcost/core/aggregate"
	"rxcost/core/provider"
	"rxcost/core/quote"
)

// QueryEcho is the normalized request echoed back to the caller, so UIs
// can show what was actually searched after clamping and defaulting.
type QueryEcho struct {
	Drug           string   `json:"drug"`
	ZIP            string   `json:"zip,omitempty"`
	Qty            int      `json:"qty"`
	Limit          int      `json:"limit"`
	County         string   `json:"county,omitempty"`
	Resolve        bool     `json:"resolve"`
	IncludeMock    bool     `json:"includeMock"`
	IncludeNadac   bool     `json:"includeNadac"`
	IncludeGoodRx  bool     `json:"includeGoodRx"`
	IncludeFlorida bool     `json:"includeFlorida"`
	Chains         []string `json:"chains,omitempty"`
	Form           string   `json:"form,omitempty"`
	Strength       string   `json:"strength,omitempty"`
	Dedupe         string   `json:"dedupe"`

	// Privacy is an opaque client flag passed through untouched
	Privacy string `json:"privacy"`
}

// RateInfo echoes the global rate gate state for this client.
type RateInfo struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// PricesResponse is the GET /api/prices payload.
type PricesResponse struct {
	OK           bool                   `json:"ok"`
	Count        int                    `json:"count"`
	Query        QueryEcho              `json:"query"`
	Results      []quote.PriceQuote     `json:"results"`
	ChainSummary []quote.ChainStat      `json:"chainSummary"`
	Transparency aggregate.Transparency `json:"transparency"`
	RateLimit    RateInfo               `json:"rateLimit"`
	RequestID    string                 `json:"requestId"`
	DurationMs   int64                  `json:"durationMs"`
}

// ProviderStatus is one entry of the GET /api/providers listing.
type ProviderStatus struct {
	provider.Descriptor

	// Enabled reports whether the provider is switched on in configuration
	Enabled bool `json:"enabled"`

	// Configured reports whether the provider has everything it needs to
	// return real data; only the credentialed provider can differ from Enabled
	Configured bool `json:"configured"`
}

// ProvidersResponse is the GET /api/providers payload.
type ProvidersResponse struct {
	OK        bool             `json:"ok"`
	Providers []ProviderStatus `json:"providers"`
}

// ErrorBody is the error detail inside an error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for every non-2xx response.
type ErrorResponse struct {
	OK    bool      `json:"ok"`
	Error ErrorBody `json:"error"`
}
