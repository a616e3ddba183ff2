// Package app assembles the running service from one configuration
// snapshot: shared cache, HTTP fetcher, rate limiter, provider registry,
// resolver and aggregator. The HTTP server and the CLI both build on it.
package app

import (
	"time"

	"rxcost/core/aggregate"
	"rxcost/core/cache"
	"rxcost/core/fetch"
	"rxcost/core/provider"
	"rxcost/core/ratelimit"
	"rxcost/core/resolve"
	"rxcost/internal/config"
	"rxcost/providers/florida"
	"rxcost/providers/goodrx"
	"rxcost/providers/mockrx"
	"rxcost/providers/nadac"
	"rxcost/providers/rxnorm"
)

// App holds the long-lived components behind the HTTP and CLI surfaces.
type App struct {
	// Config is the finalized configuration the app was built from
	Config *config.Config

	// Store is the shared response cache
	Store *cache.Store

	// Fetcher is the deduplicating HTTP client all providers share
	Fetcher *fetch.Client

	// Limiter backs both the API gate and per-provider throttles
	Limiter *ratelimit.Limiter

	// Registry holds the enabled price sources
	Registry *provider.Registry

	// Resolver is nil when the vocabulary provider is disabled
	Resolver *resolve.Resolver

	// Aggregator runs price lookups
	Aggregator *aggregate.Aggregator
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// New wires the service. Providers switched off in the configuration are
// not registered at all, so no request toggle can reach them.
func New(cfg *config.Config) (*App, error) {
	store := cache.NewStore()
	fetcher := fetch.NewClient(store)
	limiter := ratelimit.New()
	registry := provider.NewRegistry()

	p := cfg.Providers

	if p.GoodRx.IsEnabled() {
		client := goodrx.NewClient(&goodrx.Config{
			BaseURL: p.GoodRx.BaseURL,
			APIKey:  p.GoodRx.APIKey,
			TTL:     seconds(p.GoodRx.TTLSeconds),
			Timeout: seconds(p.GoodRx.TimeoutSeconds),
		}, fetcher)
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if p.NADAC.Enabled {
		client := nadac.NewClient(&nadac.Config{
			QueryURL: p.NADAC.QueryURL,
			TTL:      seconds(p.NADAC.TTLSeconds),
			Timeout:  seconds(p.NADAC.TimeoutSeconds),
		}, fetcher)
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if p.Florida.Enabled {
		client := florida.NewClient(&florida.Config{
			TemplateURL:   p.Florida.TemplateURL,
			FilePath:      p.Florida.FilePath,
			DefaultCounty: p.Florida.DefaultCounty,
			TTL:           seconds(p.Florida.TTLSeconds),
			Timeout:       seconds(p.Florida.TimeoutSeconds),
		}, fetcher, florida.CSVSource{})
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}

	if p.MockRx.Enabled {
		if err := registry.Register(mockrx.NewSource()); err != nil {
			return nil, err
		}
	}

	var resolver *resolve.Resolver
	if p.RxNorm.Enabled {
		resolver = resolve.New(rxnorm.NewClient(&rxnorm.Config{
			BaseURL: p.RxNorm.BaseURL,
			TTL:     seconds(p.RxNorm.TTLSeconds),
			Timeout: seconds(p.RxNorm.TimeoutSeconds),
		}, fetcher))
	}

	aggregator := aggregate.New(aggregate.Options{
		Registry:         registry,
		Resolver:         resolver,
		Limiter:          limiter,
		GoodRxConfigured: p.GoodRx.Configured(),
		GoodRxThrottle: aggregate.Throttle{
			Max:    p.GoodRx.MaxCallsPerWindow,
			Window: seconds(p.GoodRx.WindowSeconds),
		},
	})

	return &App{
		Config:     cfg,
		Store:      store,
		Fetcher:    fetcher,
		Limiter:    limiter,
		Registry:   registry,
		Resolver:   resolver,
		Aggregator: aggregator,
	}, nil
}
