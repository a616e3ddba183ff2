// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"rxcost/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Server contains HTTP server configuration
	Server ServerConfig `json:"server"`

	// RateLimit contains the global per-client request budget
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Providers contains per-provider settings
	Providers ProvidersConfig `json:"providers"`

	// Gate contains the beta access gate settings
	Gate GateConfig `json:"gate"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr"`

	// ReadTimeoutSeconds bounds request reads
	ReadTimeoutSeconds int `json:"read_timeout_seconds"`

	// WriteTimeoutSeconds bounds response writes
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`

	// MaxBodyBytes caps request body size
	MaxBodyBytes int64 `json:"max_body_bytes"`

	// EnableCORS enables permissive CORS headers
	EnableCORS bool `json:"enable_cors"`

	// UIDir is the static frontend directory; empty disables the UI
	UIDir string `json:"ui_dir"`
}

// RateLimitConfig contains the global per-client gate settings
type RateLimitConfig struct {
	// MaxRequests is the budget per window
	MaxRequests int `json:"max_requests"`

	// WindowSeconds is the fixed window length
	WindowSeconds int `json:"window_seconds"`
}

// ProvidersConfig groups per-provider settings
type ProvidersConfig struct {
	RxNorm  RxNormConfig  `json:"rxnorm"`
	NADAC   NADACConfig   `json:"nadac"`
	GoodRx  GoodRxConfig  `json:"goodrx"`
	Florida FloridaConfig `json:"florida"`
	MockRx  MockRxConfig  `json:"mockrx"`
}

// RxNormConfig configures the drug name resolver
type RxNormConfig struct {
	// Enabled makes the resolver available to requests
	Enabled bool `json:"enabled"`

	// BaseURL is the RxNav REST root
	BaseURL string `json:"base_url"`

	// TTLSeconds is how long resolution responses stay cached
	TTLSeconds int `json:"ttl_seconds"`

	// TimeoutSeconds bounds each upstream call
	TimeoutSeconds int `json:"timeout_seconds"`
}

// NADACConfig configures the acquisition cost benchmark
type NADACConfig struct {
	// Enabled makes the provider available to requests
	Enabled bool `json:"enabled"`

	// QueryURL is the datastore query endpoint
	QueryURL string `json:"query_url"`

	// TTLSeconds is how long query responses stay cached
	TTLSeconds int `json:"ttl_seconds"`

	// TimeoutSeconds bounds each upstream call
	TimeoutSeconds int `json:"timeout_seconds"`
}

// GoodRxConfig configures the consumer discount price source
type GoodRxConfig struct {
	// Enabled gates registration; nil means enabled
	Enabled *bool `json:"enabled,omitempty"`

	// BaseURL is the price endpoint
	BaseURL string `json:"base_url"`

	// APIKey is the upstream credential; empty degrades the provider silently
	APIKey string `json:"api_key,omitempty"`

	// TTLSeconds is how long price responses stay cached
	TTLSeconds int `json:"ttl_seconds"`

	// TimeoutSeconds bounds each upstream call
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxCallsPerWindow is the per-client upstream budget
	MaxCallsPerWindow int `json:"max_calls_per_window"`

	// WindowSeconds is the throttle window length
	WindowSeconds int `json:"window_seconds"`
}

// IsEnabled reports whether the provider should be registered.
func (c GoodRxConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Configured reports whether a credential is present.
func (c GoodRxConfig) Configured() bool {
	return c.APIKey != ""
}

// FloridaConfig configures the state retail claims export
type FloridaConfig struct {
	// Enabled makes the provider available to requests
	Enabled bool `json:"enabled"`

	// TemplateURL is the live export URL with {drug} and {county}
	// placeholders; empty skips the live tier
	TemplateURL string `json:"template_url,omitempty"`

	// FilePath is a local export file; empty falls back to the bundled file
	FilePath string `json:"file_path,omitempty"`

	// DefaultCounty is used when a request has no county hint
	DefaultCounty string `json:"default_county"`

	// TTLSeconds is how long live export payloads stay cached
	TTLSeconds int `json:"ttl_seconds"`

	// TimeoutSeconds bounds the live export fetch
	TimeoutSeconds int `json:"timeout_seconds"`
}

// MockRxConfig configures the demonstration dataset
type MockRxConfig struct {
	// Enabled makes the provider available to requests
	Enabled bool `json:"enabled"`
}

// GateConfig contains the beta access gate settings
type GateConfig struct {
	// Passcode is the shared secret; empty disables the gate
	Passcode string `json:"passcode,omitempty"`

	// PasscodeHash is a bcrypt hash checked instead of Passcode when set
	PasscodeHash string `json:"passcode_hash,omitempty"`

	// SessionSecret signs session tokens; empty derives one per process
	SessionSecret string `json:"session_secret,omitempty"`

	// SessionTTLHours is how long a session stays valid
	SessionTTLHours int `json:"session_ttl_hours"`
}

// Enabled reports whether the gate should be mounted.
func (c GateConfig) Enabled() bool {
	return c.Passcode != "" || c.PasscodeHash != ""
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Addr:                ":8080",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
			MaxBodyBytes:        1 << 20,
			EnableCORS:          true,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   100,
			WindowSeconds: 900, // 15 minutes
		},
		Providers: ProvidersConfig{
			RxNorm: RxNormConfig{
				Enabled:        true,
				BaseURL:        "https://rxnav.nlm.nih.gov/REST",
				TTLSeconds:     86400, // reference data changes rarely
				TimeoutSeconds: 10,
			},
			NADAC: NADACConfig{
				Enabled:        true,
				QueryURL:       "https://data.medicaid.gov/api/1/datastore/query/nadac/0",
				TTLSeconds:     900,
				TimeoutSeconds: 10,
			},
			GoodRx: GoodRxConfig{
				BaseURL:           "https://api.goodrx.com/low-price",
				TTLSeconds:        60, // consumer prices move fast
				TimeoutSeconds:    10,
				MaxCallsPerWindow: 10,
				WindowSeconds:     60,
			},
			Florida: FloridaConfig{
				Enabled:        true,
				DefaultCounty:  "DADE",
				TTLSeconds:     21600,
				TimeoutSeconds: 12,
			},
			MockRx: MockRxConfig{
				Enabled: true,
			},
		},
		Gate: GateConfig{
			SessionTTLHours: 720, // 30 days
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file. Files ending in .hcl are parsed as
// HCL; anything else is treated as JSON. Settings not present in the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	config := Default()
	if strings.HasSuffix(path, ".hcl") {
		if err := mergeHCL(path, data, config); err != nil {
			return nil, err
		}
		return config, nil
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Finalize resolves environment credentials into the configuration. It runs
// once at startup so nothing downstream probes the environment.
func (c *Config) Finalize() {
	if c.Providers.GoodRx.APIKey == "" {
		c.Providers.GoodRx.APIKey = os.Getenv("GOODRX_API_KEY")
	}
	if c.Gate.Passcode == "" && c.Gate.PasscodeHash == "" {
		c.Gate.Passcode = os.Getenv("RXCOST_PASSCODE")
	}
	if c.Gate.SessionSecret == "" {
		c.Gate.SessionSecret = os.Getenv("RXCOST_SESSION_SECRET")
	}
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
