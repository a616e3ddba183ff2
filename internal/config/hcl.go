package config

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"rxcost/internal/errors"
)

// hclFile mirrors Config for HCL decoding. Every field is a pointer so a
// partial file can be merged over the defaults.
type hclFile struct {
	Version   *string       `hcl:"version,optional"`
	Server    *hclServer    `hcl:"server,block"`
	RateLimit *hclRateLimit `hcl:"rate_limit,block"`
	Providers *hclProviders `hcl:"providers,block"`
	Gate      *hclGate      `hcl:"gate,block"`
	Logging   *hclLogging   `hcl:"logging,block"`
}

type hclServer struct {
	Addr                *string `hcl:"addr,optional"`
	ReadTimeoutSeconds  *int    `hcl:"read_timeout_seconds,optional"`
	WriteTimeoutSeconds *int    `hcl:"write_timeout_seconds,optional"`
	MaxBodyBytes        *int64  `hcl:"max_body_bytes,optional"`
	EnableCORS          *bool   `hcl:"enable_cors,optional"`
	UIDir               *string `hcl:"ui_dir,optional"`
}

type hclRateLimit struct {
	MaxRequests   *int `hcl:"max_requests,optional"`
	WindowSeconds *int `hcl:"window_seconds,optional"`
}

type hclProviders struct {
	RxNorm  *hclRxNorm  `hcl:"rxnorm,block"`
	NADAC   *hclNADAC   `hcl:"nadac,block"`
	GoodRx  *hclGoodRx  `hcl:"goodrx,block"`
	Florida *hclFlorida `hcl:"florida,block"`
	MockRx  *hclMockRx  `hcl:"mockrx,block"`
}

type hclRxNorm struct {
	Enabled        *bool   `hcl:"enabled,optional"`
	BaseURL        *string `hcl:"base_url,optional"`
	TTLSeconds     *int    `hcl:"ttl_seconds,optional"`
	TimeoutSeconds *int    `hcl:"timeout_seconds,optional"`
}

type hclNADAC struct {
	Enabled        *bool   `hcl:"enabled,optional"`
	QueryURL       *string `hcl:"query_url,optional"`
	TTLSeconds     *int    `hcl:"ttl_seconds,optional"`
	TimeoutSeconds *int    `hcl:"timeout_seconds,optional"`
}

type hclGoodRx struct {
	Enabled           *bool   `hcl:"enabled,optional"`
	BaseURL           *string `hcl:"base_url,optional"`
	APIKey            *string `hcl:"api_key,optional"`
	TTLSeconds        *int    `hcl:"ttl_seconds,optional"`
	TimeoutSeconds    *int    `hcl:"timeout_seconds,optional"`
	MaxCallsPerWindow *int    `hcl:"max_calls_per_window,optional"`
	WindowSeconds     *int    `hcl:"window_seconds,optional"`
}

type hclFlorida struct {
	Enabled        *bool   `hcl:"enabled,optional"`
	TemplateURL    *string `hcl:"template_url,optional"`
	FilePath       *string `hcl:"file_path,optional"`
	DefaultCounty  *string `hcl:"default_county,optional"`
	TTLSeconds     *int    `hcl:"ttl_seconds,optional"`
	TimeoutSeconds *int    `hcl:"timeout_seconds,optional"`
}

type hclMockRx struct {
	Enabled *bool `hcl:"enabled,optional"`
}

type hclGate struct {
	Passcode        *string `hcl:"passcode,optional"`
	PasscodeHash    *string `hcl:"passcode_hash,optional"`
	SessionSecret   *string `hcl:"session_secret,optional"`
	SessionTTLHours *int    `hcl:"session_ttl_hours,optional"`
}

type hclLogging struct {
	Level       *string `hcl:"level,optional"`
	Format      *string `hcl:"format,optional"`
	Output      *string `hcl:"output,optional"`
	Development *bool   `hcl:"development,optional"`
	MaxSizeMB   *int    `hcl:"max_size_mb,optional"`
	MaxBackups  *int    `hcl:"max_backups,optional"`
	MaxAgeDays  *int    `hcl:"max_age_days,optional"`
}

// mergeHCL decodes an HCL config file and applies the values it sets.
func mergeHCL(path string, data []byte, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return errors.Wrap(errors.TypeConfig, "failed to parse config file", diags)
	}

	var fc hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &fc); diags.HasErrors() {
		return errors.Wrap(errors.TypeConfig, "failed to decode config file", diags)
	}

	fc.apply(cfg)
	return nil
}

func (f *hclFile) apply(cfg *Config) {
	setString(&cfg.Version, f.Version)

	if s := f.Server; s != nil {
		setString(&cfg.Server.Addr, s.Addr)
		setInt(&cfg.Server.ReadTimeoutSeconds, s.ReadTimeoutSeconds)
		setInt(&cfg.Server.WriteTimeoutSeconds, s.WriteTimeoutSeconds)
		setInt64(&cfg.Server.MaxBodyBytes, s.MaxBodyBytes)
		setBool(&cfg.Server.EnableCORS, s.EnableCORS)
		setString(&cfg.Server.UIDir, s.UIDir)
	}

	if r := f.RateLimit; r != nil {
		setInt(&cfg.RateLimit.MaxRequests, r.MaxRequests)
		setInt(&cfg.RateLimit.WindowSeconds, r.WindowSeconds)
	}

	if p := f.Providers; p != nil {
		if b := p.RxNorm; b != nil {
			setBool(&cfg.Providers.RxNorm.Enabled, b.Enabled)
			setString(&cfg.Providers.RxNorm.BaseURL, b.BaseURL)
			setInt(&cfg.Providers.RxNorm.TTLSeconds, b.TTLSeconds)
			setInt(&cfg.Providers.RxNorm.TimeoutSeconds, b.TimeoutSeconds)
		}
		if b := p.NADAC; b != nil {
			setBool(&cfg.Providers.NADAC.Enabled, b.Enabled)
			setString(&cfg.Providers.NADAC.QueryURL, b.QueryURL)
			setInt(&cfg.Providers.NADAC.TTLSeconds, b.TTLSeconds)
			setInt(&cfg.Providers.NADAC.TimeoutSeconds, b.TimeoutSeconds)
		}
		if b := p.GoodRx; b != nil {
			if b.Enabled != nil {
				cfg.Providers.GoodRx.Enabled = b.Enabled
			}
			setString(&cfg.Providers.GoodRx.BaseURL, b.BaseURL)
			setString(&cfg.Providers.GoodRx.APIKey, b.APIKey)
			setInt(&cfg.Providers.GoodRx.TTLSeconds, b.TTLSeconds)
			setInt(&cfg.Providers.GoodRx.TimeoutSeconds, b.TimeoutSeconds)
			setInt(&cfg.Providers.GoodRx.MaxCallsPerWindow, b.MaxCallsPerWindow)
			setInt(&cfg.Providers.GoodRx.WindowSeconds, b.WindowSeconds)
		}
		if b := p.Florida; b != nil {
			setBool(&cfg.Providers.Florida.Enabled, b.Enabled)
			setString(&cfg.Providers.Florida.TemplateURL, b.TemplateURL)
			setString(&cfg.Providers.Florida.FilePath, b.FilePath)
			setString(&cfg.Providers.Florida.DefaultCounty, b.DefaultCounty)
			setInt(&cfg.Providers.Florida.TTLSeconds, b.TTLSeconds)
			setInt(&cfg.Providers.Florida.TimeoutSeconds, b.TimeoutSeconds)
		}
		if b := p.MockRx; b != nil {
			setBool(&cfg.Providers.MockRx.Enabled, b.Enabled)
		}
	}

	if g := f.Gate; g != nil {
		setString(&cfg.Gate.Passcode, g.Passcode)
		setString(&cfg.Gate.PasscodeHash, g.PasscodeHash)
		setString(&cfg.Gate.SessionSecret, g.SessionSecret)
		setInt(&cfg.Gate.SessionTTLHours, g.SessionTTLHours)
	}

	if l := f.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setString(&cfg.Logging.Format, l.Format)
		setString(&cfg.Logging.Output, l.Output)
		setBool(&cfg.Logging.Development, l.Development)
		setInt(&cfg.Logging.MaxSizeMB, l.MaxSizeMB)
		setInt(&cfg.Logging.MaxBackups, l.MaxBackups)
		setInt(&cfg.Logging.MaxAgeDays, l.MaxAgeDays)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
