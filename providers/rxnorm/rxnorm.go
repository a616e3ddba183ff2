// Package rxnorm resolves free-text drug names through the National
// Library of Medicine's RxNav REST API.
package rxnorm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"rxcost/core/fetch"
	"rxcost/internal/errors"
)

const cacheBucket = "rxnorm"

// Config configures the RxNorm client
type Config struct {
	// BaseURL is the RxNav REST root
	BaseURL string

	// TTL is how long lookups stay cached
	TTL time.Duration

	// Timeout bounds each upstream call
	Timeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://rxnav.nlm.nih.gov/REST",
		TTL:     24 * time.Hour,
		Timeout: 10 * time.Second,
	}
}

// Client queries RxNav. Each lookup is cached independently so a partial
// resolution still reuses the calls that did succeed.
type Client struct {
	cfg     *Config
	fetcher *fetch.Client
}

// NewClient creates an RxNorm client
func NewClient(cfg *Config, fetcher *fetch.Client) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{cfg: cfg, fetcher: fetcher}
}

// rxcuiResponse is the /rxcui.json wire shape
type rxcuiResponse struct {
	IDGroup struct {
		Name     string   `json:"name"`
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

// approximateResponse is the /approximateTerm.json wire shape
type approximateResponse struct {
	ApproximateGroup struct {
		Candidate []struct {
			RxCUI string `json:"rxcui"`
			Score string `json:"score"`
		} `json:"candidate"`
	} `json:"approximateGroup"`
}

// propertyResponse is the /rxcui/{id}/property.json wire shape
type propertyResponse struct {
	PropConceptGroup struct {
		PropConcept []struct {
			PropName  string `json:"propName"`
			PropValue string `json:"propValue"`
		} `json:"propConcept"`
	} `json:"propConceptGroup"`
}

// ndcResponse is the /rxcui/{id}/ndcs.json wire shape
type ndcResponse struct {
	NDCGroup struct {
		NDCList struct {
			NDC []string `json:"ndc"`
		} `json:"ndcList"`
	} `json:"ndcGroup"`
}

func (c *Client) get(ctx context.Context, u string, out interface{}) (string, error) {
	data, err := c.fetcher.Do(ctx, fetch.Spec{
		Bucket:  cacheBucket,
		Key:     u,
		TTL:     c.cfg.TTL,
		URL:     u,
		Timeout: c.cfg.Timeout,
	})
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return u, errors.Parsing("failed to decode RxNorm response", err)
	}
	return u, nil
}

// ExactMatch returns the RxCUI for a normalized exact name match. An empty
// RxCUI with no error means RxNorm knows no such name.
func (c *Client) ExactMatch(ctx context.Context, name string) (string, string, error) {
	u := fmt.Sprintf("%s/rxcui.json?name=%s&search=1", c.cfg.BaseURL, url.QueryEscape(name))

	var resp rxcuiResponse
	sourceURL, err := c.get(ctx, u, &resp)
	if err != nil {
		return "", sourceURL, err
	}
	if len(resp.IDGroup.RxNormID) == 0 {
		return "", sourceURL, nil
	}
	return resp.IDGroup.RxNormID[0], sourceURL, nil
}

// ApproximateMatch returns the best fuzzy candidate for a misspelled term.
// An empty RxCUI with no error means nothing came close.
func (c *Client) ApproximateMatch(ctx context.Context, term string) (string, string, error) {
	u := fmt.Sprintf("%s/approximateTerm.json?term=%s&maxEntries=1", c.cfg.BaseURL, url.QueryEscape(term))

	var resp approximateResponse
	sourceURL, err := c.get(ctx, u, &resp)
	if err != nil {
		return "", sourceURL, err
	}
	if len(resp.ApproximateGroup.Candidate) == 0 {
		return "", sourceURL, nil
	}
	return resp.ApproximateGroup.Candidate[0].RxCUI, sourceURL, nil
}

// CanonicalName returns the RxNorm display name for a concept.
func (c *Client) CanonicalName(ctx context.Context, rxcui string) (string, string, error) {
	u := fmt.Sprintf("%s/rxcui/%s/property.json?propName=%s", c.cfg.BaseURL, url.PathEscape(rxcui), url.QueryEscape("RxNorm Name"))

	var resp propertyResponse
	sourceURL, err := c.get(ctx, u, &resp)
	if err != nil {
		return "", sourceURL, err
	}
	for _, pc := range resp.PropConceptGroup.PropConcept {
		if pc.PropValue != "" {
			return pc.PropValue, sourceURL, nil
		}
	}
	return "", sourceURL, nil
}

// NDCs returns the National Drug Codes attached to a concept.
func (c *Client) NDCs(ctx context.Context, rxcui string) ([]string, string, error) {
	u := fmt.Sprintf("%s/rxcui/%s/ndcs.json", c.cfg.BaseURL, url.PathEscape(rxcui))

	var resp ndcResponse
	sourceURL, err := c.get(ctx, u, &resp)
	if err != nil {
		return nil, sourceURL, err
	}
	return resp.NDCGroup.NDCList.NDC, sourceURL, nil
}
