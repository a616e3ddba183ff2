// Package fetch provides the cached HTTP fetch shared by all provider
// clients: per-call timeout, response cache keyed by request signature,
// and collapsing of concurrent identical requests into one upstream call.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"rxcost/core/cache"
	"rxcost/internal/errors"
)

// MaxBodyBytes caps how much of an upstream response body is read.
const MaxBodyBytes = 8 << 20

// DefaultTimeout bounds an upstream call whose Spec does not set one.
const DefaultTimeout = 10 * time.Second

// Spec describes one upstream request and how to cache its payload.
type Spec struct {
	// Bucket is the cache bucket, one per provider
	Bucket string

	// Key is the request signature within the bucket
	Key string

	// TTL is how long the payload stays fresh; non-positive disables caching
	TTL time.Duration

	// URL is the upstream request URL
	URL string

	// Method defaults to GET
	Method string

	// Body is an optional request body, sent as application/json
	Body []byte

	// Header carries extra request headers
	Header http.Header

	// Timeout bounds the call; zero means DefaultTimeout
	Timeout time.Duration
}

// Client performs cached upstream fetches. Payloads are stored only after
// the body has been read in full, so a timed-out or cancelled call never
// leaves partial data behind.
type Client struct {
	httpClient *http.Client
	store      *cache.Store
	group      singleflight.Group
}

// NewClient creates a client writing through the given store.
func NewClient(store *cache.Store) *Client {
	return &Client{
		httpClient: &http.Client{},
		store:      store,
	}
}

// Do returns the payload for spec, serving it from cache when fresh.
// Concurrent calls with the same bucket and key share a single upstream
// request.
func (c *Client) Do(ctx context.Context, spec Spec) ([]byte, error) {
	if data, ok := c.store.Get(spec.Bucket, spec.Key); ok {
		return data, nil
	}

	v, err, _ := c.group.Do(spec.Bucket+"|"+spec.Key, func() (interface{}, error) {
		if data, ok := c.store.Get(spec.Bucket, spec.Key); ok {
			return data, nil
		}
		data, err := c.fetch(ctx, spec)
		if err != nil {
			return nil, err
		}
		c.store.Put(spec.Bucket, spec.Key, data, spec.TTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, spec Spec) ([]byte, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "failed to create request", err)
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(spec.Body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Network("upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.TypeProvider, "upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, errors.Network("failed to read upstream response", err)
	}
	return data, nil
}
