// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	xglog "github.com/ManuGH/cinevault/internal/log"
)

const maxResponseBytes = 64 << 10

// HTTPConfig configures the collaborator client.
type HTTPConfig struct {
	// URL is called as GET {URL}?viewerId=..&assetId=..
	URL     string
	Timeout time.Duration
}

// HTTPChecker asks the purchase-records service over HTTP. 200 carries the
// decision as {"entitled": bool}; 403 and 404 mean "not entitled"; anything
// else is an error.
type HTTPChecker struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPChecker(cfg HTTPConfig) (*HTTPChecker, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("entitlement url %q: invalid", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPChecker{
		base: u,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type decision struct {
	Entitled *bool `json:"entitled"`
}

func (c *HTTPChecker) Entitled(ctx context.Context, viewerID, assetID string) (bool, error) {
	u := *c.base
	q := u.Query()
	q.Set("viewerId", viewerID)
	q.Set("assetId", assetID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if id := xglog.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCheckFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: status %d", ErrCheckFailed, resp.StatusCode)
	}

	var d decision
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&d); err != nil {
		return false, fmt.Errorf("%w: decode: %v", ErrCheckFailed, err)
	}
	if d.Entitled == nil {
		return false, fmt.Errorf("%w: response has no decision", ErrCheckFailed)
	}
	return *d.Entitled, nil
}
