// Package httpkit builds the HTTP client the Scrape Engine posts forms
// with, including the three-tier escalating timeout retry policy spec §7
// requires for a single POST (5s -> 10s -> 30s, drop and log on exhaustion).
package httpkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pjatk21/sigma-api/internal/formbuilder"
)

// TimeoutTiers is the escalating per-attempt timeout ladder (spec §7; see
// SPEC_FULL.md's note on the dropped go-retryablehttp dependency).
var TimeoutTiers = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// Client wraps a base *http.Transport shared across all tiers; only the
// per-request timeout changes between attempts, so a single transport
// (and its connection pool) is reused instead of building one client per
// tier up front.
type Client struct {
	transport *http.Transport
	userAgent string
	logger    *zap.Logger
}

// New builds a Client with a dedicated transport and the fixed User-Agent
// the Form Builders require (spec §4.B).
func New(userAgent string, logger *zap.Logger) *Client {
	return &Client{
		transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// PostForm posts form-urlencoded values to targetURL with the headers
// spec §4.B requires, retrying across TimeoutTiers on transport errors.
// Returns the response body and the HTTP status code of the successful
// attempt. If every tier fails, the last error is returned so the caller
// can drop the entry and log, per spec §7.
func (c *Client) PostForm(ctx context.Context, targetURL string, form url.Values) (int, []byte, error) {
	var lastErr error
	for i, timeout := range TimeoutTiers {
		status, body, err := c.attempt(ctx, targetURL, form, timeout)
		if err == nil {
			return status, body, nil
		}
		lastErr = err
		if c.logger != nil {
			c.logger.Warn("POST attempt failed, escalating timeout tier",
				zap.Int("tier", i+1),
				zap.Duration("timeout", timeout),
				zap.Error(err),
			)
		}
	}
	return 0, nil, fmt.Errorf("httpkit: all %d attempts failed: %w", len(TimeoutTiers), lastErr)
}

func (c *Client) attempt(ctx context.Context, targetURL string, form url.Values, timeout time.Duration) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, targetURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", formbuilder.HeaderContentType)
	req.Header.Set("X-MicrosoftAjax", formbuilder.HeaderAjaxDelta)

	client := &http.Client{Transport: c.transport, Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// Get performs the plain full-page GET (no delta headers), used at startup
// to seed Token State before the first date form is ever built, and by the
// Engine's today shortcut to fetch the page it enumerates entries from.
func (c *Client) Get(ctx context.Context, targetURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	client := &http.Client{Transport: c.transport, Timeout: TimeoutTiers[len(TimeoutTiers)-1]}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
