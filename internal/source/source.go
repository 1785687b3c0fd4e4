// Package source holds what the upstream adapters share: a bounded HTTP
// GET that classifies failures into the pkg/errors taxonomy, and the
// result shape adapters hand to the pipeline.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/internal/feed"
	apperrors "github.com/Adithya-Monish-Kumar-K/Situation-Feed-Pipeline/pkg/errors"
)

const (
	DefaultUserAgent = "SituationFeed/1.0"
	maxBodyBytes     = 8 << 20
	errorBodyBytes   = 180
)

// Result is an adapter's normalized output. Counters are reported in the
// fetch stage of the response metadata.
type Result struct {
	Items    []feed.Item
	Counters map[string]int
}

// Client performs upstream GETs with a hard per-call timeout. It never
// retries.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Get fetches rawURL and returns the body of a 2xx response. Non-2xx
// statuses map through apperrors.FromStatus and transport failures through
// apperrors.FromTransport.
func (c *Client) Get(ctx context.Context, upstream, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", upstream, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.FromTransport(upstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		return nil, apperrors.FromStatus(upstream, resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.FromTransport(upstream, err)
	}
	return body, nil
}

// GetJSON is Get followed by a JSON decode into dst. A body that does not
// decode is a malformed response.
func (c *Client) GetJSON(ctx context.Context, upstream, rawURL string, header http.Header, dst any) error {
	body, err := c.Get(ctx, upstream, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.Malformed(upstream, err)
	}
	return nil
}
