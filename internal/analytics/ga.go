package analytics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the Measurement Protocol v1 batch endpoint.
const DefaultEndpoint = "https://www.google-analytics.com/batch"

// MaxBatchHits is the most hits the batch endpoint accepts per request.
const MaxBatchHits = 20

// Google Analytics caps queue time at four hours.
const maxQueueTime = 4 * time.Hour

// GAClient uploads hits with the Measurement Protocol v1 batch API.
type GAClient struct {
	endpoint   string
	trackingID string
	clientID   string
	dims       Dimensions
	http       *http.Client
	now        func() time.Time
}

// NewGAClient creates a client. A nil hc uses a client with a 30s timeout.
func NewGAClient(endpoint, trackingID, clientID string, dims Dimensions, hc *http.Client) *GAClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GAClient{
		endpoint:   endpoint,
		trackingID: trackingID,
		clientID:   clientID,
		dims:       dims,
		http:       hc,
		now:        time.Now,
	}
}

// Send posts hits in one batch request. Callers keep batches at or below
// MaxBatchHits.
func (c *GAClient) Send(ctx context.Context, hits []Event) error {
	if len(hits) == 0 {
		return nil
	}
	if len(hits) > MaxBatchHits {
		return fmt.Errorf("batch of %d hits exceeds limit %d", len(hits), MaxBatchHits)
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		lines = append(lines, c.payload(h).Encode())
	}
	body := strings.Join(lines, "\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post batch: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *GAClient) payload(e Event) url.Values {
	v := url.Values{}
	v.Set("v", "1")
	v.Set("tid", c.trackingID)
	v.Set("cid", c.clientID)
	v.Set("t", string(e.Type))

	switch e.Type {
	case HitEvent:
		v.Set("ec", e.Category)
		v.Set("ea", e.Action)
		if e.Label != "" {
			v.Set("el", e.Label)
		}
		if e.Value != nil {
			v.Set("ev", strconv.FormatInt(*e.Value, 10))
		}
	case HitScreenView:
		v.Set("cd", e.ScreenName)
	case HitException:
		v.Set("exd", e.Description)
		v.Set("exf", boolParam(e.Fatal))
	}

	if e.Package != "" {
		v.Set("an", e.Package)
	}
	for _, d := range c.dims.indexed() {
		if d.value != "" {
			v.Set("cd"+strconv.Itoa(d.index), d.value)
		}
	}
	for idx, val := range e.Metrics {
		v.Set("cm"+strconv.Itoa(idx), strconv.FormatInt(val, 10))
	}
	if !e.Time.IsZero() {
		qt := c.now().Sub(e.Time)
		if qt > maxQueueTime {
			qt = maxQueueTime
		}
		if qt > 0 {
			v.Set("qt", strconv.FormatInt(qt.Milliseconds(), 10))
		}
	}
	return v
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
