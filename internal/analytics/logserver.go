package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LogClient posts general logs to the device log server as JSON.
type LogClient struct {
	url      string
	clientID string
	http     *http.Client
}

type logRecord struct {
	ClientID string            `json:"client_id"`
	Time     int64             `json:"time"`
	Package  string            `json:"package,omitempty"`
	Logs     map[string]string `json:"logs"`
}

// NewLogClient creates a client. A nil hc uses a client with a 30s timeout.
func NewLogClient(url, clientID string, hc *http.Client) *LogClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &LogClient{url: url, clientID: clientID, http: hc}
}

// Send posts entries as one JSON array.
func (c *LogClient) Send(ctx context.Context, entries []Event) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]logRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, logRecord{
			ClientID: c.clientID,
			Time:     e.Time.Unix(),
			Package:  e.Package,
			Logs:     e.Logs,
		})
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post logs: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post logs: unexpected status %s", resp.Status)
	}
	return nil
}
