package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/maestro-buddy/gateway/internal/backend"
	"github.com/hubenschmidt/maestro-buddy/gateway/internal/metrics"
)

// ErrToolNotFound is returned when the content gateway does not know the tool.
var ErrToolNotFound = errors.New("content tool not found")

const maxResultBytes = 1 << 20

// Client calls a content gateway's execute endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for the execute endpoint at url.
func NewClient(url string, poolSize int, timeout time.Duration) *Client {
	return &Client{url: url, http: backend.NewPooledHTTPClient(poolSize, timeout)}
}

// Execute runs tool with args and returns the raw JSON result. Non-2xx
// responses and bodies that are not valid JSON are errors.
func (c *Client) Execute(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	start := time.Now()
	defer func() { metrics.StageDuration.WithLabelValues("content").Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(Request{Tool: tool, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal content request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create content request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read content response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("content status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("content response for %s is not valid JSON", tool)
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}
