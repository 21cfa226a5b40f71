// Package checkin talks to the external daily check-in service.
package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrService = errors.New("check-in service error")

// Client is a check-in HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Rate limiting
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient creates a new check-in client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		minDelay: 50 * time.Millisecond,
	}
}

// throttle spaces consecutive requests by at least minDelay.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wait := c.minDelay - time.Since(c.lastCall)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.lastCall = time.Now()
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) (int, []byte, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}

	return resp.StatusCode, data, nil
}

// CheckIn performs today's check-in for address. A wallet that already
// checked in is reported through Response.AlreadyCheckedIn, not an error.
func (c *Client) CheckIn(ctx context.Context, address string) (*Response, error) {
	status, data, err := c.doRequest(ctx, http.MethodPost, "/checkin/simple", url.Values{"wallet_address": {address}})
	if err != nil {
		return nil, err
	}

	var resp Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil && status < 400 {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
	}

	switch {
	case status == http.StatusConflict:
		resp.AlreadyCheckedIn = true
		return &resp, nil
	case status >= 400:
		return nil, fmt.Errorf("%w %d: %s", ErrService, status, strings.TrimSpace(string(data)))
	}

	if !resp.Success && !resp.AlreadyCheckedIn {
		return nil, fmt.Errorf("%w: %s", ErrService, resp.Message)
	}
	return &resp, nil
}

// GetStatus returns the check-in status of address
func (c *Client) GetStatus(ctx context.Context, address string) (*Status, error) {
	status, data, err := c.doRequest(ctx, http.MethodGet, "/checkin/status/simple", url.Values{"wallet_address": {address}})
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w %d: %s", ErrService, status, strings.TrimSpace(string(data)))
	}

	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &st, nil
}
