package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SessionCounts mirrors the admin server's /debug/sessions document.
type SessionCounts struct {
	Blocked     int `json:"blocked"`
	Pending     int `json:"pending"`
	Live        int `json:"live"`
	Capacity    int `json:"capacity"`
	Occupied    int `json:"occupied"`
	Connections int `json:"connections"`
}

// AdminClient talks to the hub's admin HTTP endpoint.
type AdminClient struct {
	baseURL string
	client  *http.Client
}

// NewAdminClient creates an admin client. A server without a scheme is
// taken as plain http.
func NewAdminClient(server string) *AdminClient {
	baseURL := strings.TrimRight(server, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &AdminClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the base URL of the client.
func (c *AdminClient) BaseURL() string {
	return c.baseURL
}

// Health checks /healthz.
func (c *AdminClient) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

// Sessions fetches the session index counters.
func (c *AdminClient) Sessions(ctx context.Context) (*SessionCounts, error) {
	var out SessionCounts
	if err := c.get(ctx, "/debug/sessions", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *AdminClient) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "authmesh-cli/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	return parseResponse(resp, target)
}

// parseResponse decodes a JSON body into target, or turns an error status
// into an error.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("[%s] %s", errResp.Code, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
