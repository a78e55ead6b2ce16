package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient makes REST calls to the status server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:7878").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetStatus fetches /api/status.
func (c *HTTPClient) GetStatus() (*Snapshot, error) {
	var s Snapshot
	if err := c.do(http.MethodGet, "/api/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetConfig fetches /api/config.
func (c *HTTPClient) GetConfig() (*Ducking, error) {
	var d Ducking
	if err := c.do(http.MethodGet, "/api/config", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutConfig replaces the ducking configuration.
func (c *HTTPClient) PutConfig(d Ducking) (*Ducking, error) {
	var out Ducking
	if err := c.do(http.MethodPut, "/api/config", d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleTarget adds name to the target list, or removes it if present.
func (c *HTTPClient) ToggleTarget(name string) (*Ducking, error) {
	return c.toggle(name, "target")
}

// ToggleExclude adds name to the exclude list, or removes it if present.
func (c *HTTPClient) ToggleExclude(name string) (*Ducking, error) {
	return c.toggle(name, "exclude")
}

func (c *HTTPClient) toggle(name, list string) (*Ducking, error) {
	var out Ducking
	if err := c.do(http.MethodPost, "/api/apps/"+url.PathEscape(name)+"/"+list, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Resume sends POST /api/daemon/resume.
func (c *HTTPClient) Resume() error {
	return c.do(http.MethodPost, "/api/daemon/resume", nil, nil)
}

// Suspend sends POST /api/daemon/suspend.
func (c *HTTPClient) Suspend() error {
	return c.do(http.MethodPost, "/api/daemon/suspend", nil, nil)
}

func (c *HTTPClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
