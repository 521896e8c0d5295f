// Package client talks to a running bagdesk server over its HTTP API and its
// WebSocket stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oddrm/pse25/internal/domain"
	"github.com/oddrm/pse25/internal/protocol"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// StartResult is the answer to a run start.
type StartResult struct {
	Started bool        `json:"started"`
	Reason  string      `json:"reason,omitempty"`
	Run     *domain.Run `json:"run,omitempty"`
}

// Client handles HTTP communication with bagdesk.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the server at baseURL (e.g. http://localhost:8080).
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPlugins returns the plugin catalog.
func (c *Client) ListPlugins(ctx context.Context) ([]protocol.PluginState, error) {
	var resp struct {
		Plugins []protocol.PluginState `json:"plugins"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/plugins", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// SetPluginEnabled enables or disables a plugin.
func (c *Client) SetPluginEnabled(ctx context.Context, pluginID int, enabled bool) (*protocol.PluginState, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	var plugin protocol.PluginState
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/plugins/%d/%s", pluginID, action), nil, &plugin); err != nil {
		return nil, err
	}
	return &plugin, nil
}

// StartRun asks the server to start a plugin run. An empty entry name starts
// a global run.
func (c *Client) StartRun(ctx context.Context, pluginID int, entryName string) (*StartResult, error) {
	body := map[string]string{}
	if entryName != "" {
		body["entry_name"] = entryName
	}
	var res StartResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/plugins/%d/runs", pluginID), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListRuns returns the active runs.
func (c *Client) ListRuns(ctx context.Context) ([]domain.Run, error) {
	var resp struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Logs returns log entries newer than afterID, most recent first. A zero
// limit returns all of them.
func (c *Client) Logs(ctx context.Context, afterID, limit int) ([]domain.LogEntry, error) {
	q := url.Values{}
	if afterID > 0 {
		q.Set("after_id", strconv.Itoa(afterID))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Logs []domain.LogEntry `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/v1/logs", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// ListEntries returns the first page of entries matching search.
func (c *Client) ListEntries(ctx context.Context, search string, pageSize int) ([]domain.Entry, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var resp struct {
		Entries []domain.Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/v1/entries", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Health calls the HTTP health endpoint.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
