// Package client is the HTTP/websocket client for the punchd daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a punchd daemon over its local HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8412/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new punchd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8412/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("reachability request failed", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	reachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("daemon reachability check", "reachable", reachable, "status", resp.StatusCode)
	return reachable
}

// Start asks the daemon to begin tracking logID and returns the daemon's
// instance ID. taskID may be empty.
func (c *Client) Start(ctx context.Context, logID, taskID string) (string, error) {
	c.logger.Debug("starting session", "logId", logID, "taskId", taskID)

	data, err := json.Marshal(StartRequest{LogID: logID, TaskID: taskID})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var resp StartResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/start", data, &resp); err != nil {
		return "", err
	}
	return resp.InstanceID, nil
}

// Stop ends the running session. idleSeconds, when non-nil, submits the
// client-side accumulated idle total for the session being closed.
func (c *Client) Stop(ctx context.Context, idleSeconds *uint64) error {
	c.logger.Debug("stopping session")

	var data []byte
	if idleSeconds != nil {
		var err error
		data, err = json.Marshal(StopRequest{IdleSeconds: idleSeconds})
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/stop", data, nil)
}

// Status fetches the daemon's persisted record and running session.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/status", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Reconcile asks the daemon to run a gap check immediately.
func (c *Client) Reconcile(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/reconcile", nil, nil)
}

// InstanceID fetches the daemon's stable install identifier.
func (c *Client) InstanceID(ctx context.Context) (string, error) {
	var resp InstanceResponse
	if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/instance-id", nil, &resp); err != nil {
		return "", err
	}
	return resp.InstanceID, nil
}

// Events fetches recent journaled lifecycle events, newest first. limit <= 0
// uses the daemon's default.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	u := c.baseURL + "/events"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var events []Event
	if err := c.doRequest(ctx, http.MethodGet, u, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Feed opens the daemon's live event stream.
func (c *Client) Feed(ctx context.Context) (*Feed, error) {
	u, err := feedURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			c.logger.Debug("feed dial rejected", "status", resp.StatusCode)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	return &Feed{conn: conn}, nil
}

// Feed is an open subscription to the daemon's event stream.
type Feed struct {
	conn *websocket.Conn
}

// Next blocks until the next envelope arrives or the stream closes.
func (f *Feed) Next() (Envelope, error) {
	var env Envelope
	if err := f.conn.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Close tears down the stream.
func (f *Feed) Close() error {
	return f.conn.Close()
}

// feedURL turns the HTTP base URL into the websocket endpoint.
func feedURL(base string) (string, error) {
	u, err := url.Parse(base + "/ws")
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// doRequest performs an HTTP request with common error handling and decodes
// the response body into out when out is non-nil.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("http request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse maps non-OK responses to errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("undecodable error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("api request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
