package control

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

	"alertd/internal/config"
	"alertd/internal/feed"
	"alertd/internal/notifier"
)

// Client performs Controller operations against a running daemon's local
// server.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient targets addr ("127.0.0.1:3001" or a full http URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, hc: &http.Client{Timeout: 15 * time.Second}}
}

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Unwrap maps 400 answers onto ErrBadRequest.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusBadRequest {
		return ErrBadRequest
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *Client) GetConfig(ctx context.Context) (config.PollConfig, error) {
	var pc config.PollConfig
	err := c.do(ctx, http.MethodGet, "/api/config", nil, &pc)
	return pc, err
}

func (c *Client) UpdateConfig(ctx context.Context, patch config.PollPatch) (config.PollConfig, error) {
	var out struct {
		Config config.PollConfig `json:"config"`
	}
	err := c.do(ctx, http.MethodPut, "/api/config", patch, &out)
	return out.Config, err
}

func (c *Client) Notify(ctx context.Context, req NotifyRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/notification", req, &out)
	return out.ID, err
}

func (c *Client) TestNotification(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/test-notification", nil, nil)
}

func (c *Client) TestAPIConnection(ctx context.Context) (feed.ProbeResult, error) {
	var pr feed.ProbeResult
	err := c.do(ctx, http.MethodPost, "/api/test-connection", nil, &pr)
	return pr, err
}

func (c *Client) ClearProcessed(ctx context.Context) (ClearResult, error) {
	var cr ClearResult
	err := c.do(ctx, http.MethodPost, "/api/clear-processed", nil, &cr)
	return cr, err
}

func (c *Client) History(ctx context.Context, limit int) ([]notifier.HistoryItem, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var items []notifier.HistoryItem
	err := c.do(ctx, http.MethodGet, path, nil, &items)
	return items, err
}
