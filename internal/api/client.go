package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrAPIUnavailable reports that the control API is disabled or unreachable.
var ErrAPIUnavailable = errors.New("control API unavailable")

// Client talks to the daemon control API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// HistoryQuery filters history requests.
type HistoryQuery struct {
	Limit int
	Kinds []string
}

// NewClient builds a client for bind. An empty bind returns a nil client
// whose methods report ErrAPIUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// Sweeps over a large store can take a while.
		http: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var payload DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &payload)
	return payload, err
}

// Sweep runs one expiry pass and returns its result.
func (c *Client) Sweep(ctx context.Context) (SweepResult, error) {
	var payload SweepResponse
	if err := c.do(ctx, http.MethodPost, "/api/sweep", nil, &payload); err != nil {
		return SweepResult{}, err
	}
	return payload.Result, nil
}

// History fetches recent journal events.
func (c *Client) History(ctx context.Context, q HistoryQuery) (HistoryResponse, error) {
	values := url.Values{}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	for _, kind := range q.Kinds {
		if strings.TrimSpace(kind) != "" {
			values.Add("kind", strings.TrimSpace(kind))
		}
	}
	var payload HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history", values, &payload)
	return payload, err
}

// Stop asks the daemon to shut down.
func (c *Client) Stop(ctx context.Context) error {
	var payload StopResponse
	return c.do(ctx, http.MethodPost, "/api/stop", nil, &payload)
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	var payload HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &payload)
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// IsUnavailable reports whether err means no daemon answered.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
