package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/acentrix/quotefunnel/internal/core"
)

// Client is the shared HTTP plumbing under every upstream adapter: base URL,
// timeouts, JSON codec and status-to-sentinel error mapping.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// apiError is the upstream error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Upstream signal for "no account for this identity+phone combination".
const codePhoneMismatch = "CUSTOMER_PHONE_MISMATCH"

func (c *Client) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", core.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) mapError(resp *http.Response, method, path string) error {
	var env apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s %s", core.ErrUnauthorized, method, path)
	case env.Code == codePhoneMismatch:
		return fmt.Errorf("%w: %s", core.ErrIdentityMismatch, env.Message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", core.ErrNotFound, method, path)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", core.ErrValidation, env.Message)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", core.ErrConflict, env.Message)
	default:
		return fmt.Errorf("%w: %s %s: status %d: %s",
			core.ErrUpstream, method, path, resp.StatusCode, env.Message)
	}
}

// doAuthed performs an authenticated call with the one-retry-after-refresh
// policy: a 401 triggers exactly one coalesced refresh through the bridge
// and retries once with the new token; refresh failure logs the session out
// and surfaces ErrUnauthorized to abort the flow.
func doAuthed(ctx context.Context, c *Client, bridge core.SessionBridge, method, path string, in, out any) error {
	err := c.do(ctx, method, path, bridge.Tokens().AccessToken, in, out)
	if !errors.Is(err, core.ErrUnauthorized) {
		return err
	}

	if _, rerr := bridge.Refresh(ctx); rerr != nil {
		_ = bridge.Logout(ctx)
		return fmt.Errorf("%w: session refresh failed", core.ErrUnauthorized)
	}
	return c.do(ctx, method, path, bridge.Tokens().AccessToken, in, out)
}
