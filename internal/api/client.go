package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/bandlink/internal/httputil"
	"github.com/banshee-data/bandlink/internal/session"
	"github.com/banshee-data/bandlink/internal/version"
)

// Client drives a running bandlink server over its HTTP API.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a Client for the server at base, e.g.
// "http://localhost:8080". A nil hc uses httputil.NewStandardClient(nil).
func NewClient(base string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, v interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := httputil.DecodeResponse(resp, v); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var st StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Connect starts a connect attempt. The returned status is taken when the
// server accepted the request, usually while still connecting.
func (c *Client) Connect(ctx context.Context) (StatusResponse, error) {
	var st StatusResponse
	err := c.do(ctx, http.MethodPost, "/api/connect", url.Values{}, &st)
	return st, err
}

func (c *Client) Disconnect(ctx context.Context) (StatusResponse, error) {
	var st StatusResponse
	err := c.do(ctx, http.MethodPost, "/api/disconnect", url.Values{}, &st)
	return st, err
}

func (c *Client) StartDemo(ctx context.Context) (session.DemoProgress, error) {
	var p session.DemoProgress
	err := c.do(ctx, http.MethodPost, "/api/demo/start", url.Values{}, &p)
	return p, err
}

func (c *Client) StopDemo(ctx context.Context) (session.DemoProgress, error) {
	var p session.DemoProgress
	err := c.do(ctx, http.MethodPost, "/api/demo/stop", url.Values{}, &p)
	return p, err
}

func (c *Client) SetDemoCadence(ctx context.Context, d time.Duration) (session.DemoProgress, error) {
	var p session.DemoProgress
	form := url.Values{"interval_ms": {strconv.FormatInt(d.Milliseconds(), 10)}}
	err := c.do(ctx, http.MethodPost, "/api/demo/cadence", form, &p)
	return p, err
}

// SendCommand writes command to the band verbatim.
func (c *Client) SendCommand(ctx context.Context, command string) error {
	return c.do(ctx, http.MethodPost, "/api/command", url.Values{"command": {command}}, nil)
}

func (c *Client) Version(ctx context.Context) (version.BuildInfo, error) {
	var info version.BuildInfo
	err := c.do(ctx, http.MethodGet, "/api/version", nil, &info)
	return info, err
}
