// Package httpremote implements remote.Store against the REST API served by
// pt serve.
package httpremote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/remote"
)

// Options configure a Client.
type Options struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// HTTPClient overrides the client built from the timeouts.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is an HTTP remote.Store.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
}

var _ remote.Store = (*Client)(nil)

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", baseURL)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "httpremote")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.Timeout, opts.ConnectTimeout)
	}
	return &Client{
		base:   strings.TrimRight(u.String(), "/"),
		http:   hc,
		logger: opts.Logger,
	}, nil
}

func newHTTPClient(timeout, connectTimeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}

func (c *Client) userPath(userID string, parts ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	b.WriteString("/v1/users/")
	b.WriteString(url.PathEscape(userID))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do sends a request and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &remote.Error{Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &remote.Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &remote.Error{Op: op, Status: resp.StatusCode, Err: errorFromBody(resp)}
		c.logger.Debug("remote_request_failed", "op", op, "status", resp.StatusCode, "err", rerr.Err)
		return rerr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func errorFromBody(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		if len(e.Fields) > 0 {
			return fmt.Errorf("%s (%s)", e.Error, strings.Join(e.Fields, ", "))
		}
		return errors.New(e.Error)
	}
	return errors.New(http.StatusText(resp.StatusCode))
}

// UpsertLog inserts or replaces one log.
func (c *Client) UpsertLog(ctx context.Context, userID string, row remote.LogRow) error {
	return c.do(ctx, "upsert_log", http.MethodPut, c.userPath(userID, "logs", row.ID), row, nil)
}

// UpsertLogs inserts or replaces a batch of logs.
func (c *Client) UpsertLogs(ctx context.Context, userID string, rows []remote.LogRow) error {
	if len(rows) == 0 {
		return nil
	}
	return c.do(ctx, "upsert_logs", http.MethodPost, c.userPath(userID, "logs", "batch"), rows, nil)
}

// DeleteLog removes a log. A 404 counts as success.
func (c *Client) DeleteLog(ctx context.Context, userID, logID string) error {
	err := c.do(ctx, "delete_log", http.MethodDelete, c.userPath(userID, "logs", logID), nil, nil)
	var re *remote.Error
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// UpdateProfile sends a partial profile update.
func (c *Client) UpdateProfile(ctx context.Context, userID string, patch remote.ProfilePatch) error {
	return c.do(ctx, "update_profile", http.MethodPatch, c.userPath(userID, "profile"), patch, nil)
}

// FetchLogs returns every log of userID.
func (c *Client) FetchLogs(ctx context.Context, userID string) ([]remote.LogRow, error) {
	var rows []remote.LogRow
	if err := c.do(ctx, "fetch_logs", http.MethodGet, c.userPath(userID, "logs"), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FetchProfile returns the profile of userID or remote.ErrNotFound.
func (c *Client) FetchProfile(ctx context.Context, userID string) (remote.ProfileRow, error) {
	var p remote.ProfileRow
	err := c.do(ctx, "fetch_profile", http.MethodGet, c.userPath(userID, "profile"), nil, &p)
	var re *remote.Error
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return remote.ProfileRow{}, remote.ErrNotFound
	}
	return p, err
}

// Ping calls the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, c.base+"/healthz", nil, nil)
}
