// Package rest talks to a hosted PostgREST-style data API (the dialect served by
// Supabase and PostgREST): filters as query parameters, JSON bodies, and stored
// procedures under /rpc.
package rest

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

	"github.com/townsquareapp/townsquare-server/internal/backend"
	"github.com/townsquareapp/townsquare-server/internal/backend/sqlbuild"
	"github.com/townsquareapp/townsquare-server/internal/ratelimit"
)

const limiterKey = "rest"

// Config configures the client.
type Config struct {
	BaseURL           string  // e.g. https://project.supabase.co
	APIKey            string  // sent as apikey and bearer token
	RequestsPerSecond float64 // 0 disables client-side limiting
	HTTPClient        *http.Client
}

// Client implements backend.Backend and backend.Caller over HTTP.
type Client struct {
	base    string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

var (
	_ backend.Backend = (*Client)(nil)
	_ backend.Caller  = (*Client)(nil)
)

// New creates a client.
func New(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1",
		apiKey: cfg.APIKey,
		http:   cfg.HTTPClient,
		logger: logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		c.limiter = ratelimit.New(cfg.RequestsPerSecond, burst)
	}
	return c
}

// Close stops the rate limiter.
func (c *Client) Close() error {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	return nil
}

// Insert implements backend.Backend.
func (c *Client) Insert(ctx context.Context, collection string, rec backend.Record) (backend.Record, error) {
	var rows []backend.Record
	if err := c.do(ctx, http.MethodPost, collection, nil, rec, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: empty representation", collection)
	}
	return rows[0], nil
}

// Delete implements backend.Backend.
func (c *Client) Delete(ctx context.Context, collection string, match backend.Match) (int, error) {
	q, err := filters(match)
	if err != nil {
		return 0, err
	}
	var rows []backend.Record
	if err := c.do(ctx, http.MethodDelete, collection, q, nil, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Select implements backend.Backend.
func (c *Client) Select(ctx context.Context, collection string, match backend.Match, order ...backend.Order) ([]backend.Record, error) {
	q, err := filters(match)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			if !sqlbuild.ValidIdentifier(o.Column) {
				return nil, fmt.Errorf("order column %q: %w", o.Column, backend.ErrInvalidIdentifier)
			}
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts[i] = o.Column + "." + dir
		}
		q.Set("order", strings.Join(parts, ","))
	}

	var rows []backend.Record
	if err := c.do(ctx, http.MethodGet, collection, q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Update implements backend.Backend.
func (c *Client) Update(ctx context.Context, collection string, match backend.Match, fields backend.Record) (int, error) {
	q, err := filters(match)
	if err != nil {
		return 0, err
	}
	var rows []backend.Record
	if err := c.do(ctx, http.MethodPatch, collection, q, fields, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Call implements backend.Caller. Argument names gain the p_ prefix used by the
// stored function signatures.
func (c *Client) Call(ctx context.Context, fn string, args backend.Record) error {
	if !sqlbuild.ValidIdentifier(fn) {
		return fmt.Errorf("procedure %q: %w", fn, backend.ErrInvalidIdentifier)
	}
	body := make(map[string]any, len(args))
	for k, v := range args {
		body["p_"+k] = v
	}
	return c.do(ctx, http.MethodPost, "rpc/"+fn, nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	table, _ := strings.CutPrefix(path, "rpc/")
	if !sqlbuild.ValidIdentifier(table) {
		return fmt.Errorf("collection %q: %w", path, backend.ErrInvalidIdentifier)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	u := c.base + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp.StatusCode, payload)
	}

	c.logger.Debug("rest call", "method", method, "path", path, "status", resp.StatusCode)

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusError(method, path string, status int, payload []byte) error {
	var body apiError
	_ = json.Unmarshal(payload, &body)

	switch {
	case status == http.StatusConflict || body.Code == "23505":
		return fmt.Errorf("%s %s: %w: %s", method, path, backend.ErrDuplicate, body.Message)
	case status == http.StatusNotFound || body.Code == "P0002":
		return fmt.Errorf("%s %s: %w", method, path, backend.ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || body.Code == "42501":
		return fmt.Errorf("%s %s: %w: %s", method, path, backend.ErrForbidden, body.Message)
	}
	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(payload))
	}
	return fmt.Errorf("%s %s: status %d: %s", method, path, status, msg)
}

// filters renders a Match as PostgREST query parameters.
func filters(match backend.Match) (url.Values, error) {
	q := url.Values{}
	for _, cond := range match {
		if !sqlbuild.ValidIdentifier(cond.Column) {
			return nil, fmt.Errorf("column %q: %w", cond.Column, backend.ErrInvalidIdentifier)
		}
		switch cond.Op {
		case backend.OpEq:
			if cond.Value == nil {
				q.Add(cond.Column, "is.null")
				continue
			}
			q.Add(cond.Column, "eq."+literal(cond.Value))
		case backend.OpIn:
			parts := make([]string, len(cond.Values))
			for i, v := range cond.Values {
				parts[i] = quoted(literal(v))
			}
			q.Add(cond.Column, "in.("+strings.Join(parts, ",")+")")
		default:
			return nil, fmt.Errorf("operator %q: %w", cond.Op, backend.ErrUnsupported)
		}
	}
	return q, nil
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func quoted(s string) string {
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}
