// Package shopify implements the commerce contracts over the Shopify REST
// Admin API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/storeclone/internal/commerce"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 * 1024 * 1024

// DefaultAPIVersion is used when Config.APIVersion is empty.
const DefaultAPIVersion = "2024-01"

// Config locates one store.
type Config struct {
	StoreURL   string
	Token      string
	APIVersion string
	Timeout    time.Duration

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to one store. It is safe for concurrent use.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for cfg. A store URL without a scheme gets https.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.StoreURL) == "" {
		return nil, errors.New("shopify: store url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("shopify: access token is required")
	}
	storeURL := strings.TrimRight(strings.TrimSpace(cfg.StoreURL), "/")
	if !strings.HasPrefix(storeURL, "http://") && !strings.HasPrefix(storeURL, "https://") {
		storeURL = "https://" + storeURL
	}
	if _, err := url.Parse(storeURL); err != nil {
		return nil, fmt.Errorf("shopify: invalid store url: %w", err)
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:   storeURL + "/admin/api/" + version,
		token:  cfg.Token,
		http:   hc,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var (
	_ commerce.Platform    = (*Client)(nil)
	_ commerce.OrderSource = (*Client)(nil)
)

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request. path is relative to the versioned admin base and
// may carry a query string. Non-2xx responses come back as
// *commerce.StatusError.
func (c *Client) do(ctx context.Context, op, method, path string, in any) (*response, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	c.logger.Debug("shopify request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &response{status: resp.StatusCode, header: resp.Header, body: data},
			&commerce.StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) decode(op string, r *response, out any) error {
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// userErrors turns a 422 body into commerce.UserErrors. The API sends
// either {"errors": {"field": ["msg"]}}, {"errors": ["msg"]} or
// {"errors": "msg"}. Returns nil when the body has none of these.
func userErrors(body []byte) commerce.UserErrors {
	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) != nil || len(envelope.Errors) == 0 {
		return nil
	}

	var byField map[string][]string
	if json.Unmarshal(envelope.Errors, &byField) == nil {
		var out commerce.UserErrors
		for field, msgs := range byField {
			for _, m := range msgs {
				out = append(out, commerce.UserError{Field: []string{field}, Message: m})
			}
		}
		sortUserErrors(out)
		return out
	}
	var list []string
	if json.Unmarshal(envelope.Errors, &list) == nil {
		out := make(commerce.UserErrors, len(list))
		for i, m := range list {
			out[i] = commerce.UserError{Message: m}
		}
		return out
	}
	var msg string
	if json.Unmarshal(envelope.Errors, &msg) == nil && msg != "" {
		return commerce.UserErrors{{Message: msg}}
	}
	return nil
}

// rejected maps a 422 to UserErrors and leaves every other error alone.
func rejected(r *response, err error) error {
	var se *commerce.StatusError
	if r != nil && errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity {
		if ue := userErrors(r.body); len(ue) > 0 {
			return ue
		}
	}
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
