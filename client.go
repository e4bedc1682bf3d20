package lingoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a fresh UUID on every request
const RequestIDHeader = "X-Request-Id"

// Call is one invocation of a logical API path.
type Call struct {
	Method string
	Path   string

	// Params supplies path parameters and the query or body. It must encode
	// to a JSON object (struct, map) or be nil.
	Params any

	// Public calls skip the token manager entirely.
	Public bool

	Header http.Header
}

// Client sends API calls with automatic token management
type Client struct {
	resolver      *Resolver
	tokens        *TokenManager
	executor      Executor
	baseTransport http.RoundTripper
	httpClient    *http.Client
	header        http.Header
	timeout       time.Duration
	logger        *slog.Logger

	codes         CodeSource
	refresher     Refresher
	authenticator Authenticator
	tokenOpts     []TokenManagerOption
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithExecutor replaces the HTTP executor, e.g. with a fake in tests.
func WithExecutor(e Executor) ClientOption {
	return func(c *Client) {
		c.executor = e
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// Its transport is also wrapped by HTTPClient.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client == nil {
			return
		}
		c.httpClient = client
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// WithLogger sets the logger shared by the client and its token manager.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHeader adds a header sent with every call.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithTimeout sets the per-request timeout (default 30s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCodeSource enables re-login through the login endpoint.
func WithCodeSource(codes CodeSource) ClientOption {
	return func(c *Client) {
		c.codes = codes
	}
}

// WithRefresher replaces the default refresh endpoint exchange.
func WithRefresher(r Refresher) ClientOption {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithAuthenticator replaces the default code exchange at the login endpoint.
func WithAuthenticator(a Authenticator) ClientOption {
	return func(c *Client) {
		c.authenticator = a
	}
}

// WithTokenOptions passes options to the client's TokenManager.
func WithTokenOptions(opts ...TokenManagerOption) ClientOption {
	return func(c *Client) {
		c.tokenOpts = append(c.tokenOpts, opts...)
	}
}

// NewClient creates a client resolving paths with resolver and keeping
// credentials in store. The client keeps its own copy of resolver; use
// Client.Resolver to change it afterwards.
func NewClient(resolver *Resolver, store CredentialStore, opts ...ClientOption) *Client {
	r := *resolver
	c := &Client{
		resolver:      &r,
		baseTransport: http.DefaultTransport,
		header:        http.Header{},
		timeout:       DefaultTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.executor == nil {
		hc := c.httpClient
		if hc == nil {
			hc = &http.Client{Transport: c.baseTransport}
		}
		c.executor = NewHTTPExecutor(hc)
	}
	if c.resolver.Logger == nil {
		c.resolver.Logger = c.logger
	}

	refresher := c.refresher
	if refresher == nil {
		refresher = NewAPIRefresher(c, RefreshEndpoint)
	}
	authenticator := c.authenticator
	if authenticator == nil && c.codes != nil {
		authenticator = NewAPIAuthenticator(c, c.codes, LoginEndpoint)
	}

	tokenOpts := append([]TokenManagerOption{WithTokenLogger(c.logger)}, c.tokenOpts...)
	c.tokens = NewTokenManager(store, refresher, authenticator, tokenOpts...)
	return c
}

// Tokens returns the client's token manager
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// Resolver returns the client's copy of the URL resolver
func (c *Client) Resolver() *Resolver {
	return c.resolver
}

// HTTPClient returns a plain HTTP client whose transport attaches the bearer
// token and clears credentials on 401. Use it for endpoints that do not
// follow the JSON envelope, e.g. audio uploads.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &Transport{Base: c.baseTransport, Tokens: c.tokens, Logger: c.logger},
		Timeout:   c.timeout,
	}
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *Client) IsLoggedIn(ctx context.Context) bool {
	return c.tokens.IsLoggedIn(ctx)
}

// Logout removes the stored credential
func (c *Client) Logout(ctx context.Context) error {
	return c.tokens.Logout(ctx)
}

// Do sends call and decodes the response payload into out (if non-nil).
//
// A 401 response clears every stored credential before the error is returned;
// the call is not retried.
func (c *Client) Do(ctx context.Context, call Call, out any) (*Response, error) {
	method := strings.ToUpper(call.Method)
	if !validMethods[method] {
		return nil, &ConfigError{Path: call.Path, Reason: fmt.Sprintf("unsupported method %q", call.Method)}
	}

	payload, err := toPayload(call.Params)
	if err != nil {
		return nil, err
	}

	path, _, err := c.resolver.SubstitutePath(call.Path, payload)
	if err != nil {
		return nil, err
	}

	var query url.Values
	var body any
	if sendsQuery(method) {
		query = EncodeQuery(payload)
	} else {
		body = payload
	}

	target, err := c.resolver.Resolve(path, query)
	if err != nil {
		return nil, err
	}

	header := c.header.Clone()
	for k, vs := range call.Header {
		header[k] = append([]string(nil), vs...)
	}
	header.Set(RequestIDHeader, uuid.NewString())

	if !call.Public {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.executor.Do(ctx, &Request{
		Method:  method,
		URL:     target,
		Body:    body,
		Header:  header,
		Timeout: c.timeout,
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			if clearErr := c.tokens.Invalidate(context.WithoutCancel(ctx)); clearErr != nil {
				c.logger.Error("failed to clear credentials", "err", clearErr)
			}
		}
		return nil, err
	}

	if err := resp.Decode(out); err != nil {
		return resp, fmt.Errorf("failed to decode %s %s response: %w", method, call.Path, err)
	}
	return resp, nil
}

func sendsQuery(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// toPayload converts params to a fresh map so path substitution can delete
// keys without touching the caller's value.
func toPayload(params any) (map[string]any, error) {
	payload := make(map[string]any)
	if params == nil {
		return payload, nil
	}
	if m, ok := params.(map[string]any); ok {
		for k, v := range m {
			payload[k] = v
		}
		return payload, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return payload, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("params must encode to a JSON object, got %s", data)}
	}
	return payload, nil
}
