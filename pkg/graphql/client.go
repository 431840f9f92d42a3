package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/unraidmate/console/pkg/metrics"
)

const (
	// HealthQuery is the minimal read used for validation and reachability checks
	HealthQuery = `query { online }`

	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 512
)

// Options configures a Client
type Options struct {
	Endpoint string
	APIKey   KeyFunc
	// Transport is the base round tripper under the auth/logging pipeline
	Transport http.RoundTripper
	// Timeout is the general network timeout for one request
	Timeout time.Duration
	Cache   *Cache
}

// Request is a GraphQL operation
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Response is a successful GraphQL result
type Response struct {
	Data      gjson.Result
	Raw       []byte
	FromCache bool
	CachedAt  time.Time
}

// Client talks to one Unraid GraphQL endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      *Cache
}

// NewClient creates a client bound to opts.Endpoint
func NewClient(opts Options) *Client {
	if opts.APIKey == nil {
		opts.APIKey = StaticKey("")
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.Cache == nil {
		opts.Cache = NewCache()
	}
	return &Client{
		endpoint: strings.TrimSpace(opts.Endpoint),
		httpClient: &http.Client{
			Transport: newPipeline(opts.Transport, opts.APIKey),
			Timeout:   opts.Timeout,
		},
		cache: opts.Cache,
	}
}

// Disconnected returns a client with no endpoint. Every call fails with
// ErrNotConfigured; constructing it never fails.
func Disconnected() *Client {
	return &Client{cache: NewCache(), httpClient: &http.Client{}}
}

// Endpoint returns the server URL, empty for a disconnected client
func (c *Client) Endpoint() string { return c.endpoint }

// Configured reports whether the client has an endpoint
func (c *Client) Configured() bool { return c.endpoint != "" }

// Cache returns the client's result cache
func (c *Client) Cache() *Cache { return c.cache }

// QueryOption adjusts a single Query call
type QueryOption func(*queryOptions)

type queryOptions struct {
	policy FetchPolicy
}

// WithFetchPolicy overrides the default NetworkFirst policy
func WithFetchPolicy(p FetchPolicy) QueryOption {
	return func(o *queryOptions) { o.policy = p }
}

// Query runs a read. By default the network is preferred and the cache
// answers when the network fails.
func (c *Client) Query(ctx context.Context, query string, vars map[string]any, opts ...QueryOption) (*Response, error) {
	o := queryOptions{policy: NetworkFirst}
	for _, opt := range opts {
		opt(&o)
	}

	key := cacheKey(query, vars)
	if o.policy == CacheFirst {
		if raw, at, ok := c.cache.get(key); ok {
			return cachedResponse(raw, at), nil
		}
	}

	raw, err := c.do(ctx, Request{Query: query, Variables: vars}, "query")
	if err != nil {
		if o.policy == NetworkFirst && retryableFromCache(err) {
			if cached, at, ok := c.cache.get(key); ok {
				log.Printf("[graphql] serving cached result after network failure: %v", err)
				return cachedResponse(cached, at), nil
			}
		}
		return nil, err
	}

	c.cache.put(key, raw)
	return &Response{Data: gjson.GetBytes(raw, "data"), Raw: raw}, nil
}

// Mutate runs a mutation. Mutations never read from or write to the cache.
func (c *Client) Mutate(ctx context.Context, mutation string, vars map[string]any) (*Response, error) {
	raw, err := c.do(ctx, Request{Query: mutation, Variables: vars}, "mutation")
	if err != nil {
		return nil, err
	}
	return &Response{Data: gjson.GetBytes(raw, "data"), Raw: raw}, nil
}

// Exec dispatches req to Query or Mutate based on its operation type
func (c *Client) Exec(ctx context.Context, req Request, opts ...QueryOption) (*Response, error) {
	if IsMutation(req.Query) {
		return c.Mutate(ctx, req.Query, req.Variables)
	}
	return c.Query(ctx, req.Query, req.Variables, opts...)
}

// Ping runs the health query and reports whether the server says it is online
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Query(ctx, HealthQuery, nil, WithFetchPolicy(NetworkOnly))
	if err != nil {
		return err
	}
	if online := resp.Data.Get("online"); online.Exists() && !online.Bool() {
		return fmt.Errorf("server reports offline")
	}
	return nil
}

// ClearStore empties the result cache
func (c *Client) ClearStore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.cache.Reset()
	return nil
}

// IsMutation reports whether the document's first operation is a mutation
func IsMutation(query string) bool {
	q := strings.TrimSpace(query)
	for strings.HasPrefix(q, "#") {
		if i := strings.IndexByte(q, '\n'); i >= 0 {
			q = strings.TrimSpace(q[i+1:])
		} else {
			return false
		}
	}
	return strings.HasPrefix(q, "mutation")
}

func (c *Client) do(ctx context.Context, gqlReq Request, operation string) ([]byte, error) {
	if !c.Configured() {
		metrics.GraphQLRequests.WithLabelValues(operation, "not_configured").Inc()
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(gqlReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.GraphQLRequests.WithLabelValues(operation, "network_error").Inc()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GraphQLRequests.WithLabelValues(operation, "network_error").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if gqlErr := parseErrors(raw, resp.StatusCode); gqlErr != nil {
		log.Printf("[graphql] %s error: %v", operation, gqlErr)
		metrics.GraphQLRequests.WithLabelValues(operation, "graphql_error").Inc()
		return nil, gqlErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.GraphQLRequests.WithLabelValues(operation, "http_error").Inc()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	if !gjson.ValidBytes(raw) {
		metrics.GraphQLRequests.WithLabelValues(operation, "invalid_response").Inc()
		return nil, errors.New("graphql: invalid JSON response")
	}

	metrics.GraphQLRequests.WithLabelValues(operation, "ok").Inc()
	return raw, nil
}

// parseErrors returns the first entry of a non-empty "errors" array
func parseErrors(raw []byte, status int) *Error {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	errs := gjson.GetBytes(raw, "errors")
	if !errs.IsArray() || len(errs.Array()) == 0 {
		return nil
	}
	first := errs.Array()[0]
	e := &Error{
		Message:    first.Get("message").String(),
		Code:       first.Get("extensions.code").String(),
		StatusCode: status,
	}
	for _, p := range first.Get("path").Array() {
		e.Path = append(e.Path, p.String())
	}
	if n := len(errs.Array()); n > 1 {
		e.Message = fmt.Sprintf("%s (and %d more)", e.Message, n-1)
	}
	return e
}

func cachedResponse(raw []byte, at time.Time) *Response {
	return &Response{Data: gjson.GetBytes(raw, "data"), Raw: raw, FromCache: true, CachedAt: at}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
