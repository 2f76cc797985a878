package http

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

	"github.com/fivetwenty-io/qbclient/internal/auth"
	"github.com/fivetwenty-io/qbclient/internal/constants"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const maxErrorBodyLength = 512

// Logger is the logging interface used by the transport.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Request describes one API call. Path is relative to the base URL. Raw
// responses skip JSON validation, for file downloads.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Headers map[string]string
	Raw     bool
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	method string
	path   string
}

// Decode unmarshals the body into v. A body that does not fit v is a
// KindDecode TransportError, like a body that is not JSON at all.
func (r *Response) Decode(v any) error {
	err := json.Unmarshal(r.Body, v)
	if err == nil {
		return nil
	}

	return &quickbase.TransportError{
		Kind:       quickbase.KindDecode,
		Method:     r.method,
		Path:       r.path,
		StatusCode: r.StatusCode,
		Attempts:   1,
		Err:        fmt.Errorf("%w: %w", ErrUnexpectedBody, err),
	}
}

// Client executes Quickbase API requests with retries. It is safe for
// concurrent use; all state is read-only after construction.
type Client struct {
	baseURL      *url.URL
	realm        string
	tokenManager auth.TokenManager
	userAgent    string
	timeout      time.Duration
	policy       RetryPolicy
	logger       Logger
	debug        bool
	metrics      Metrics
	retry        *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request and response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithRetryConfig sets the total attempt count and the base and maximum
// backoff delays.
func WithRetryConfig(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.policy.MaxAttempts = maxAttempts
		c.policy.BaseDelay = baseDelay
		c.policy.MaxDelay = maxDelay
	}
}

// WithJitter sets the jitter ratio applied to each backoff delay.
func WithJitter(jitter float64) Option {
	return func(c *Client) {
		c.policy.Jitter = jitter
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRealm sets the QB-Realm-Hostname header.
func WithRealm(realm string) Option {
	return func(c *Client) {
		c.realm = realm
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithMetrics records every attempt and retry.
func WithMetrics(metrics Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// NewClient creates a transport for baseURL. tokenManager may be nil, in
// which case no Authorization header is sent.
func NewClient(baseURL string, tokenManager auth.TokenManager, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = constants.DefaultBaseURL
	}

	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		parsed = &url.URL{Scheme: "https", Host: baseURL}
	}

	client := &Client{
		baseURL:      parsed,
		tokenManager: tokenManager,
		userAgent:    constants.DefaultUserAgent,
		timeout:      constants.DefaultHTTPTimeout,
		policy:       DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(client)
	}

	client.policy = client.policy.normalized()

	var roundTripper http.RoundTripper = cleanhttp.DefaultPooledTransport()
	if client.metrics != nil {
		roundTripper = &instrumentedTransport{base: roundTripper, metrics: client.metrics, basePath: parsed.Path}
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: roundTripper, Timeout: client.timeout}
	retryClient.Logger = nil
	retryClient.RetryMax = client.policy.MaxAttempts - 1
	retryClient.RetryWaitMin = client.policy.BaseDelay
	retryClient.RetryWaitMax = client.policy.MaxDelay
	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = client.backoff
	retryClient.ErrorHandler = giveUp
	retryClient.RequestLogHook = client.logAttempt

	client.retry = retryClient

	return client
}

// Policy returns the effective retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.policy
}

// Do executes req. Non-2xx responses are returned together with a
// *quickbase.TransportError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	retryReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method":  req.Method,
			"url":     retryReq.URL.String(),
			"headers": maskHeaders(retryReq.Header),
		})
	}

	start := time.Now()

	httpResp, err := c.retry.Do(retryReq)
	if err != nil {
		return nil, c.classify(ctx, req, err)
	}

	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.transportError(req, quickbase.KindCancelled, httpResp.StatusCode, ctx.Err())
		}

		return nil, c.transportError(req, quickbase.KindNetwork, httpResp.StatusCode, fmt.Errorf("reading response body: %w", err))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		method:     req.Method,
		path:       "/" + strings.TrimPrefix(req.Path, "/"),
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
			"bytes":    len(body),
		})
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		transportErr := c.transportError(req, quickbase.KindStatus, resp.StatusCode, nil)
		transportErr.API = parseAPIError(body)

		return resp, transportErr
	}

	if !req.Raw && len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		return resp, c.transportError(req, quickbase.KindDecode, resp.StatusCode, ErrMalformedBody)
	}

	return resp, nil
}

// Execute runs a request and returns the JSON body.
func (c *Client) Execute(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	resp, err := c.Do(ctx, &Request{Method: method, Path: path, Query: query, Body: body})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(resp.Body), nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request. Quickbase deletes records with a body,
// so DeleteWithBody is provided as well.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// DeleteWithBody performs a DELETE request carrying a JSON body.
func (c *Client) DeleteWithBody(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Body: body})
}

func (c *Client) buildRequest(ctx context.Context, req *Request) (*retryablehttp.Request, error) {
	target := c.resolve(req.Path, req.Query)

	var payload []byte

	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		payload = encoded
	}

	var rawBody interface{}
	if payload != nil {
		rawBody = payload
	}

	retryReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	retryReq.Header.Set("Accept", "application/json")
	retryReq.Header.Set("User-Agent", c.userAgent)

	if payload != nil {
		retryReq.Header.Set("Content-Type", "application/json")
	}

	if c.realm != "" {
		retryReq.Header.Set(constants.RealmHeader, c.realm)
	}

	if c.tokenManager != nil {
		token, err := c.tokenManager.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting token: %w", err)
		}

		retryReq.Header.Set("Authorization", token)
	}

	for key, value := range req.Headers {
		retryReq.Header.Set(key, value)
	}

	return retryReq, nil
}

// RelativePath turns a URL returned by the API, such as a file attachment
// link, into a path this client can request. Relative paths pass through.
func (c *Client) RelativePath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return rawURL
	}

	return strings.TrimPrefix(parsed.Path, c.baseURL.Path)
}

func (c *Client) resolve(path string, query url.Values) string {
	target := *c.baseURL
	target.Path = c.baseURL.Path + "/" + strings.TrimPrefix(path, "/")

	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	return target.String()
}

// logAttempt implements retryablehttp.RequestLogHook.
func (c *Client) logAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if attempt == 0 {
		return
	}

	if c.metrics != nil {
		c.metrics.ObserveRetry(req.Method, Endpoint(c.baseURL.Path, req.URL.Path))
	}

	if c.logger != nil {
		c.logger.Warn("Retrying HTTP request", map[string]interface{}{
			"method":       req.Method,
			"path":         req.URL.Path,
			"attempt":      attempt + 1,
			"max_attempts": c.policy.MaxAttempts,
		})
	}
}

// attemptFailure carries the last attempt out of the retry loop.
type attemptFailure struct {
	status   int
	body     []byte
	attempts int
	cause    error
}

func (f *attemptFailure) Error() string {
	if f.cause != nil {
		return f.cause.Error()
	}

	return fmt.Sprintf("status %d", f.status)
}

func (f *attemptFailure) Unwrap() error {
	return f.cause
}

// giveUp implements retryablehttp.ErrorHandler. It owns resp.Body.
func giveUp(resp *http.Response, err error, numTries int) (*http.Response, error) {
	failure := &attemptFailure{attempts: numTries, cause: err}

	if resp != nil {
		failure.status = resp.StatusCode
		failure.body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		_ = resp.Body.Close()
	}

	return nil, failure
}

func (c *Client) classify(ctx context.Context, req *Request, err error) *quickbase.TransportError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		transportErr := c.transportError(req, quickbase.KindCancelled, 0, ctxErr)

		failure := &attemptFailure{}
		if errors.As(err, &failure) {
			transportErr.Attempts = failure.attempts
			transportErr.StatusCode = failure.status
		}

		return transportErr
	}

	failure := &attemptFailure{}
	if !errors.As(err, &failure) {
		return c.transportError(req, quickbase.KindNetwork, 0, err)
	}

	kind := quickbase.KindNetwork
	if failure.attempts >= c.policy.MaxAttempts && retryable(failure.status, failure.cause) {
		kind = quickbase.KindRetryExhausted
	}

	transportErr := c.transportError(req, kind, failure.status, failure.cause)
	transportErr.Attempts = failure.attempts

	if failure.status != 0 {
		transportErr.API = parseAPIError(failure.body)
	}

	return transportErr
}

func (c *Client) transportError(req *Request, kind quickbase.ErrorKind, status int, cause error) *quickbase.TransportError {
	return &quickbase.TransportError{
		Kind:       kind,
		Method:     req.Method,
		Path:       "/" + strings.TrimPrefix(req.Path, "/"),
		StatusCode: status,
		Attempts:   1,
		Err:        cause,
	}
}

func parseAPIError(body []byte) *quickbase.APIError {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	var apiErr quickbase.APIError

	err := json.Unmarshal(trimmed, &apiErr)
	if err == nil && apiErr.Message != "" {
		return &apiErr
	}

	if len(trimmed) > maxErrorBodyLength {
		trimmed = trimmed[:maxErrorBodyLength]
	}

	return &quickbase.APIError{Message: string(trimmed)}
}

func maskHeaders(headers http.Header) map[string]string {
	masked := make(map[string]string, len(headers))

	for key := range headers {
		if strings.EqualFold(key, "Authorization") {
			masked[key] = auth.Mask(headers.Get(key))

			continue
		}

		masked[key] = headers.Get(key)
	}

	return masked
}
