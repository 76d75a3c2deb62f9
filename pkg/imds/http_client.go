package imds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"oci-call-executor/pkg/retry"
)

const (
	defaultHTTPClientTimeout = 2 * time.Second
	defaultMaxAttempts       = 3
	defaultBackoff           = 200 * time.Millisecond
	metadataAuthorization    = "Bearer Oracle"
)

var (
	// ErrUnexpectedStatus matches every non-200 metadata response.
	ErrUnexpectedStatus = errors.New("imds: unexpected status code")

	errRequestFailed = errors.New("imds: request execution failed")
)

type clientConfig struct {
	baseURL    string
	maxAttempt int
	backoff    time.Duration
	executor   *retry.Executor
}

// Option mutates the HTTP client configuration during construction.
type Option func(*clientConfig)

// WithBaseURL overrides the metadata service base URL used for requests.
func WithBaseURL(baseURL string) Option {
	return func(cfg *clientConfig) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed == "" {
			return
		}

		cfg.baseURL = trimmed
	}
}

// WithMaxAttempts overrides the retry budget for metadata requests.
func WithMaxAttempts(attempts int) Option {
	return func(cfg *clientConfig) {
		if attempts > 0 {
			cfg.maxAttempt = attempts
		}
	}
}

// WithBackoff overrides the fixed delay between retry attempts.
func WithBackoff(delay time.Duration) Option {
	return func(cfg *clientConfig) {
		if delay > 0 {
			cfg.backoff = delay
		}
	}
}

// WithExecutor runs metadata requests through executor, typically one carrying an observer.
func WithExecutor(executor *retry.Executor) Option {
	return func(cfg *clientConfig) {
		if executor != nil {
			cfg.executor = executor
		}
	}
}

// NewClient constructs an HTTP-backed IMDS client. A nil httpClient uses a
// private instance with a conservative timeout suitable for link-local access.
//
//nolint:ireturn // callers depend on the Client abstraction for substitution.
func NewClient(httpClient *http.Client, opts ...Option) Client {
	cfg := clientConfig{
		baseURL:    DefaultEndpoint,
		maxAttempt: defaultMaxAttempts,
		backoff:    defaultBackoff,
		executor:   nil,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&cfg)
	}

	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       defaultHTTPClientTimeout,
			Transport:     http.DefaultTransport,
			CheckRedirect: http.DefaultClient.CheckRedirect,
			Jar:           http.DefaultClient.Jar,
		}
	}

	if cfg.executor == nil {
		cfg.executor = retry.NewExecutor()
	}

	return &HTTPClient{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.baseURL, "/"),
		executor: cfg.executor,
		policy: retry.MustPolicy(
			retry.WithMaxAttempts(cfg.maxAttempt),
			retry.WithShouldRetry(shouldRetry),
			retry.WithDelay(retry.FixedDelay(cfg.backoff)),
		),
	}
}

// HTTPClient issues metadata requests against the OCI IMDSv2 service.
type HTTPClient struct {
	http     *http.Client
	baseURL  string
	executor *retry.Executor
	policy   *retry.Policy
}

// Policy returns the retry policy applied to every metadata request.
func (c *HTTPClient) Policy() *retry.Policy {
	return c.policy
}

// Region returns the region identifier for the running instance.
func (c *HTTPClient) Region(ctx context.Context) (string, error) {
	return c.getText(ctx, "region")
}

// CanonicalRegion returns the canonical region name for the running instance.
func (c *HTTPClient) CanonicalRegion(ctx context.Context) (string, error) {
	var info regionInfo

	err := c.getJSON(ctx, "regionInfo", &info)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(info.CanonicalRegionName), nil
}

// InstanceID returns the OCID for the running instance.
func (c *HTTPClient) InstanceID(ctx context.Context) (string, error) {
	return c.getText(ctx, "id")
}

// CompartmentID returns the compartment OCID for the running instance.
func (c *HTTPClient) CompartmentID(ctx context.Context) (string, error) {
	return c.getText(ctx, "compartmentId")
}

func (c *HTTPClient) getText(ctx context.Context, resource string) (string, error) {
	payload, err := c.fetch(ctx, resource)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(payload)), nil
}

func (c *HTTPClient) getJSON(ctx context.Context, resource string, out any) error {
	payload, err := c.fetch(ctx, resource)
	if err != nil {
		return err
	}

	decodeErr := json.Unmarshal(payload, out)
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", resource, decodeErr)
	}

	return nil
}

func (c *HTTPClient) fetch(ctx context.Context, resource string) ([]byte, error) {
	ctx = retry.WithOperationName(ctx, "imds/"+resource)

	payload, err := retry.Call(ctx, c.executor, c.policy, func(ctx context.Context) ([]byte, error) {
		return c.tryFetch(ctx, resource)
	})
	if err != nil {
		return nil, fmt.Errorf("imds %s: %w", resource, err)
	}

	return payload, nil
}

func (c *HTTPClient) tryFetch(ctx context.Context, resource string) ([]byte, error) {
	req, err := metadataRequest(ctx, http.MethodGet, c.resourceURL(resource))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", resource, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", errRequestFailed, resource, ctxErr)
		}

		return nil, &retry.TransportError{
			Op:  "GET " + resource,
			Err: fmt.Errorf("%w: %w", errRequestFailed, err),
		}
	}

	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()

	if readErr != nil {
		if closeErr != nil {
			wrap := fmt.Errorf("close response body: %w", closeErr)
			readErr = errors.Join(readErr, wrap)
		}

		return nil, fmt.Errorf("read %s response: %w", resource, readErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("close %s response body: %w", resource, closeErr)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	return nil, &retry.RemoteError{
		StatusCode:   resp.StatusCode,
		Code:         http.StatusText(resp.StatusCode),
		Message:      strings.TrimSpace(string(body)),
		OpcRequestID: resp.Header.Get("Opc-Request-Id"),
		Err:          ErrUnexpectedStatus,
	}
}

func (c *HTTPClient) resourceURL(resource string) string {
	trimmed := strings.TrimPrefix(resource, "/")
	base := strings.TrimRight(c.baseURL, "/")

	return fmt.Sprintf("%s/instance/%s", base, trimmed)
}

func shouldRetry(err error, _ int, _ time.Duration) bool {
	if retry.IsTransport(err) {
		return true
	}

	status, ok := retry.StatusCode(err)

	return ok && isRetryable(status)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return status >= 500 && status != http.StatusNotImplemented
	}
}

func metadataRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}

	req.Header.Set("Authorization", metadataAuthorization)

	return req, nil
}

type regionInfo struct {
	CanonicalRegionName string `json:"canonicalRegionName"`
}
