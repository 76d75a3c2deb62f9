// Package oci hosts a Monitoring service client whose calls run under a retry policy.
package oci

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"go.uber.org/zap"
	"oci-call-executor/pkg/retry"
	"oci-call-executor/pkg/token"
)

var (
	// ErrInvalidArgument marks caller errors detected before any request is sent.
	// Such errors are never retried.
	ErrInvalidArgument = errors.New("oci: invalid argument")

	errMissingCompartmentID = fmt.Errorf("%w: compartment ID is required", ErrInvalidArgument)
	errMissingProvider      = errors.New("oci: configuration provider is required")
	errMissingAPI           = errors.New("oci: monitoring transport is required")
	errNilClient            = errors.New("oci: client receiver is nil")
)

// Config identifies the tenancy scope and region for the client.
type Config struct {
	CompartmentID string
	Region        string
}

// Client issues Monitoring API calls. Every HTTP exchange runs through a retry.Executor under
// the effective policy: the per-call override when given, otherwise the client default. A
// client built without WithDefaultPolicy makes a single attempt per call.
type Client struct {
	api           monitoringAPI
	compartmentID string
	policy        *retry.Policy
	executor      *retry.Executor
	issuer        token.Issuer
	logger        *zap.Logger
	now           func() time.Time
}

// Option customises a Client during construction.
type Option func(*Client)

// WithDefaultPolicy sets the policy applied when a call carries no override.
func WithDefaultPolicy(policy *retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithExecutor replaces the executor, for example to install an attempt observer.
func WithExecutor(executor *retry.Executor) Option {
	return func(c *Client) {
		if executor != nil {
			c.executor = executor
		}
	}
}

// WithIssuer replaces the idempotency token issuer.
func WithIssuer(issuer token.Issuer) Option {
	return func(c *Client) {
		if issuer != nil {
			c.issuer = issuer
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used to compute metric query windows.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a Client backed by the OCI Go SDK using provider to sign requests.
func NewClient(provider common.ConfigurationProvider, cfg Config, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, errMissingProvider
	}

	if strings.TrimSpace(cfg.CompartmentID) == "" {
		return nil, errMissingCompartmentID
	}

	monitoringClient, err := monitoring.NewMonitoringClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("create monitoring client: %w", err)
	}

	if region := strings.TrimSpace(cfg.Region); region != "" {
		monitoringClient.SetRegion(region)
	}

	return newClient(&sdkMonitoringClient{client: &monitoringClient}, cfg.CompartmentID, opts...)
}

// NewInstancePrincipalClient constructs a Client authenticated as the running instance.
func NewInstancePrincipalClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.CompartmentID) == "" {
		return nil, errMissingCompartmentID
	}

	provider, err := auth.InstancePrincipalConfigurationProvider()
	if err != nil {
		return nil, fmt.Errorf("build instance principal provider: %w", err)
	}

	return NewClient(provider, cfg, opts...)
}

func newClient(api monitoringAPI, compartmentID string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errMissingAPI
	}

	trimmed := strings.TrimSpace(compartmentID)
	if trimmed == "" {
		return nil, errMissingCompartmentID
	}

	client := &Client{
		api:           api,
		compartmentID: trimmed,
		policy:        nil,
		executor:      retry.NewExecutor(),
		issuer:        token.NewIssuer(),
		logger:        zap.NewNop(),
		now:           time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// DefaultPolicy returns the client-level policy, which may be nil.
func (c *Client) DefaultPolicy() *retry.Policy {
	if c == nil {
		return nil
	}

	return c.policy
}

// CallOption adjusts a single call.
type CallOption func(*callConfig)

type callConfig struct {
	policy     *retry.Policy
	overridden bool
	retryToken string
}

// WithRetryPolicy overrides the client default for one call. A nil policy is an explicit
// request for a single attempt and is distinct from passing no override at all.
func WithRetryPolicy(policy *retry.Policy) CallOption {
	return func(cfg *callConfig) {
		cfg.policy = policy
		cfg.overridden = true
	}
}

// WithRetryToken supplies the idempotency token for a create call. It always takes precedence
// over an issued token.
func WithRetryToken(value string) CallOption {
	return func(cfg *callConfig) {
		cfg.retryToken = value
	}
}

func (c *Client) resolveCall(opts []CallOption) (callConfig, *retry.Policy) {
	var cfg callConfig

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.overridden {
		return cfg, cfg.policy
	}

	return cfg, c.policy
}

func (c *Client) compartmentOrDefault(compartmentID string) string {
	trimmed := strings.TrimSpace(compartmentID)
	if trimmed == "" {
		return c.compartmentID
	}

	return trimmed
}

func invalidArgument(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, message)
}
