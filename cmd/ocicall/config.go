package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"oci-call-executor/pkg/retry"
)

const (
	envMaxAttempts   = "OCICALL_MAX_ATTEMPTS"
	envInitialDelay  = "OCICALL_INITIAL_DELAY"
	envMaxDelay      = "OCICALL_MAX_DELAY"
	envMaxElapsed    = "OCICALL_MAX_ELAPSED"
	envCompartmentID = "OCI_COMPARTMENT_ID"
	envInstanceID    = "OCI_INSTANCE_ID"
	envRegion        = "OCI_REGION"
	envAuth          = "OCI_AUTH"
	envIMDSEndpoint  = "OCICALL_IMDS_ENDPOINT"

	authInstancePrincipal = "instance_principal"
	authConfigFile        = "config_file"

	defaultMaxAttempts     = 5
	defaultInitialDelay    = time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultJitter          = 0.2
	defaultIMDSMaxAttempts = 3
	defaultIMDSBackoff     = 200 * time.Millisecond
	defaultProfile         = "DEFAULT"
)

var errUnsupportedAuth = errors.New("unsupported auth mode")

type runtimeConfig struct {
	Retry retryConfig
	OCI   ociConfig
	IMDS  imdsConfig
}

type retryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	MaxElapsed    time.Duration
	RetryStatuses []int
}

type ociConfig struct {
	Auth          string
	ConfigFile    string
	Profile       string
	Region        string
	CompartmentID string
	InstanceID    string
}

type imdsConfig struct {
	Endpoint    string
	MaxAttempts int
	Backoff     time.Duration
}

type fileConfig struct {
	Retry retryFileConfig `yaml:"retry"`
	OCI   ociFileConfig   `yaml:"oci"`
	IMDS  imdsFileConfig  `yaml:"imds"`
}

type retryFileConfig struct {
	MaxAttempts   *int           `yaml:"maxAttempts"`
	InitialDelay  *time.Duration `yaml:"initialDelay"`
	MaxDelay      *time.Duration `yaml:"maxDelay"`
	Multiplier    *float64       `yaml:"multiplier"`
	Jitter        *float64       `yaml:"jitter"`
	MaxElapsed    *time.Duration `yaml:"maxElapsed"`
	RetryStatuses []int          `yaml:"retryStatuses"`
}

type ociFileConfig struct {
	Auth          *string `yaml:"auth"`
	ConfigFile    *string `yaml:"configFile"`
	Profile       *string `yaml:"profile"`
	Region        *string `yaml:"region"`
	CompartmentID *string `yaml:"compartmentId"`
	InstanceID    *string `yaml:"instanceId"`
}

type imdsFileConfig struct {
	Endpoint    *string        `yaml:"endpoint"`
	MaxAttempts *int           `yaml:"maxAttempts"`
	Backoff     *time.Duration `yaml:"backoff"`
}

func defaultRuntimeConfig() runtimeConfig {
	var cfg runtimeConfig

	cfg.Retry.MaxAttempts = defaultMaxAttempts
	cfg.Retry.InitialDelay = defaultInitialDelay
	cfg.Retry.MaxDelay = defaultMaxDelay
	cfg.Retry.Multiplier = defaultMultiplier
	cfg.Retry.Jitter = defaultJitter

	cfg.OCI.Auth = authInstancePrincipal
	cfg.OCI.Profile = defaultProfile

	cfg.IMDS.MaxAttempts = defaultIMDSMaxAttempts
	cfg.IMDS.Backoff = defaultIMDSBackoff

	return cfg
}

func loadConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return finalizeConfig(cfg)
	}

	data, err := os.ReadFile(trimmed)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return runtimeConfig{}, fmt.Errorf("read config file %q: %w", trimmed, err)
		}
	} else {
		var fileCfg fileConfig

		err := yaml.Unmarshal(data, &fileCfg)
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("decode config file %q: %w", trimmed, err)
		}

		mergeRetryConfig(&cfg.Retry, fileCfg.Retry)
		mergeOCIConfig(&cfg.OCI, fileCfg.OCI)
		mergeIMDSConfig(&cfg.IMDS, fileCfg.IMDS)
	}

	return finalizeConfig(cfg)
}

func finalizeConfig(cfg runtimeConfig) (runtimeConfig, error) {
	applyEnvOverrides(&cfg)

	cfg.OCI.Auth = strings.ToLower(cfg.OCI.Auth)

	switch cfg.OCI.Auth {
	case authInstancePrincipal, authConfigFile:
	default:
		return runtimeConfig{}, fmt.Errorf(
			"%w: %q (supported: %s, %s)",
			errUnsupportedAuth,
			cfg.OCI.Auth,
			authInstancePrincipal,
			authConfigFile,
		)
	}

	return cfg, nil
}

func mergeRetryConfig(dst *retryConfig, src retryFileConfig) {
	assignInt(&dst.MaxAttempts, src.MaxAttempts)
	assignDuration(&dst.InitialDelay, src.InitialDelay)
	assignDuration(&dst.MaxDelay, src.MaxDelay)
	assignFloat(&dst.Multiplier, src.Multiplier)
	assignFloat(&dst.Jitter, src.Jitter)
	assignDuration(&dst.MaxElapsed, src.MaxElapsed)

	if len(src.RetryStatuses) > 0 {
		dst.RetryStatuses = append([]int(nil), src.RetryStatuses...)
	}
}

func mergeOCIConfig(dst *ociConfig, src ociFileConfig) {
	assignString(&dst.Auth, src.Auth)
	assignString(&dst.ConfigFile, src.ConfigFile)
	assignString(&dst.Profile, src.Profile)
	assignString(&dst.Region, src.Region)
	assignString(&dst.CompartmentID, src.CompartmentID)
	assignString(&dst.InstanceID, src.InstanceID)
}

func mergeIMDSConfig(dst *imdsConfig, src imdsFileConfig) {
	assignString(&dst.Endpoint, src.Endpoint)
	assignInt(&dst.MaxAttempts, src.MaxAttempts)
	assignDuration(&dst.Backoff, src.Backoff)
}

func applyEnvOverrides(cfg *runtimeConfig) {
	cfg.Retry.MaxAttempts = envInt(envMaxAttempts, cfg.Retry.MaxAttempts)
	cfg.Retry.InitialDelay = envDuration(envInitialDelay, cfg.Retry.InitialDelay)
	cfg.Retry.MaxDelay = envDuration(envMaxDelay, cfg.Retry.MaxDelay)
	cfg.Retry.MaxElapsed = envDuration(envMaxElapsed, cfg.Retry.MaxElapsed)
	cfg.OCI.CompartmentID = envString(envCompartmentID, cfg.OCI.CompartmentID)
	cfg.OCI.InstanceID = envString(envInstanceID, cfg.OCI.InstanceID)
	cfg.OCI.Region = envString(envRegion, cfg.OCI.Region)
	cfg.OCI.Auth = envString(envAuth, cfg.OCI.Auth)
	cfg.IMDS.Endpoint = envString(envIMDSEndpoint, cfg.IMDS.Endpoint)

	if cfg.OCI.Auth == "" {
		cfg.OCI.Auth = authInstancePrincipal
	}

	if cfg.OCI.Profile == "" {
		cfg.OCI.Profile = defaultProfile
	}

	if cfg.IMDS.MaxAttempts <= 0 {
		cfg.IMDS.MaxAttempts = defaultIMDSMaxAttempts
	}

	if cfg.IMDS.Backoff <= 0 {
		cfg.IMDS.Backoff = defaultIMDSBackoff
	}
}

// policy builds the client default retry policy. An invalid attempt cap is reported as
// retry.ErrInvalidConfiguration.
func (c retryConfig) policy() (*retry.Policy, error) {
	var predicate retry.ShouldRetryFunc = retry.DefaultShouldRetry

	if len(c.RetryStatuses) > 0 {
		predicate = retry.AnyOf(
			retry.RetryOnTransportError(),
			retry.RetryOnStatus(c.RetryStatuses...),
		)
	}

	if c.MaxElapsed > 0 {
		predicate = retry.WithinElapsed(c.MaxElapsed, predicate)
	}

	policy, err := retry.NewPolicy(
		retry.WithMaxAttempts(c.MaxAttempts),
		retry.WithShouldRetry(predicate),
		retry.WithDelay(retry.ExponentialDelay(
			retry.WithInitialDelay(c.InitialDelay),
			retry.WithMaxDelay(c.MaxDelay),
			retry.WithMultiplier(c.Multiplier),
			retry.WithJitter(c.Jitter),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("build retry policy: %w", err)
	}

	return policy, nil
}

var lookupEnv = os.LookupEnv //nolint:gochecknoglobals // overridden in tests

func assignFloat(target *float64, value *float64) {
	if value != nil {
		*target = *value
	}
}

func assignDuration(target *time.Duration, value *time.Duration) {
	if value != nil {
		*target = *value
	}
}

func assignInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

func assignString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	duration, err := time.ParseDuration(trimmed)
	if err != nil {
		return fallback
	}

	return duration
}

func envInt(key string, fallback int) int {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func envString(key, fallback string) string {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}

	return trimmed
}
