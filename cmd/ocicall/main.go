// Package main wires the ocicall CLI entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"oci-call-executor/internal/attemptlog"
	"oci-call-executor/internal/buildinfo"
	"oci-call-executor/pkg/http/metrics"
	"oci-call-executor/pkg/imds"
	"oci-call-executor/pkg/oci"
	"oci-call-executor/pkg/retry"
)

const (
	defaultConfigPath = "/etc/ocicall/config.yaml"
	defaultLogLevel   = "info"
	defaultSeverity   = "CRITICAL"
	defaultNamespace  = "oci_computeagent"

	opP95         = "p95"
	opListAlarms  = "list-alarms"
	opGetAlarm    = "get-alarm"
	opCreateAlarm = "create-alarm"

	metricsToStderr = "-"

	exitCodeSuccess      = 0
	exitCodeRuntimeError = 1
	exitCodeParseError   = 2
)

func main() {
	code := run(context.Background(), os.Args[1:], defaultRunDeps(), os.Stdout, os.Stderr)
	if code != 0 {
		exitProcess(code)
	}
}

var exitProcess = os.Exit //nolint:gochecknoglobals // replaceable for tests

// monitoringClient is the subset of *oci.Client the CLI drives.
type monitoringClient interface {
	QueryP95CPU(
		ctx context.Context,
		instanceOCID string,
		last7d bool,
		opts ...oci.CallOption,
	) (float32, error)
	ListAlarms(ctx context.Context, input oci.ListAlarmsInput, opts ...oci.CallOption) ([]oci.AlarmSummary, error)
	GetAlarm(ctx context.Context, alarmID string, opts ...oci.CallOption) (oci.Alarm, error)
	CreateAlarm(ctx context.Context, input oci.CreateAlarmInput, opts ...oci.CallOption) (oci.CreatedAlarm, error)
}

type runDeps struct {
	newLogger        func(level string) (*zap.Logger, error)
	loadConfig       func(path string) (runtimeConfig, error)
	newIMDS          func(cfg imdsConfig, executor *retry.Executor) imds.Client
	newClient        func(cfg ociConfig, opts ...oci.Option) (monitoringClient, error)
	currentBuildInfo func() buildinfo.Info
	now              func() time.Time
}

var (
	errInvalidLogLevel   = errors.New("invalid log level")
	errUnsupportedOp     = errors.New("unsupported operation")
	errMissingArgument   = errors.New("missing required argument")
	errCompartmentLookup = errors.New("compartment OCID unavailable")
)

func defaultRunDeps() runDeps {
	return runDeps{
		newLogger:        newLogger,
		loadConfig:       loadConfig,
		newIMDS:          defaultIMDSFactory,
		newClient:        defaultClientFactory,
		currentBuildInfo: buildinfo.Current,
		now:              time.Now,
	}
}

//nolint:cyclop,funlen // linear wiring of the CLI stages.
func run(ctx context.Context, args []string, deps runDeps, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		return writeError(stderr, err, exitCodeParseError)
	}

	info := deps.currentBuildInfo()

	if opts.version {
		_, _ = fmt.Fprintln(stdout, info.String())

		return exitCodeSuccess
	}

	cfg, err := deps.loadConfig(opts.configPath)
	if err != nil {
		return writeError(
			stderr,
			fmt.Errorf("failed to load configuration: %w", err),
			exitCodeRuntimeError,
		)
	}

	logger, err := deps.newLogger(opts.logLevel)
	if err != nil {
		return writeError(
			stderr,
			fmt.Errorf("failed to configure logger: %w", err),
			exitCodeRuntimeError,
		)
	}

	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(
		"starting ocicall",
		zap.String("version", info.Version),
		zap.String("commit", info.GitCommit),
		zap.String("buildDate", info.BuildDate),
		zap.String("configPath", opts.configPath),
		zap.String("operation", opts.operation),
		zap.String("auth", cfg.OCI.Auth),
	)

	policy, err := cfg.Retry.policy()
	if err != nil {
		logger.Error("invalid retry configuration", zap.Error(err))

		return exitCodeRuntimeError
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	exporter := metrics.NewExporter()
	exporter.SetAuthMode(cfg.OCI.Auth)

	executor := retry.NewExecutor(retry.WithObserver(attemptlog.NewObserver(logger, exporter)))

	defer func() {
		writeErr := writeMetrics(opts.metricsPath, exporter, stderr)
		if writeErr != nil {
			logger.Warn("failed to write metrics", zap.Error(writeErr))
		}
	}()

	imdsClient := deps.newIMDS(cfg.IMDS, executor)

	err = resolveTargets(ctx, &cfg, opts, imdsClient)
	if err != nil {
		logger.Error("failed to resolve call targets", zap.Error(err))

		return exitCodeRuntimeError
	}

	client, err := deps.newClient(
		cfg.OCI,
		oci.WithDefaultPolicy(policy),
		oci.WithExecutor(executor),
		oci.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to build monitoring client", zap.Error(err))

		return exitCodeRuntimeError
	}

	result, err := executeOperation(ctx, client, opts, cfg, exporter, deps.now)
	if err != nil {
		logger.Error("operation failed", zap.String("operation", opts.operation), zap.Error(err))

		return exitCodeRuntimeError
	}

	err = writeJSON(stdout, result)
	if err != nil {
		logger.Error("failed to write result", zap.Error(err))

		return exitCodeRuntimeError
	}

	return exitCodeSuccess
}

func writeError(dst io.Writer, err error, code int) int {
	if err == nil {
		return code
	}

	_, _ = fmt.Fprintf(dst, "%v\n", err)

	return code
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = defaultLogLevel
	}

	cfg := zap.NewProductionConfig()

	err := cfg.Level.UnmarshalText([]byte(level))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidLogLevel, err)
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return logger, nil
}

type options struct {
	configPath   string
	logLevel     string
	operation    string
	instanceID   string
	last7d       bool
	alarmID      string
	alarmName    string
	query        string
	namespace    string
	severity     string
	destinations string
	retryToken   string
	noRetry      bool
	timeout      time.Duration
	metricsPath  string
	version      bool
}

//nolint:funlen // flag declarations.
func parseArgs(args []string) (options, error) {
	var opts options

	flagSet := flag.NewFlagSet("ocicall", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", defaultConfigPath, "Path to the YAML configuration file")
	flagSet.StringVar(&opts.logLevel, "log-level", defaultLogLevel, "Structured log level (debug, info, warn, error)")
	flagSet.StringVar(
		&opts.operation,
		"op",
		opP95,
		"Operation to run (p95, list-alarms, get-alarm, create-alarm)",
	)
	flagSet.StringVar(&opts.instanceID, "instance", "", "Instance OCID for p95 (defaults to config or IMDS)")
	flagSet.BoolVar(&opts.last7d, "last7d", false, "Query the trailing seven days instead of one")
	flagSet.StringVar(&opts.alarmID, "alarm-id", "", "Alarm OCID for get-alarm")
	flagSet.StringVar(&opts.alarmName, "alarm-name", "", "Display name for create-alarm, filter for list-alarms")
	flagSet.StringVar(&opts.query, "query", "", "MQL expression for create-alarm")
	flagSet.StringVar(&opts.namespace, "namespace", defaultNamespace, "Metric namespace for create-alarm")
	flagSet.StringVar(&opts.severity, "severity", defaultSeverity, "Alarm severity for create-alarm")
	flagSet.StringVar(&opts.destinations, "destinations", "", "Comma-separated topic OCIDs for create-alarm")
	flagSet.StringVar(&opts.retryToken, "retry-token", "", "Idempotency token for create-alarm")
	flagSet.BoolVar(&opts.noRetry, "no-retry", false, "Make a single attempt regardless of configuration")
	flagSet.DurationVar(&opts.timeout, "timeout", 0, "Overall deadline for the operation (0 disables)")
	flagSet.StringVar(&opts.metricsPath, "metrics", "", "Write OpenMetrics output to this path ('-' for stderr)")
	flagSet.BoolVar(&opts.version, "version", false, "Print build information and exit")

	err := flagSet.Parse(args)
	if err != nil {
		return options{}, fmt.Errorf("parse CLI arguments: %w", err)
	}

	opts.operation = strings.ToLower(strings.TrimSpace(opts.operation))
	if opts.operation == "" {
		opts.operation = opP95
	}

	if !isValidOperation(opts.operation) {
		return options{}, fmt.Errorf(
			"%w: %q (supported: %s, %s, %s, %s)",
			errUnsupportedOp,
			opts.operation,
			opP95,
			opListAlarms,
			opGetAlarm,
			opCreateAlarm,
		)
	}

	opts.logLevel = strings.TrimSpace(opts.logLevel)
	if opts.logLevel == "" {
		opts.logLevel = defaultLogLevel
	}

	opts.configPath = strings.TrimSpace(opts.configPath)
	if opts.configPath == "" {
		opts.configPath = defaultConfigPath
	}

	if opts.timeout < 0 {
		opts.timeout = 0
	}

	return opts, validateOperationArgs(opts)
}

func validateOperationArgs(opts options) error {
	switch opts.operation {
	case opGetAlarm:
		if strings.TrimSpace(opts.alarmID) == "" {
			return fmt.Errorf("%w: -alarm-id is required for %s", errMissingArgument, opGetAlarm)
		}
	case opCreateAlarm:
		switch {
		case strings.TrimSpace(opts.alarmName) == "":
			return fmt.Errorf("%w: -alarm-name is required for %s", errMissingArgument, opCreateAlarm)
		case strings.TrimSpace(opts.query) == "":
			return fmt.Errorf("%w: -query is required for %s", errMissingArgument, opCreateAlarm)
		case len(splitList(opts.destinations)) == 0:
			return fmt.Errorf("%w: -destinations is required for %s", errMissingArgument, opCreateAlarm)
		}
	}

	return nil
}

func isValidOperation(operation string) bool {
	switch operation {
	case opP95, opListAlarms, opGetAlarm, opCreateAlarm:
		return true
	default:
		return false
	}
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}

	return items
}

// resolveTargets fills call targets that neither the flags nor the configuration supply from IMDS.
func resolveTargets(
	ctx context.Context,
	cfg *runtimeConfig,
	opts options,
	client imds.Client,
) error {
	if strings.TrimSpace(cfg.OCI.CompartmentID) == "" {
		if client == nil {
			return errCompartmentLookup
		}

		compartmentID, err := client.CompartmentID(ctx)
		if err != nil {
			return fmt.Errorf("lookup compartment ocid: %w", err)
		}

		cfg.OCI.CompartmentID = strings.TrimSpace(compartmentID)
	}

	err := resolveRegion(ctx, cfg, client)
	if err != nil {
		return err
	}

	if instanceID := strings.TrimSpace(opts.instanceID); instanceID != "" {
		cfg.OCI.InstanceID = instanceID
	}

	if opts.operation != opP95 || strings.TrimSpace(cfg.OCI.InstanceID) != "" {
		return nil
	}

	if client == nil {
		return fmt.Errorf("%w: instance OCID", errMissingArgument)
	}

	instanceID, err := client.InstanceID(ctx)
	if err != nil {
		return fmt.Errorf("lookup instance ocid: %w", err)
	}

	cfg.OCI.InstanceID = strings.TrimSpace(instanceID)

	return nil
}

// resolveRegion asks IMDS for the region only under instance-principal auth. Config-file auth
// takes its region from the profile.
func resolveRegion(ctx context.Context, cfg *runtimeConfig, client imds.Client) error {
	if strings.TrimSpace(cfg.OCI.Region) != "" || cfg.OCI.Auth != authInstancePrincipal || client == nil {
		return nil
	}

	region, err := client.CanonicalRegion(ctx)
	if err != nil {
		return fmt.Errorf("lookup region: %w", err)
	}

	if strings.TrimSpace(region) == "" {
		region, err = client.Region(ctx)
		if err != nil {
			return fmt.Errorf("lookup region: %w", err)
		}
	}

	cfg.OCI.Region = strings.TrimSpace(region)

	return nil
}

//nolint:ireturn // returns interface to support substitutable IMDS clients
func defaultIMDSFactory(cfg imdsConfig, executor *retry.Executor) imds.Client {
	opts := []imds.Option{
		imds.WithMaxAttempts(cfg.MaxAttempts),
		imds.WithBackoff(cfg.Backoff),
		imds.WithExecutor(executor),
	}

	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, imds.WithBaseURL(endpoint))
	}

	return imds.NewClient(nil, opts...)
}

func writeMetrics(path string, exporter *metrics.Exporter, stderr io.Writer) error {
	switch strings.TrimSpace(path) {
	case "":
		return nil
	case metricsToStderr:
		_, err := exporter.WriteTo(stderr)

		return err
	}

	data, err := exporter.Render()
	if err != nil {
		return err
	}

	err = os.WriteFile(strings.TrimSpace(path), data, 0o600)
	if err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}

	return nil
}
