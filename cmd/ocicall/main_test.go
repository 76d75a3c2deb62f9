package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"oci-call-executor/internal/buildinfo"
	"oci-call-executor/pkg/imds"
	"oci-call-executor/pkg/oci"
	"oci-call-executor/pkg/retry"
)

const (
	testCompartmentID = "ocid1.compartment.oc1..exampleuniqueID"
	testInstanceID    = "ocid1.instance.oc1..imds"
)

var errFakeTransport = errors.New("fake transport failure")

type fakeClient struct {
	region      string
	p95Instance string
	p95Value    float32
	p95Err      error
	callOpts    int
	created     oci.CreateAlarmInput
	listed      oci.ListAlarmsInput
}

func (f *fakeClient) QueryP95CPU(
	_ context.Context,
	instanceOCID string,
	_ bool,
	opts ...oci.CallOption,
) (float32, error) {
	f.p95Instance = instanceOCID
	f.callOpts = len(opts)

	return f.p95Value, f.p95Err
}

func (f *fakeClient) ListAlarms(
	_ context.Context,
	input oci.ListAlarmsInput,
	opts ...oci.CallOption,
) ([]oci.AlarmSummary, error) {
	f.listed = input
	f.callOpts = len(opts)

	return []oci.AlarmSummary{{ID: "ocid1.alarm.oc1..a", DisplayName: "cpu"}}, nil
}

func (f *fakeClient) GetAlarm(_ context.Context, alarmID string, opts ...oci.CallOption) (oci.Alarm, error) {
	f.callOpts = len(opts)

	var alarm oci.Alarm

	alarm.ID = alarmID

	return alarm, nil
}

func (f *fakeClient) CreateAlarm(
	_ context.Context,
	input oci.CreateAlarmInput,
	opts ...oci.CallOption,
) (oci.CreatedAlarm, error) {
	f.created = input
	f.callOpts = len(opts)

	return oci.CreatedAlarm{RetryToken: "issued"}, nil
}

type fakeIMDSCalls struct {
	compartment int
	instance    int
}

type countingIMDS struct {
	imds.StaticClient

	calls *fakeIMDSCalls
}

func (c countingIMDS) CompartmentID(ctx context.Context) (string, error) {
	c.calls.compartment++

	return c.StaticClient.CompartmentID(ctx)
}

func (c countingIMDS) InstanceID(ctx context.Context) (string, error) {
	c.calls.instance++

	return c.StaticClient.InstanceID(ctx)
}

func testDeps(cfg runtimeConfig, client *fakeClient, calls *fakeIMDSCalls) runDeps {
	return runDeps{
		newLogger: func(string) (*zap.Logger, error) { return zap.NewNop(), nil },
		loadConfig: func(string) (runtimeConfig, error) {
			return cfg, nil
		},
		newIMDS: func(imdsConfig, *retry.Executor) imds.Client {
			return countingIMDS{
				StaticClient: imds.StaticClient{
					RegionName:  "phx",
					Instance:    testInstanceID,
					Compartment: testCompartmentID,
				},
				calls: calls,
			}
		},
		newClient: func(cfg ociConfig, _ ...oci.Option) (monitoringClient, error) {
			if client != nil {
				client.region = cfg.Region
			}

			return client, nil
		},
		currentBuildInfo: func() buildinfo.Info {
			return buildinfo.Info{Version: "1.0.0", GitCommit: "abc", BuildDate: "today"}
		},
		now: func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
}

func TestParseArgsDefaults(t *testing.T) {
	t.Parallel()

	opts, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}

	if opts.configPath != "/etc/ocicall/config.yaml" {
		t.Fatalf("expected default config path, got %q", opts.configPath)
	}

	if opts.logLevel != "info" {
		t.Fatalf("expected default log level, got %q", opts.logLevel)
	}

	if opts.operation != opP95 {
		t.Fatalf("expected default operation, got %q", opts.operation)
	}
}

func TestParseArgsTrimSpaces(t *testing.T) {
	t.Parallel()

	opts, err := parseArgs([]string{"--op", "  LIST-ALARMS ", "--log-level", " debug ", "--timeout", "-1s"})
	if err != nil {
		t.Fatalf("parseArgs returned error: %v", err)
	}

	if opts.operation != opListAlarms {
		t.Fatalf("expected trimmed lowercase operation, got %q", opts.operation)
	}

	if opts.logLevel != "debug" {
		t.Fatalf("expected trimmed log level, got %q", opts.logLevel)
	}

	if opts.timeout != 0 {
		t.Fatalf("expected negative timeout to be disabled, got %v", opts.timeout)
	}
}

func TestParseArgsRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		args []string
		want error
	}{
		"unknown op":          {args: []string{"--op", "delete-alarm"}, want: errUnsupportedOp},
		"get without id":      {args: []string{"--op", "get-alarm"}, want: errMissingArgument},
		"create without name": {args: []string{"--op", "create-alarm", "--query", "q"}, want: errMissingArgument},
		"create without dest": {
			args: []string{"--op", "create-alarm", "--alarm-name", "a", "--query", "q", "--destinations", " , "},
			want: errMissingArgument,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := parseArgs(tc.args)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseArgsReturnsFlagError(t *testing.T) {
	t.Parallel()

	_, err := parseArgs([]string{"--unknown-flag"})
	if err == nil {
		t.Fatal("expected flag parsing error")
	}

	if !errors.Is(err, flag.ErrHelp) && !strings.Contains(err.Error(), "flag provided but not defined") {
		t.Fatalf("unexpected error type: %v", err)
	}
}

func TestNewLoggerRejectsInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := newLogger("not-a-level")
	if !errors.Is(err, errInvalidLogLevel) {
		t.Fatalf("expected errInvalidLogLevel, got %v", err)
	}
}

func TestNewLoggerAppliesLevel(t *testing.T) {
	t.Parallel()

	logger, err := newLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer func() {
		_ = logger.Sync()
	}()

	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logger to enable debug level")
	}
}

func TestRunPrintsVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-version"}, testDeps(defaultRuntimeConfig(), nil, nil), &stdout, &stderr)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d (%s)", code, stderr.String())
	}

	if strings.TrimSpace(stdout.String()) != "ocicall 1.0.0 (commit abc, built today)" {
		t.Fatalf("unexpected version output %q", stdout.String())
	}
}

func TestRunParseErrorExitCode(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--op", "nope"}, testDeps(defaultRuntimeConfig(), nil, nil), &stdout, &stderr)
	if code != exitCodeParseError {
		t.Fatalf("expected parse error exit code, got %d", code)
	}

	if !strings.Contains(stderr.String(), "unsupported operation") {
		t.Fatalf("expected error on stderr, got %q", stderr.String())
	}
}

func TestRunP95ResolvesTargetsFromIMDS(t *testing.T) {
	t.Parallel()

	client := &fakeClient{p95Value: 42.5}
	calls := new(fakeIMDSCalls)

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--op", "p95"}, testDeps(defaultRuntimeConfig(), client, calls), &stdout, &stderr)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d (%s)", code, stderr.String())
	}

	if calls.compartment != 1 || calls.instance != 1 {
		t.Fatalf("expected one IMDS lookup each, got %+v", calls)
	}

	if client.p95Instance != testInstanceID {
		t.Fatalf("expected IMDS instance, got %q", client.p95Instance)
	}

	var result p95Result

	err := json.Unmarshal(stdout.Bytes(), &result)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	if result.P95 != 42.5 || result.Window != "24h" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunPrefersFlagInstanceOverIMDS(t *testing.T) {
	t.Parallel()

	cfg := defaultRuntimeConfig()
	cfg.OCI.CompartmentID = testCompartmentID

	client := &fakeClient{p95Value: 1}
	calls := new(fakeIMDSCalls)

	var stdout, stderr bytes.Buffer

	code := run(
		context.Background(),
		[]string{"--instance", "ocid1.instance.oc1..flag", "--no-retry"},
		testDeps(cfg, client, calls),
		&stdout,
		&stderr,
	)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d (%s)", code, stderr.String())
	}

	if calls.compartment != 0 || calls.instance != 0 {
		t.Fatalf("expected no IMDS lookups, got %+v", calls)
	}

	if client.p95Instance != "ocid1.instance.oc1..flag" {
		t.Fatalf("expected flag instance, got %q", client.p95Instance)
	}

	if client.callOpts != 1 {
		t.Fatalf("expected the no-retry override to be passed, got %d options", client.callOpts)
	}
}

func TestRunCreateAlarmPassesInputAndToken(t *testing.T) {
	t.Parallel()

	cfg := defaultRuntimeConfig()
	cfg.OCI.CompartmentID = testCompartmentID

	client := new(fakeClient)

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"--op", "create-alarm",
		"--alarm-name", " cpu-high ",
		"--query", "CpuUtilization[1m].mean() > 90",
		"--severity", "warning",
		"--destinations", "topic-a, topic-b",
		"--retry-token", "caller-token",
	}, testDeps(cfg, client, new(fakeIMDSCalls)), &stdout, &stderr)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d (%s)", code, stderr.String())
	}

	if client.created.DisplayName != "cpu-high" || client.created.CompartmentID != testCompartmentID {
		t.Fatalf("unexpected create input %+v", client.created)
	}

	if client.created.Severity != oci.AlarmSeverityWarning {
		t.Fatalf("unexpected severity %v", client.created.Severity)
	}

	if len(client.created.Destinations) != 2 || client.created.Destinations[1] != "topic-b" {
		t.Fatalf("unexpected destinations %v", client.created.Destinations)
	}

	if client.callOpts != 1 {
		t.Fatalf("expected retry token option, got %d options", client.callOpts)
	}
}

func TestRunReportsOperationFailure(t *testing.T) {
	t.Parallel()

	cfg := defaultRuntimeConfig()
	cfg.OCI.CompartmentID = testCompartmentID
	cfg.OCI.InstanceID = testInstanceID

	client := &fakeClient{p95Err: &retry.TransportError{Op: "SummarizeMetricsData", Err: errFakeTransport}}

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), nil, testDeps(cfg, client, new(fakeIMDSCalls)), &stdout, &stderr)
	if code != exitCodeRuntimeError {
		t.Fatalf("expected runtime error exit code, got %d", code)
	}

	if stdout.Len() != 0 {
		t.Fatalf("expected no result output, got %q", stdout.String())
	}
}

func TestRunRejectsInvalidRetryConfiguration(t *testing.T) {
	t.Parallel()

	cfg := defaultRuntimeConfig()
	cfg.Retry.MaxAttempts = 0

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), nil, testDeps(cfg, new(fakeClient), new(fakeIMDSCalls)), &stdout, &stderr)
	if code != exitCodeRuntimeError {
		t.Fatalf("expected runtime error exit code, got %d", code)
	}
}

func TestRunWritesMetricsFile(t *testing.T) {
	t.Parallel()

	cfg := defaultRuntimeConfig()
	cfg.OCI.CompartmentID = testCompartmentID

	path := filepath.Join(t.TempDir(), "metrics.txt")

	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"--op", "list-alarms", "--alarm-name", "cpu", "--metrics", path},
		testDeps(cfg, new(fakeClient), new(fakeIMDSCalls)), &stdout, &stderr)
	if code != exitCodeSuccess {
		t.Fatalf("expected success, got %d (%s)", code, stderr.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}

	if !strings.Contains(string(data), "ocicall_auth_mode{mode=\"instance_principal\"} 1") {
		t.Fatalf("unexpected metrics output:\n%s", data)
	}

	var result listResult

	err = json.Unmarshal(stdout.Bytes(), &result)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	if result.Count != 1 {
		t.Fatalf("unexpected list result %+v", result)
	}
}

func TestDefaultIMDSFactoryHonoursEndpoint(t *testing.T) {
	t.Parallel()

	executor := retry.NewExecutor()

	client := defaultIMDSFactory(imdsConfig{
		Endpoint:    "http://127.0.0.1:1/opc/v2",
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
	}, executor)

	httpClient, ok := client.(*imds.HTTPClient)
	if !ok {
		t.Fatalf("unexpected client type %T", client)
	}

	attempts, _ := httpClient.Policy().MaxAttempts()
	if attempts != 2 {
		t.Fatalf("expected imds attempts from config, got %d", attempts)
	}
}

func TestConfigFileProviderSelectsSource(t *testing.T) {
	t.Parallel()

	if configFileProvider(ociConfig{}) == nil {
		t.Fatal("expected default provider")
	}

	if configFileProvider(ociConfig{ConfigFile: "./testdata/oci-config", Profile: "TESTING"}) == nil {
		t.Fatal("expected custom profile provider")
	}
}

func TestRunResolvesRegionForInstancePrincipal(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		auth   string
		region string
		want   string
	}{
		"imds fallback":       {auth: authInstancePrincipal, want: "phx"},
		"configured region":   {auth: authInstancePrincipal, region: "us-ashburn-1", want: "us-ashburn-1"},
		"config file profile": {auth: authConfigFile, want: ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultRuntimeConfig()
			cfg.OCI.Auth = tc.auth
			cfg.OCI.Region = tc.region
			cfg.OCI.CompartmentID = testCompartmentID

			client := new(fakeClient)

			var stdout, stderr bytes.Buffer

			code := run(context.Background(), []string{"--op", "list-alarms"},
				testDeps(cfg, client, new(fakeIMDSCalls)), &stdout, &stderr)
			if code != exitCodeSuccess {
				t.Fatalf("expected success, got %d (%s)", code, stderr.String())
			}

			if client.region != tc.want {
				t.Fatalf("expected region %q, got %q", tc.want, client.region)
			}
		})
	}
}
