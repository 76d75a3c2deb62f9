package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"oci-call-executor/pkg/http/metrics"
	"oci-call-executor/pkg/oci"
)

type p95Result struct {
	InstanceID string    `json:"instanceId"`
	Window     string    `json:"window"`
	P95        float32   `json:"p95"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

type listResult struct {
	Count  int                `json:"count"`
	Alarms []oci.AlarmSummary `json:"alarms"`
}

func callOptions(opts options) []oci.CallOption {
	var callOpts []oci.CallOption

	if opts.noRetry {
		callOpts = append(callOpts, oci.WithRetryPolicy(nil))
	}

	if token := strings.TrimSpace(opts.retryToken); token != "" && opts.operation == opCreateAlarm {
		callOpts = append(callOpts, oci.WithRetryToken(token))
	}

	return callOpts
}

func executeOperation(
	ctx context.Context,
	client monitoringClient,
	opts options,
	cfg runtimeConfig,
	exporter *metrics.Exporter,
	now func() time.Time,
) (any, error) {
	callOpts := callOptions(opts)

	switch opts.operation {
	case opP95:
		value, err := client.QueryP95CPU(ctx, cfg.OCI.InstanceID, opts.last7d, callOpts...)
		if err != nil {
			return nil, err
		}

		fetchedAt := now().UTC()
		exporter.ObserveOCIP95(float64(value), fetchedAt)

		window := "24h"
		if opts.last7d {
			window = "7d"
		}

		return p95Result{
			InstanceID: cfg.OCI.InstanceID,
			Window:     window,
			P95:        value,
			FetchedAt:  fetchedAt,
		}, nil
	case opListAlarms:
		alarms, err := client.ListAlarms(ctx, oci.ListAlarmsInput{
			CompartmentID: cfg.OCI.CompartmentID,
			DisplayName:   opts.alarmName,
		}, callOpts...)
		if err != nil {
			return nil, err
		}

		return listResult{Count: len(alarms), Alarms: alarms}, nil
	case opGetAlarm:
		return client.GetAlarm(ctx, opts.alarmID, callOpts...)
	case opCreateAlarm:
		return client.CreateAlarm(ctx, oci.CreateAlarmInput{
			DisplayName:   strings.TrimSpace(opts.alarmName),
			CompartmentID: cfg.OCI.CompartmentID,
			Namespace:     strings.TrimSpace(opts.namespace),
			Query:         strings.TrimSpace(opts.query),
			Severity:      oci.ParseAlarmSeverity(opts.severity),
			Destinations:  splitList(opts.destinations),
			Enabled:       true,
		}, callOpts...)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedOp, opts.operation)
	}
}

func writeJSON(dst io.Writer, value any) error {
	encoder := json.NewEncoder(dst)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	return nil
}

//nolint:ireturn // factory returns interface for dependency substitution.
func defaultClientFactory(cfg ociConfig, opts ...oci.Option) (monitoringClient, error) {
	clientCfg := oci.Config{
		CompartmentID: cfg.CompartmentID,
		Region:        cfg.Region,
	}

	switch cfg.Auth {
	case authConfigFile:
		provider := configFileProvider(cfg)

		client, err := oci.NewClient(provider, clientCfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("new config file client: %w", err)
		}

		return client, nil
	default:
		client, err := oci.NewInstancePrincipalClient(clientCfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("new instance principal client: %w", err)
		}

		return client, nil
	}
}

//nolint:ireturn // the SDK models providers as an interface.
func configFileProvider(cfg ociConfig) common.ConfigurationProvider {
	path := strings.TrimSpace(cfg.ConfigFile)
	if path == "" {
		return common.DefaultConfigProvider()
	}

	return common.CustomProfileConfigProvider(path, cfg.Profile)
}
