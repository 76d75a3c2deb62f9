package oci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"go.uber.org/zap"
	"oci-call-executor/pkg/retry"
)

const (
	monitoringNamespace     = "oci_computeagent"
	metricQueryTemplate     = "CpuUtilization[1m]{resourceId = \"%s\"}.percentile(0.95)"
	metricName              = "CpuUtilization"
	maxOneMinuteWindowHours = 7 * 24
)

var (
	// ErrNoMetricsData indicates that the Monitoring service returned no datapoints for the
	// requested CpuUtilization stream.
	ErrNoMetricsData = errors.New("oci: cpu utilization metrics unavailable")

	errMissingInstanceOCID = fmt.Errorf("%w: instance OCID is required", ErrInvalidArgument)
)

type summarizePage struct {
	response monitoring.SummarizeMetricsDataResponse
	next     *string
}

// QueryP95CPU returns the most recent P95 CpuUtilization datapoint for the supplied compute
// instance. When last7d is true the query spans the trailing seven days at one-minute
// resolution, otherwise a 24-hour window is used. Each page request is retried independently
// under the effective policy.
func (c *Client) QueryP95CPU(
	ctx context.Context,
	instanceOCID string,
	last7d bool,
	opts ...CallOption,
) (float32, error) {
	if c == nil {
		return 0, errNilClient
	}

	instanceOCID = strings.TrimSpace(instanceOCID)
	if instanceOCID == "" {
		return 0, errMissingInstanceOCID
	}

	_, policy := c.resolveCall(opts)

	start, end := computeWindow(c.now().UTC(), last7d)
	request := buildSummarizeRequest(c.compartmentID, instanceOCID, start, end)

	value, found, err := c.collectLatestDatapoint(ctx, policy, request)
	if err != nil {
		return 0, err
	}

	if !found {
		return 0, ErrNoMetricsData
	}

	return value, nil
}

func computeWindow(now time.Time, last7d bool) (time.Time, time.Time) {
	end := now.Truncate(time.Second)

	start := end.Add(-24 * time.Hour)
	if last7d {
		start = end.Add(-time.Duration(maxOneMinuteWindowHours) * time.Hour)
	}

	return start, end
}

func buildSummarizeRequest(
	compartmentID, instanceOCID string,
	start, end time.Time,
) monitoring.SummarizeMetricsDataRequest {
	query := fmt.Sprintf(metricQueryTemplate, escapeDimensionValue(instanceOCID))

	var details monitoring.SummarizeMetricsDataDetails

	details.Namespace = common.String(monitoringNamespace)
	details.Query = &query
	details.StartTime = &common.SDKTime{Time: start}
	details.EndTime = &common.SDKTime{Time: end}

	var request monitoring.SummarizeMetricsDataRequest

	request.CompartmentId = common.String(compartmentID)
	request.SummarizeMetricsDataDetails = details

	return request
}

func (c *Client) collectLatestDatapoint(
	ctx context.Context,
	policy *retry.Policy,
	request monitoring.SummarizeMetricsDataRequest,
) (float32, bool, error) {
	var (
		pageToken       *string
		latestValue     float32
		latestTimestamp time.Time
		pages           int
	)

	found := false
	ctx = retry.WithOperationName(ctx, "SummarizeMetricsData")

	for {
		page, err := retry.Call(ctx, c.executor, policy,
			func(ctx context.Context) (summarizePage, error) {
				response, next, err := c.api.SummarizeMetricsData(ctx, request, pageToken)

				return summarizePage{response: response, next: next}, err
			})
		if err != nil {
			return 0, false, fmt.Errorf("summarize metrics: %w", err)
		}

		pages++

		latestTimestamp, latestValue, found = foldMetricStreams(
			page.response.Items,
			latestTimestamp,
			latestValue,
			found,
		)

		pageToken = normalizePageToken(page.next)
		if pageToken == nil {
			break
		}
	}

	c.logger.Debug("summarized metrics",
		zap.Int("pages", pages),
		zap.Bool("found", found),
	)

	return latestValue, found, nil
}

func foldMetricStreams(
	streams []monitoring.MetricData,
	latestTimestamp time.Time,
	latestValue float32,
	found bool,
) (time.Time, float32, bool) {
	for _, stream := range streams {
		for _, datapoint := range stream.AggregatedDatapoints {
			if datapoint.Value == nil || datapoint.Timestamp == nil {
				continue
			}

			timestamp := datapoint.Timestamp.Time
			if !found || timestamp.After(latestTimestamp) {
				latestTimestamp = timestamp
				latestValue = float32(*datapoint.Value)
				found = true
			}
		}
	}

	return latestTimestamp, latestValue, found
}

func normalizePageToken(token *string) *string {
	if token == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*token)
	if trimmed == "" {
		return nil
	}

	return &trimmed
}

func escapeDimensionValue(value string) string {
	return strings.ReplaceAll(value, "\"", "\\\"")
}
