package oci

import (
	"context"
	"fmt"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"go.uber.org/zap"
	"oci-call-executor/pkg/retry"
	"oci-call-executor/pkg/token"
)

const (
	defaultListPageSize = 100
	maxListPageSize     = 1000
	maxDisplayName      = 255
)

// ListAlarms returns every alarm matching input, following pagination. Each page request is
// retried independently under the effective policy.
func (c *Client) ListAlarms(
	ctx context.Context,
	input ListAlarmsInput,
	opts ...CallOption,
) ([]AlarmSummary, error) {
	if c == nil {
		return nil, errNilClient
	}

	if input.PageSize < 0 || input.PageSize > maxListPageSize {
		return nil, invalidArgument(fmt.Sprintf("page size must be within 1..%d", maxListPageSize))
	}

	if input.LifecycleState.Unknown() {
		return nil, invalidArgument("unsupported lifecycle state " + input.LifecycleState.Raw())
	}

	_, policy := c.resolveCall(opts)

	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = defaultListPageSize
	}

	var request monitoring.ListAlarmsRequest

	request.CompartmentId = common.String(c.compartmentOrDefault(input.CompartmentID))
	request.Limit = common.Int(pageSize)
	request.DisplayName = optionalString(strings.TrimSpace(input.DisplayName))
	request.LifecycleState = input.LifecycleState.SDK()

	ctx = retry.WithOperationName(ctx, "ListAlarms")

	var alarms []AlarmSummary

	for {
		response, err := retry.Call(ctx, c.executor, policy,
			func(ctx context.Context) (monitoring.ListAlarmsResponse, error) {
				return c.api.ListAlarms(ctx, request)
			})
		if err != nil {
			return nil, fmt.Errorf("list alarms: %w", err)
		}

		for _, summary := range response.Items {
			alarms = append(alarms, alarmSummaryFromSDK(summary))
		}

		next := normalizePageToken(response.OpcNextPage)
		if next == nil {
			break
		}

		request.Page = next
	}

	return alarms, nil
}

// GetAlarm fetches a single alarm by OCID.
func (c *Client) GetAlarm(ctx context.Context, alarmID string, opts ...CallOption) (Alarm, error) {
	if c == nil {
		return Alarm{}, errNilClient
	}

	alarmID = strings.TrimSpace(alarmID)
	if alarmID == "" {
		return Alarm{}, invalidArgument("alarm ID is required")
	}

	_, policy := c.resolveCall(opts)

	var request monitoring.GetAlarmRequest

	request.AlarmId = common.String(alarmID)

	response, err := retry.Call(retry.WithOperationName(ctx, "GetAlarm"), c.executor, policy,
		func(ctx context.Context) (monitoring.GetAlarmResponse, error) {
			return c.api.GetAlarm(ctx, request)
		})
	if err != nil {
		return Alarm{}, fmt.Errorf("get alarm %s: %w", alarmID, err)
	}

	return alarmFromSDK(response.Alarm), nil
}

// CreateAlarm creates an alarm. One idempotency token is resolved per call, caller-supplied
// via WithRetryToken or issued otherwise, and sent unchanged on every attempt so the service
// can discard duplicates.
func (c *Client) CreateAlarm(
	ctx context.Context,
	input CreateAlarmInput,
	opts ...CallOption,
) (CreatedAlarm, error) {
	if c == nil {
		return CreatedAlarm{}, errNilClient
	}

	err := validateCreateAlarm(input)
	if err != nil {
		return CreatedAlarm{}, err
	}

	cfg, policy := c.resolveCall(opts)

	retryToken := token.Resolve(c.issuer, cfg.retryToken)
	if len(retryToken) > token.MaxLength {
		return CreatedAlarm{}, invalidArgument(
			fmt.Sprintf("retry token exceeds %d characters", token.MaxLength),
		)
	}

	var request monitoring.CreateAlarmRequest

	request.CreateAlarmDetails = createAlarmDetails(input, c.compartmentOrDefault(input.CompartmentID))
	request.OpcRetryToken = common.String(retryToken)

	c.logger.Debug("creating alarm",
		zap.String("displayName", input.DisplayName),
		zap.String("retryToken", retryToken),
		zap.Bool("callerToken", strings.TrimSpace(cfg.retryToken) != ""),
	)

	response, err := retry.Call(retry.WithOperationName(ctx, "CreateAlarm"), c.executor, policy,
		func(ctx context.Context) (monitoring.CreateAlarmResponse, error) {
			return c.api.CreateAlarm(ctx, request)
		})
	if err != nil {
		return CreatedAlarm{}, fmt.Errorf("create alarm %q: %w", input.DisplayName, err)
	}

	return CreatedAlarm{
		Alarm:        alarmFromSDK(response.Alarm),
		RetryToken:   retryToken,
		ETag:         stringValue(response.Etag),
		OpcRequestID: stringValue(response.OpcRequestId),
	}, nil
}

func validateCreateAlarm(input CreateAlarmInput) error {
	switch {
	case strings.TrimSpace(input.DisplayName) == "":
		return invalidArgument("display name is required")
	case len(input.DisplayName) > maxDisplayName:
		return invalidArgument(fmt.Sprintf("display name exceeds %d characters", maxDisplayName))
	case strings.TrimSpace(input.Namespace) == "":
		return invalidArgument("metric namespace is required")
	case strings.TrimSpace(input.Query) == "":
		return invalidArgument("query is required")
	case input.Severity.IsZero():
		return invalidArgument("severity is required")
	case input.Severity.Unknown():
		return invalidArgument("unsupported severity " + input.Severity.Raw())
	case len(input.Destinations) == 0:
		return invalidArgument("at least one destination is required")
	default:
		return nil
	}
}
