package oci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"oci-call-executor/pkg/retry"
)

const (
	serviceName = "Monitoring"
	apiDocsBase = "https://docs.oracle.com/iaas/api/#/en/monitoring/20180401/"
)

// monitoringAPI performs single HTTP exchanges with the Monitoring service. Implementations
// return *retry.RemoteError or *retry.TransportError so retry predicates can classify failures.
type monitoringAPI interface {
	SummarizeMetricsData(
		ctx context.Context,
		request monitoring.SummarizeMetricsDataRequest,
		page *string,
	) (monitoring.SummarizeMetricsDataResponse, *string, error)
	ListAlarms(
		ctx context.Context,
		request monitoring.ListAlarmsRequest,
	) (monitoring.ListAlarmsResponse, error)
	GetAlarm(
		ctx context.Context,
		request monitoring.GetAlarmRequest,
	) (monitoring.GetAlarmResponse, error)
	CreateAlarm(
		ctx context.Context,
		request monitoring.CreateAlarmRequest,
	) (monitoring.CreateAlarmResponse, error)
}

// sdkCaller is the subset of the SDK's BaseClient used to sign and send requests.
type sdkCaller interface {
	Call(ctx context.Context, request *http.Request) (*http.Response, error)
}

type sdkMonitoringClient struct {
	client sdkCaller
}

func (s *sdkMonitoringClient) SummarizeMetricsData(
	ctx context.Context,
	request monitoring.SummarizeMetricsDataRequest,
	page *string,
) (monitoring.SummarizeMetricsDataResponse, *string, error) {
	var response monitoring.SummarizeMetricsDataResponse

	httpRequest, err := request.HTTPRequest(
		http.MethodPost,
		"/metrics/actions/summarizeMetricsData",
		nil,
		nil,
	)
	if err != nil {
		return response, nil, fmt.Errorf("build summarize request: %w", err)
	}

	if trimmed := normalizePageToken(page); trimmed != nil {
		query := httpRequest.URL.Query()
		query.Set("page", *trimmed)
		httpRequest.URL.RawQuery = query.Encode()
	}

	httpResponse, err := s.send(ctx, &httpRequest, "SummarizeMetricsData", "MetricData/SummarizeMetricsData", &response)
	response.RawResponse = httpResponse

	if err != nil {
		return response, nil, err
	}

	headerValue := httpResponse.Header.Get("Opc-Next-Page")

	return response, normalizePageToken(&headerValue), nil
}

func (s *sdkMonitoringClient) ListAlarms(
	ctx context.Context,
	request monitoring.ListAlarmsRequest,
) (monitoring.ListAlarmsResponse, error) {
	var response monitoring.ListAlarmsResponse

	httpRequest, err := request.HTTPRequest(http.MethodGet, "/alarms", nil, nil)
	if err != nil {
		return response, fmt.Errorf("build list alarms request: %w", err)
	}

	httpResponse, err := s.send(ctx, &httpRequest, "ListAlarms", "Alarm/ListAlarms", &response)
	response.RawResponse = httpResponse

	return response, err
}

func (s *sdkMonitoringClient) GetAlarm(
	ctx context.Context,
	request monitoring.GetAlarmRequest,
) (monitoring.GetAlarmResponse, error) {
	var response monitoring.GetAlarmResponse

	httpRequest, err := request.HTTPRequest(http.MethodGet, "/alarms/{alarmId}", nil, nil)
	if err != nil {
		return response, fmt.Errorf("build get alarm request: %w", err)
	}

	httpResponse, err := s.send(ctx, &httpRequest, "GetAlarm", "Alarm/GetAlarm", &response)
	response.RawResponse = httpResponse

	return response, err
}

func (s *sdkMonitoringClient) CreateAlarm(
	ctx context.Context,
	request monitoring.CreateAlarmRequest,
) (monitoring.CreateAlarmResponse, error) {
	var response monitoring.CreateAlarmResponse

	httpRequest, err := request.HTTPRequest(http.MethodPost, "/alarms", nil, nil)
	if err != nil {
		return response, fmt.Errorf("build create alarm request: %w", err)
	}

	httpResponse, err := s.send(ctx, &httpRequest, "CreateAlarm", "Alarm/CreateAlarm", &response)
	response.RawResponse = httpResponse

	return response, err
}

func (s *sdkMonitoringClient) send(
	ctx context.Context,
	httpRequest *http.Request,
	operation string,
	reference string,
	out any,
) (*http.Response, error) {
	httpResponse, err := s.client.Call(ctx, httpRequest)

	if httpResponse != nil {
		defer func() {
			common.CloseBodyIfValid(httpResponse)
		}()
	}

	if err != nil {
		wrapped := common.PostProcessServiceError(err, serviceName, operation, apiDocsBase+reference)

		return httpResponse, classifyError(operation, wrapped)
	}

	err = common.UnmarshalResponse(httpResponse, out)
	if err != nil {
		return httpResponse, fmt.Errorf("decode %s response: %w", operation, err)
	}

	return httpResponse, nil
}

// classifyError maps SDK failures onto the retry error taxonomy. Context errors and
// unrecognised failures pass through unchanged.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if serviceErr, ok := common.IsServiceError(err); ok {
		return &retry.RemoteError{
			StatusCode:   serviceErr.GetHTTPStatusCode(),
			Code:         serviceErr.GetCode(),
			Message:      serviceErr.GetMessage(),
			OpcRequestID: serviceErr.GetOpcRequestID(),
			Err:          err,
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if isNetworkError(err) {
		return &retry.TransportError{Op: operation, Err: err}
	}

	return err
}

func isNetworkError(err error) bool {
	var (
		netErr net.Error
		urlErr *url.Error
		opErr  *net.OpError
	)

	switch {
	case errors.As(err, &opErr), errors.As(err, &urlErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	default:
		return false
	}
}
