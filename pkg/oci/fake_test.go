package oci //nolint:testpackage // tests drive the unexported transport seam.

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"oci-call-executor/pkg/retry"
)

var errUnexpectedCall = errors.New("fake monitoring: unexpected call")

type fakeMonitoring struct {
	mu sync.Mutex

	summarize func(call int, request monitoring.SummarizeMetricsDataRequest, page *string) (monitoring.SummarizeMetricsDataResponse, *string, error)
	list      func(call int, request monitoring.ListAlarmsRequest) (monitoring.ListAlarmsResponse, error)
	get       func(call int, request monitoring.GetAlarmRequest) (monitoring.GetAlarmResponse, error)
	create    func(call int, request monitoring.CreateAlarmRequest) (monitoring.CreateAlarmResponse, error)

	summarizeRequests []monitoring.SummarizeMetricsDataRequest
	pages             []string
	listRequests      []monitoring.ListAlarmsRequest
	getRequests       []monitoring.GetAlarmRequest
	createRequests    []monitoring.CreateAlarmRequest
}

func (f *fakeMonitoring) SummarizeMetricsData(
	_ context.Context,
	request monitoring.SummarizeMetricsDataRequest,
	page *string,
) (monitoring.SummarizeMetricsDataResponse, *string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.summarizeRequests = append(f.summarizeRequests, request)
	f.pages = append(f.pages, stringValue(page))

	if f.summarize == nil {
		return monitoring.SummarizeMetricsDataResponse{}, nil, errUnexpectedCall
	}

	return f.summarize(len(f.summarizeRequests), request, page)
}

func (f *fakeMonitoring) ListAlarms(
	_ context.Context,
	request monitoring.ListAlarmsRequest,
) (monitoring.ListAlarmsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listRequests = append(f.listRequests, request)

	if f.list == nil {
		return monitoring.ListAlarmsResponse{}, errUnexpectedCall
	}

	return f.list(len(f.listRequests), request)
}

func (f *fakeMonitoring) GetAlarm(
	_ context.Context,
	request monitoring.GetAlarmRequest,
) (monitoring.GetAlarmResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getRequests = append(f.getRequests, request)

	if f.get == nil {
		return monitoring.GetAlarmResponse{}, errUnexpectedCall
	}

	return f.get(len(f.getRequests), request)
}

func (f *fakeMonitoring) CreateAlarm(
	_ context.Context,
	request monitoring.CreateAlarmRequest,
) (monitoring.CreateAlarmResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createRequests = append(f.createRequests, request)

	if f.create == nil {
		return monitoring.CreateAlarmResponse{}, errUnexpectedCall
	}

	return f.create(len(f.createRequests), request)
}

func newTestClient(t *testing.T, api monitoringAPI, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithExecutor(retry.NewExecutor(retry.WithSleeper(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}))),
	}

	client, err := newClient(api, testCompartmentID, append(base, opts...)...)
	requireNoError(t, err, "create client")

	return client
}

func fastPolicy(t *testing.T, attempts int) *retry.Policy {
	t.Helper()

	policy, err := retry.NewPolicy(
		retry.WithMaxAttempts(attempts),
		retry.WithDelay(retry.NoDelay()),
	)
	requireNoError(t, err, "build policy")

	return policy
}

func remoteError(status int) error {
	return &retry.RemoteError{StatusCode: status, Code: http.StatusText(status)}
}

func sdkAlarm(id, state string) monitoring.Alarm {
	var alarm monitoring.Alarm

	alarm.Id = common.String(id)
	alarm.DisplayName = common.String("cpu-guard")
	alarm.CompartmentId = common.String(testCompartmentID)
	alarm.Namespace = common.String(monitoringNamespace)
	alarm.Query = common.String("CpuUtilization[1m].mean() > 80")
	alarm.Severity = monitoring.AlarmSeverityCritical
	alarm.Destinations = []string{"ocid1.onstopic.oc1..topic"}
	alarm.IsEnabled = common.Bool(true)
	alarm.LifecycleState = monitoring.AlarmLifecycleStateEnum(state)

	return alarm
}

func requireNoError(t *testing.T, err error, message string) {
	t.Helper()

	if err != nil {
		t.Fatalf("%s: %v", message, err)
	}
}

func requireEqual[T comparable](t *testing.T, got, want T, message string) {
	t.Helper()

	if got != want {
		t.Fatalf("%s: got %v want %v", message, got, want)
	}
}
