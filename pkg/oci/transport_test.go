package oci //nolint:testpackage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"oci-call-executor/pkg/retry"
)

var errDecoder = errors.New("decoder exploded")

type fakeServiceError struct {
	status    int
	code      string
	message   string
	requestID string
}

func (e fakeServiceError) Error() string {
	return fmt.Sprintf("service error %d %s", e.status, e.code)
}

func (e fakeServiceError) GetHTTPStatusCode() int  { return e.status }
func (e fakeServiceError) GetMessage() string      { return e.message }
func (e fakeServiceError) GetCode() string         { return e.code }
func (e fakeServiceError) GetOpcRequestID() string { return e.requestID }

func TestClassifyErrorMapsServiceErrors(t *testing.T) {
	t.Parallel()

	source := fakeServiceError{
		status:    http.StatusConflict,
		code:      "IncorrectState",
		message:   "alarm is being updated",
		requestID: "req-42",
	}

	err := classifyError("CreateAlarm", source)

	var remote *retry.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T", err)
	}

	requireEqual(t, remote.StatusCode, http.StatusConflict, "status")
	requireEqual(t, remote.Code, "IncorrectState", "code")
	requireEqual(t, remote.OpcRequestID, "req-42", "request id")

	if !retry.DefaultShouldRetry(err, 1, 0) {
		t.Fatal("409 IncorrectState must be retryable")
	}
}

func TestClassifyErrorMapsNetworkFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"op error":       &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		"unexpected eof": fmt.Errorf("read body: %w", io.ErrUnexpectedEOF),
	}

	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := classifyError("ListAlarms", source)
			if !retry.IsTransport(err) {
				t.Fatalf("expected transport error, got %T", err)
			}

			if !errors.Is(err, source) {
				t.Fatal("transport error must wrap the source")
			}
		})
	}
}

func TestClassifyErrorPassesThroughOthers(t *testing.T) {
	t.Parallel()

	requireEqual(t, classifyError("GetAlarm", nil), nil, "nil")

	canceled := fmt.Errorf("send: %w", context.Canceled)
	if !errors.Is(classifyError("GetAlarm", canceled), context.Canceled) || retry.IsTransport(classifyError("GetAlarm", canceled)) {
		t.Fatal("context errors must pass through unclassified")
	}

	if !errors.Is(classifyError("GetAlarm", errDecoder), errDecoder) {
		t.Fatal("unrecognised errors must pass through")
	}
}
