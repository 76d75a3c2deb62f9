package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"oci-call-executor/pkg/retry"
)

var errDecodeAlarm = errors.New("metrics: decode alarm failed")

func TestZeroValueExporterAcceptsAttempts(t *testing.T) {
	t.Parallel()

	var exporter Exporter

	exporter.OnAttempt(retry.Attempt{Operation: "GetAlarm", Outcome: retry.OutcomeSuccess})

	snapshot := exporter.snapshot()
	if len(snapshot.operations) != 1 || snapshot.operations[0].stats.successes != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot.operations)
	}

	if snapshot.authMode != unknownLabel {
		t.Fatalf("expected unknown auth mode, got %q", snapshot.authMode)
	}
}

func TestOnAttemptAccumulatesPerOperation(t *testing.T) {
	t.Parallel()

	exporter := NewExporter()
	started := time.Unix(1_700_000_000, 0)

	exporter.OnAttempt(retry.Attempt{
		Operation: "CreateAlarm",
		Number:    1,
		StartedAt: started,
		Duration:  2 * time.Second,
		Err:       &retry.RemoteError{StatusCode: http.StatusServiceUnavailable},
		Outcome:   retry.OutcomeRetry,
		Delay:     1500 * time.Millisecond,
	})
	exporter.OnAttempt(retry.Attempt{
		Operation: "CreateAlarm",
		Number:    2,
		StartedAt: started.Add(5 * time.Second),
		Duration:  time.Second,
		Err:       errDecodeAlarm,
		Outcome:   retry.OutcomeTerminal,
	})
	exporter.OnAttempt(retry.Attempt{Operation: " ", Outcome: retry.OutcomeCanceled})

	snapshot := exporter.snapshot()
	if len(snapshot.operations) != 2 {
		t.Fatalf("expected two operations, got %+v", snapshot.operations)
	}

	create := snapshot.operations[0]
	if create.name != "CreateAlarm" {
		t.Fatalf("expected sorted operations, got %q first", create.name)
	}

	if create.stats.attempts != 2 || create.stats.retries != 1 || create.stats.terminal != 1 {
		t.Fatalf("unexpected counters: %+v", create.stats)
	}

	if create.stats.backoffSeconds != 1.5 {
		t.Fatalf("expected 1.5s backoff, got %v", create.stats.backoffSeconds)
	}

	if create.stats.lastStatus != 0 {
		t.Fatalf("expected status reset by non-remote failure, got %d", create.stats.lastStatus)
	}

	if !create.stats.lastAttempt.Equal(started.Add(6 * time.Second)) {
		t.Fatalf("unexpected last attempt time %v", create.stats.lastAttempt)
	}

	if snapshot.operations[1].name != unnamedOperation || snapshot.operations[1].stats.canceled != 1 {
		t.Fatalf("unexpected unnamed operation stats: %+v", snapshot.operations[1])
	}
}

func TestEscapeLabelQuotesSpecialCharacters(t *testing.T) {
	t.Parallel()

	got := escapeLabel("a\"b\\c\nd")
	if got != `a\"b\\c\nd` {
		t.Fatalf("unexpected escaped label %q", got)
	}

	if formatValue(3) != "3" || formatValue(0.25) != "0.250" {
		t.Fatalf("unexpected value formatting: %s %s", formatValue(3), formatValue(0.25))
	}
}
