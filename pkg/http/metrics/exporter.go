package metrics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"oci-call-executor/pkg/retry"
)

const (
	contentType      = "application/openmetrics-text; version=1.0.0; charset=utf-8"
	unknownLabel     = "unknown"
	unnamedOperation = "unnamed"
)

var errNilWriter = errors.New("metrics: writer is nil")

// Exporter aggregates retry attempts per operation and exposes them via HTTP. It implements
// retry.Observer so it can be installed directly on an executor.
type Exporter struct {
	mu sync.RWMutex

	authMode       string
	operations     map[string]*operationStats
	ociP95         float64
	ociLastSuccess time.Time
}

type operationStats struct {
	attempts       uint64
	successes      uint64
	retries        uint64
	terminal       uint64
	exhausted      uint64
	canceled       uint64
	backoffSeconds float64
	lastStatus     int
	lastAttempt    time.Time
}

var _ retry.Observer = (*Exporter)(nil)

// NewExporter constructs an Exporter with zeroed metrics.
func NewExporter() *Exporter {
	return &Exporter{
		mu:             sync.RWMutex{},
		authMode:       "",
		operations:     make(map[string]*operationStats),
		ociP95:         0,
		ociLastSuccess: time.Time{},
	}
}

// SetAuthMode records the authentication mode label.
func (e *Exporter) SetAuthMode(mode string) {
	trimmed := strings.TrimSpace(mode)
	if trimmed == "" {
		trimmed = unknownLabel
	}

	e.mu.Lock()
	e.authMode = trimmed
	e.mu.Unlock()
}

// OnAttempt implements retry.Observer.
func (e *Exporter) OnAttempt(attempt retry.Attempt) {
	name := strings.TrimSpace(attempt.Operation)
	if name == "" {
		name = unnamedOperation
	}

	status, _ := retry.StatusCode(attempt.Err)

	finished := attempt.StartedAt.Add(attempt.Duration)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.operations == nil {
		e.operations = make(map[string]*operationStats)
	}

	stats, ok := e.operations[name]
	if !ok {
		stats = new(operationStats)
		e.operations[name] = stats
	}

	if attempt.Skipped {
		stats.canceled++

		return
	}

	stats.attempts++
	stats.lastStatus = status

	if !attempt.StartedAt.IsZero() {
		stats.lastAttempt = finished
	}

	switch attempt.Outcome {
	case retry.OutcomeSuccess:
		stats.successes++
	case retry.OutcomeRetry:
		stats.retries++
		stats.backoffSeconds += math.Max(0, attempt.Delay.Seconds())
	case retry.OutcomeTerminal:
		stats.terminal++
	case retry.OutcomeExhausted:
		stats.exhausted++
	case retry.OutcomeCanceled:
		stats.canceled++
	}
}

// ObserveOCIP95 captures the most recent OCI P95 value and the time it was fetched.
func (e *Exporter) ObserveOCIP95(value float64, fetchedAt time.Time) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}

	if value < 0 {
		value = 0
	}

	e.mu.Lock()

	e.ociP95 = value
	if !fetchedAt.IsZero() {
		e.ociLastSuccess = fetchedAt
	}

	e.mu.Unlock()
}

// ServeHTTP implements http.Handler for the metrics exporter.
func (e *Exporter) ServeHTTP(writer http.ResponseWriter, _ *http.Request) {
	data, err := e.Render()
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)

		return
	}

	writer.Header().Set("Content-Type", contentType)
	_, _ = writer.Write(data)
}

// Render returns the current metrics snapshot encoded as OpenMetrics text.
func (e *Exporter) Render() ([]byte, error) {
	var buffer bytes.Buffer

	_, err := e.WriteTo(&buffer)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// WriteTo writes the current metrics snapshot to the provided writer.
func (e *Exporter) WriteTo(dst io.Writer) (int64, error) {
	if dst == nil {
		return 0, errNilWriter
	}

	snapshot := e.snapshot()

	lines := []string{
		"# HELP ocicall_auth_mode Authentication mode in use (value set to 1 for the active mode).\n",
		"# TYPE ocicall_auth_mode gauge\n",
		fmt.Sprintf("ocicall_auth_mode{mode=\"%s\"} 1\n", escapeLabel(snapshot.authMode)),
	}

	lines = append(lines, counterFamily(
		"oci_call_attempts", "Attempts made per operation.", snapshot.operations,
		func(s operationStats) float64 { return float64(s.attempts) },
	)...)
	lines = append(lines, counterFamily(
		"oci_call_retries", "Failed attempts followed by another attempt.", snapshot.operations,
		func(s operationStats) float64 { return float64(s.retries) },
	)...)
	lines = append(lines, counterFamily(
		"oci_call_success", "Attempts that returned without error.", snapshot.operations,
		func(s operationStats) float64 { return float64(s.successes) },
	)...)
	lines = append(lines, failureFamily(snapshot.operations)...)
	lines = append(lines, counterFamily(
		"oci_call_backoff_seconds", "Cumulative backoff scheduled between attempts.", snapshot.operations,
		func(s operationStats) float64 { return s.backoffSeconds },
	)...)
	lines = append(lines, gaugeFamily(
		"oci_call_last_status_code", "Status code of the last attempt's remote failure, 0 otherwise.", snapshot.operations,
		func(s operationStats) float64 { return float64(s.lastStatus) },
	)...)
	lines = append(lines, gaugeFamily(
		"oci_call_last_attempt_epoch", "Unix epoch seconds at which the last attempt finished.", snapshot.operations,
		func(s operationStats) float64 {
			if s.lastAttempt.IsZero() {
				return 0
			}

			return float64(s.lastAttempt.Unix())
		},
	)...)
	lines = append(lines,
		"# HELP oci_p95 Last observed OCI CPU P95 value.\n",
		"# TYPE oci_p95 gauge\n",
		fmt.Sprintf("oci_p95 %.6f\n", snapshot.ociP95),
		"# HELP oci_last_success_epoch Unix epoch seconds of the last successful OCI metrics query.\n",
		"# TYPE oci_last_success_epoch gauge\n",
		fmt.Sprintf("oci_last_success_epoch %.0f\n", snapshot.ociLastSuccessEpoch),
		"# EOF\n",
	)

	var total int64

	for _, line := range lines {
		n, err := io.WriteString(dst, line)

		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write metrics: %w", err)
		}
	}

	return total, nil
}

type namedStats struct {
	name  string
	stats operationStats
}

type exporterSnapshot struct {
	authMode            string
	operations          []namedStats
	ociP95              float64
	ociLastSuccessEpoch float64
}

func (e *Exporter) snapshot() exporterSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	epoch := 0.0
	if !e.ociLastSuccess.IsZero() {
		epoch = float64(e.ociLastSuccess.Unix())
	}

	mode := e.authMode
	if mode == "" {
		mode = unknownLabel
	}

	operations := make([]namedStats, 0, len(e.operations))
	for name, stats := range e.operations {
		operations = append(operations, namedStats{name: name, stats: *stats})
	}

	sort.Slice(operations, func(i, j int) bool {
		return operations[i].name < operations[j].name
	})

	return exporterSnapshot{
		authMode:            mode,
		operations:          operations,
		ociP95:              e.ociP95,
		ociLastSuccessEpoch: epoch,
	}
}

func counterFamily(
	name, help string,
	operations []namedStats,
	value func(operationStats) float64,
) []string {
	lines := []string{
		fmt.Sprintf("# HELP %s %s\n", name, help),
		fmt.Sprintf("# TYPE %s counter\n", name),
	}

	for _, op := range operations {
		lines = append(lines, fmt.Sprintf(
			"%s_total{operation=\"%s\"} %s\n",
			name, escapeLabel(op.name), formatValue(value(op.stats)),
		))
	}

	return lines
}

func gaugeFamily(
	name, help string,
	operations []namedStats,
	value func(operationStats) float64,
) []string {
	lines := []string{
		fmt.Sprintf("# HELP %s %s\n", name, help),
		fmt.Sprintf("# TYPE %s gauge\n", name),
	}

	for _, op := range operations {
		lines = append(lines, fmt.Sprintf(
			"%s{operation=\"%s\"} %s\n",
			name, escapeLabel(op.name), formatValue(value(op.stats)),
		))
	}

	return lines
}

func failureFamily(operations []namedStats) []string {
	lines := []string{
		"# HELP oci_call_failures Calls that ended in failure, by final outcome.\n",
		"# TYPE oci_call_failures counter\n",
	}

	for _, op := range operations {
		label := escapeLabel(op.name)
		for _, outcome := range []struct {
			name  string
			count uint64
		}{
			{retry.OutcomeTerminal.String(), op.stats.terminal},
			{retry.OutcomeExhausted.String(), op.stats.exhausted},
			{retry.OutcomeCanceled.String(), op.stats.canceled},
		} {
			lines = append(lines, fmt.Sprintf(
				"oci_call_failures_total{operation=\"%s\",outcome=\"%s\"} %d\n",
				label, outcome.name, outcome.count,
			))
		}
	}

	return lines
}

func formatValue(value float64) string {
	if value == math.Trunc(value) {
		return fmt.Sprintf("%.0f", value)
	}

	return fmt.Sprintf("%.3f", value)
}

func escapeLabel(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

	return replacer.Replace(value)
}
