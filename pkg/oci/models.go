package oci

import (
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
)

// AlarmSummary is the list view of a Monitoring alarm.
type AlarmSummary struct {
	ID                  string              `json:"id"`
	DisplayName         string              `json:"displayName"`
	CompartmentID       string              `json:"compartmentId"`
	MetricCompartmentID string              `json:"metricCompartmentId"`
	Namespace           string              `json:"namespace"`
	Query               string              `json:"query"`
	Severity            AlarmSeverity       `json:"severity"`
	Destinations        []string            `json:"destinations"`
	IsEnabled           bool                `json:"isEnabled"`
	LifecycleState      AlarmLifecycleState `json:"lifecycleState"`
}

// Alarm is the full representation of a Monitoring alarm.
type Alarm struct {
	AlarmSummary

	PendingDuration string    `json:"pendingDuration,omitempty"`
	Resolution      string    `json:"resolution,omitempty"`
	Body            string    `json:"body,omitempty"`
	TimeCreated     time.Time `json:"timeCreated"`
	TimeUpdated     time.Time `json:"timeUpdated"`
}

// CreatedAlarm is returned by CreateAlarm together with the token that deduplicated it.
type CreatedAlarm struct {
	Alarm        Alarm  `json:"alarm"`
	RetryToken   string `json:"retryToken"`
	ETag         string `json:"etag,omitempty"`
	OpcRequestID string `json:"opcRequestId,omitempty"`
}

// CreateAlarmInput carries the caller-facing fields of a create request.
type CreateAlarmInput struct {
	DisplayName         string
	CompartmentID       string
	MetricCompartmentID string
	Namespace           string
	Query               string
	Severity            AlarmSeverity
	Destinations        []string
	Enabled             bool
	PendingDuration     string
	Resolution          string
	Body                string
}

// ListAlarmsInput filters ListAlarms. A zero LifecycleState lists every state.
type ListAlarmsInput struct {
	CompartmentID  string
	DisplayName    string
	LifecycleState AlarmLifecycleState
	PageSize       int
}

func alarmSummaryFromSDK(summary monitoring.AlarmSummary) AlarmSummary {
	return AlarmSummary{
		ID:                  stringValue(summary.Id),
		DisplayName:         stringValue(summary.DisplayName),
		CompartmentID:       stringValue(summary.CompartmentId),
		MetricCompartmentID: stringValue(summary.MetricCompartmentId),
		Namespace:           stringValue(summary.Namespace),
		Query:               stringValue(summary.Query),
		Severity:            ParseAlarmSeverity(string(summary.Severity)),
		Destinations:        append([]string(nil), summary.Destinations...),
		IsEnabled:           boolValue(summary.IsEnabled),
		LifecycleState:      ParseAlarmLifecycleState(string(summary.LifecycleState)),
	}
}

func alarmFromSDK(alarm monitoring.Alarm) Alarm {
	return Alarm{
		AlarmSummary: AlarmSummary{
			ID:                  stringValue(alarm.Id),
			DisplayName:         stringValue(alarm.DisplayName),
			CompartmentID:       stringValue(alarm.CompartmentId),
			MetricCompartmentID: stringValue(alarm.MetricCompartmentId),
			Namespace:           stringValue(alarm.Namespace),
			Query:               stringValue(alarm.Query),
			Severity:            ParseAlarmSeverity(string(alarm.Severity)),
			Destinations:        append([]string(nil), alarm.Destinations...),
			IsEnabled:           boolValue(alarm.IsEnabled),
			LifecycleState:      ParseAlarmLifecycleState(string(alarm.LifecycleState)),
		},
		PendingDuration: stringValue(alarm.PendingDuration),
		Resolution:      stringValue(alarm.Resolution),
		Body:            stringValue(alarm.Body),
		TimeCreated:     sdkTimeValue(alarm.TimeCreated),
		TimeUpdated:     sdkTimeValue(alarm.TimeUpdated),
	}
}

func createAlarmDetails(input CreateAlarmInput, compartmentID string) monitoring.CreateAlarmDetails {
	metricCompartment := input.MetricCompartmentID
	if metricCompartment == "" {
		metricCompartment = compartmentID
	}

	var details monitoring.CreateAlarmDetails

	details.DisplayName = common.String(input.DisplayName)
	details.CompartmentId = common.String(compartmentID)
	details.MetricCompartmentId = common.String(metricCompartment)
	details.Namespace = common.String(input.Namespace)
	details.Query = common.String(input.Query)
	details.Severity = input.Severity.SDK()
	details.Destinations = append([]string(nil), input.Destinations...)
	details.IsEnabled = common.Bool(input.Enabled)
	details.PendingDuration = optionalString(input.PendingDuration)
	details.Resolution = optionalString(input.Resolution)
	details.Body = optionalString(input.Body)

	return details
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}

	return *ptr
}

func boolValue(ptr *bool) bool {
	return ptr != nil && *ptr
}

func sdkTimeValue(ptr *common.SDKTime) time.Time {
	if ptr == nil {
		return time.Time{}
	}

	return ptr.Time
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}

	return common.String(value)
}
