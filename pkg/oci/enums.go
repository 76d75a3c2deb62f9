package oci

import (
	"strings"

	"github.com/oracle/oci-go-sdk/v65/monitoring"
)

// openEnum keeps wire values the client does not recognise instead of collapsing them into a
// single sentinel. Known values are stored in their canonical spelling.
type openEnum[T ~string] struct {
	value T
	known bool
}

func parseOpenEnum[T ~string](raw string, values []T) openEnum[T] {
	trimmed := strings.TrimSpace(raw)

	for _, candidate := range values {
		if strings.EqualFold(string(candidate), trimmed) {
			return openEnum[T]{value: candidate, known: true}
		}
	}

	return openEnum[T]{value: T(raw), known: false}
}

// IsZero reports whether no value was set.
func (e openEnum[T]) IsZero() bool {
	return e.value == ""
}

// Unknown reports whether a value is set but not one the client recognises.
func (e openEnum[T]) Unknown() bool {
	return !e.known && e.value != ""
}

// Raw returns the value exactly as received for unknown values, or the canonical spelling.
func (e openEnum[T]) Raw() string {
	return string(e.value)
}

func (e openEnum[T]) String() string {
	if e.Unknown() {
		return "UNKNOWN(" + string(e.value) + ")"
	}

	return string(e.value)
}

// MarshalText writes the raw value so unknown values round-trip unchanged.
func (e openEnum[T]) MarshalText() ([]byte, error) {
	return []byte(e.value), nil
}

//nolint:gochecknoglobals // fixed enumerations.
var (
	alarmLifecycleStates = []monitoring.AlarmLifecycleStateEnum{
		monitoring.AlarmLifecycleStateActive,
		monitoring.AlarmLifecycleStateDeleting,
		monitoring.AlarmLifecycleStateDeleted,
	}
	alarmSeverities = []monitoring.AlarmSeverityEnum{
		monitoring.AlarmSeverityCritical,
		monitoring.AlarmSeverityError,
		monitoring.AlarmSeverityWarning,
		monitoring.AlarmSeverityInfo,
	}
)

// AlarmLifecycleState is the lifecycle state of an alarm. Values the client does not know are
// preserved and reported through Unknown.
type AlarmLifecycleState struct {
	openEnum[monitoring.AlarmLifecycleStateEnum]
}

// Known lifecycle states.
//
//nolint:gochecknoglobals // enumeration values.
var (
	AlarmLifecycleStateActive   = AlarmLifecycleState{openEnum[monitoring.AlarmLifecycleStateEnum]{monitoring.AlarmLifecycleStateActive, true}}
	AlarmLifecycleStateDeleting = AlarmLifecycleState{openEnum[monitoring.AlarmLifecycleStateEnum]{monitoring.AlarmLifecycleStateDeleting, true}}
	AlarmLifecycleStateDeleted  = AlarmLifecycleState{openEnum[monitoring.AlarmLifecycleStateEnum]{monitoring.AlarmLifecycleStateDeleted, true}}
)

// ParseAlarmLifecycleState maps a wire value, matching known states case-insensitively.
func ParseAlarmLifecycleState(raw string) AlarmLifecycleState {
	return AlarmLifecycleState{parseOpenEnum(raw, alarmLifecycleStates)}
}

// SDK returns the SDK enum value, which is the raw string for unknown states.
func (s AlarmLifecycleState) SDK() monitoring.AlarmLifecycleStateEnum {
	return s.value
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AlarmLifecycleState) UnmarshalText(text []byte) error {
	*s = ParseAlarmLifecycleState(string(text))

	return nil
}

// AlarmSeverity is the severity attached to an alarm's notifications.
type AlarmSeverity struct {
	openEnum[monitoring.AlarmSeverityEnum]
}

// Known severities.
//
//nolint:gochecknoglobals // enumeration values.
var (
	AlarmSeverityCritical = AlarmSeverity{openEnum[monitoring.AlarmSeverityEnum]{monitoring.AlarmSeverityCritical, true}}
	AlarmSeverityError    = AlarmSeverity{openEnum[monitoring.AlarmSeverityEnum]{monitoring.AlarmSeverityError, true}}
	AlarmSeverityWarning  = AlarmSeverity{openEnum[monitoring.AlarmSeverityEnum]{monitoring.AlarmSeverityWarning, true}}
	AlarmSeverityInfo     = AlarmSeverity{openEnum[monitoring.AlarmSeverityEnum]{monitoring.AlarmSeverityInfo, true}}
)

// ParseAlarmSeverity maps a wire value, matching known severities case-insensitively.
func ParseAlarmSeverity(raw string) AlarmSeverity {
	return AlarmSeverity{parseOpenEnum(raw, alarmSeverities)}
}

// SDK returns the SDK enum value, which is the raw string for unknown severities.
func (s AlarmSeverity) SDK() monitoring.AlarmSeverityEnum {
	return s.value
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *AlarmSeverity) UnmarshalText(text []byte) error {
	*s = ParseAlarmSeverity(string(text))

	return nil
}
