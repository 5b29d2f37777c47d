package models

import (
	"fmt"
	"strings"
)

type SignalType string

const (
	SignalUserReport      SignalType = "user_report"
	SignalSensorDetection SignalType = "sensor_detection"
	SignalPanic           SignalType = "panic"
	SignalFall            SignalType = "fall"
	SignalFire            SignalType = "fire"
	SignalMedical         SignalType = "medical"
	SignalEvacuation      SignalType = "evacuation"
)

// Deprecated names still sent by older clients and sensor firmware. They are
// mapped by ParseSignalType and never stored.
var legacySignalTypes = map[string]SignalType{
	"sos":           SignalPanic,
	"alarm_button":  SignalPanic,
	"manual":        SignalUserReport,
	"guard_report":  SignalUserReport,
	"report":        SignalUserReport,
	"sensor":        SignalSensorDetection,
	"motion":        SignalSensorDetection,
	"iot":           SignalSensorDetection,
	"fall_detected": SignalFall,
	"smoke":         SignalFire,
}

var signalDefaults = map[SignalType]Priority{
	SignalUserReport:      PriorityMedium,
	SignalSensorDetection: PriorityMedium,
	SignalPanic:           PriorityCritical,
	SignalFall:            PriorityHigh,
	SignalFire:            PriorityCritical,
	SignalMedical:         PriorityHigh,
	SignalEvacuation:      PriorityCritical,
}

func (t SignalType) Valid() bool {
	_, ok := signalDefaults[t]
	return ok
}

// DefaultPriority is the priority a signal of this type carries when the
// reporter does not supply one.
func (t SignalType) DefaultPriority() Priority {
	return signalDefaults[t]
}

// SystemWide reports whether the signal concerns the whole site rather than
// the beacon it was raised at.
func (t SignalType) SystemWide() bool {
	return t == SignalEvacuation
}

// ParseSignalType accepts canonical names and legacy aliases.
func ParseSignalType(s string) (SignalType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if t := SignalType(name); t.Valid() {
		return t, nil
	}
	if t, ok := legacySignalTypes[name]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown signal type %q", s)
}
