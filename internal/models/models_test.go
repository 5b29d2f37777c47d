package models

import "testing"

func TestParseSignalType_LegacyAliases(t *testing.T) {
	cases := map[string]SignalType{
		"panic":         SignalPanic,
		"SOS":           SignalPanic,
		" manual ":      SignalUserReport,
		"motion":        SignalSensorDetection,
		"fall_detected": SignalFall,
		"smoke":         SignalFire,
		"evacuation":    SignalEvacuation,
	}
	for in, want := range cases {
		got, err := ParseSignalType(in)
		if err != nil {
			t.Errorf("ParseSignalType(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseSignalType(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseSignalType("doorbell"); err == nil {
		t.Error("expected error for unknown signal type")
	}
}

func TestMaxPriority_NeverDowngrades(t *testing.T) {
	if got := MaxPriority(PriorityHigh, PriorityLow); got != PriorityHigh {
		t.Errorf("expected HIGH, got %s", got)
	}
	if got := MaxPriority(PriorityMedium, PriorityCritical); got != PriorityCritical {
		t.Errorf("expected CRITICAL, got %s", got)
	}
}

func TestParsePriority(t *testing.T) {
	if p, err := ParsePriority("critical"); err != nil || p != PriorityCritical {
		t.Errorf("expected CRITICAL, got %s (%v)", p, err)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("expected error for unknown priority")
	}
}

func TestSignalDefaults(t *testing.T) {
	if SignalPanic.DefaultPriority() != PriorityCritical {
		t.Errorf("panic should default to CRITICAL")
	}
	if !SignalEvacuation.SystemWide() || SignalFire.SystemWide() {
		t.Errorf("only evacuation is system-wide")
	}
}
