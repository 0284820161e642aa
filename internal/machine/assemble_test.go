package machine

import (
	"math"
	"testing"
	"time"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrFloat(f float64) *float64     { return &f }

func TestAssemble(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Machine{ID: "m1", CreateDate: created, LifeTime: 1000}

	records := []EventRecord{
		{
			Timestamp:           created.Add(10 * time.Hour),
			Severity:            5,
			RepairDate:          ptrTime(created.Add(20 * time.Hour)),
			RepairEffectiveness: ptrFloat(0.8),
			EventName:           "Overheat",
		},
		{
			Timestamp: created.Add(90 * time.Minute),
			Severity:  2,
		},
	}

	events, issues := Assemble(m, records)
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.Time != 10 || first.Severity != 5 || first.Name != "Overheat" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.RepairTime == nil || *first.RepairTime != 20 {
		t.Errorf("expected repair at 20h, got %v", first.RepairTime)
	}
	if first.RepairEffectiveness != 0.8 {
		t.Errorf("expected effectiveness 0.8, got %v", first.RepairEffectiveness)
	}

	second := events[1]
	if math.Abs(second.Time-1.5) > 1e-9 {
		t.Errorf("expected 1.5h, got %v", second.Time)
	}
	if second.Name != DefaultEventName {
		t.Errorf("expected default name, got %q", second.Name)
	}
	if second.RepairEffectiveness != DefaultRepairEffectiveness {
		t.Errorf("expected default effectiveness, got %v", second.RepairEffectiveness)
	}
	if second.Repaired() {
		t.Error("expected no repair")
	}
}

func TestAssemble_Hardening(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := Machine{ID: "m1", CreateDate: created, LifeTime: 1000}

	tests := []struct {
		name          string
		record        EventRecord
		expectDropped bool
		check         func(t *testing.T, severity int, eff float64, repaired bool)
	}{
		{
			name:   "severity above range",
			record: EventRecord{Timestamp: created.Add(time.Hour), Severity: 15},
			check: func(t *testing.T, severity int, _ float64, _ bool) {
				if severity != 10 {
					t.Errorf("expected severity 10, got %d", severity)
				}
			},
		},
		{
			name:   "severity below range",
			record: EventRecord{Timestamp: created.Add(time.Hour), Severity: 0},
			check: func(t *testing.T, severity int, _ float64, _ bool) {
				if severity != 1 {
					t.Errorf("expected severity 1, got %d", severity)
				}
			},
		},
		{
			name: "effectiveness above one",
			record: EventRecord{
				Timestamp:           created.Add(time.Hour),
				Severity:            3,
				RepairDate:          ptrTime(created.Add(2 * time.Hour)),
				RepairEffectiveness: ptrFloat(1.7),
			},
			check: func(t *testing.T, _ int, eff float64, repaired bool) {
				if eff != 1 || !repaired {
					t.Errorf("expected clamped effectiveness 1 with repair, got %v (%v)", eff, repaired)
				}
			},
		},
		{
			name: "repair before event",
			record: EventRecord{
				Timestamp:  created.Add(5 * time.Hour),
				Severity:   3,
				RepairDate: ptrTime(created.Add(4 * time.Hour)),
			},
			check: func(t *testing.T, _ int, _ float64, repaired bool) {
				if repaired {
					t.Error("expected inverted repair to be ignored")
				}
			},
		},
		{
			name:          "event before creation",
			record:        EventRecord{Timestamp: created.Add(-time.Hour), Severity: 3},
			expectDropped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, issues := Assemble(m, []EventRecord{tt.record})

			if len(issues) != 1 {
				t.Fatalf("expected 1 issue, got %v", issues)
			}
			if issues[0].Index != 0 {
				t.Errorf("expected issue index 0, got %d", issues[0].Index)
			}

			if tt.expectDropped {
				if len(events) != 0 {
					t.Errorf("expected event to be dropped, got %+v", events)
				}
				return
			}

			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			ev := events[0]
			tt.check(t, ev.Severity, ev.RepairEffectiveness, ev.Repaired())
		})
	}
}

func TestAssemble_ExplicitZeroEffectiveness(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events, _ := Assemble(Machine{CreateDate: created, LifeTime: 10}, []EventRecord{{
		Timestamp:           created.Add(time.Hour),
		Severity:            3,
		RepairDate:          ptrTime(created.Add(2 * time.Hour)),
		RepairEffectiveness: ptrFloat(0),
	}})

	if events[0].RepairEffectiveness != 0 {
		t.Errorf("expected explicit zero to be kept, got %v", events[0].RepairEffectiveness)
	}
}

func TestEventName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Overheat", "Overheat"},
		{"  padded  ", "padded"},
		{"", DefaultEventName},
		{"   ", DefaultEventName},
		// decomposed e + combining acute accent
		{"Re\u0301paration", "R\u00e9paration"},
	}

	for _, tt := range tests {
		if got := EventName(tt.input); got != tt.expected {
			t.Errorf("EventName(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
