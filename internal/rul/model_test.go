package rul

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

const eps = 1e-9

func hours(h float64) *float64 { return &h }

func sampleAt(t *testing.T, series []HealthSample, at float64) HealthSample {
	t.Helper()
	s, ok := nearestSample(series, at, DefaultMarkerTolerance)
	if !ok {
		t.Fatalf("no sample at t=%.2f", at)
	}
	return s
}

func mustProject(t *testing.T, lifetime float64, events []Event, opts ...Option) *Projection {
	t.Helper()
	p, err := Project(lifetime, events, opts...)
	if err != nil {
		t.Fatalf("projection failed: %v", err)
	}
	return p
}

func TestProject_NoEventsMatchesBaseline(t *testing.T) {
	for _, lifetime := range []float64{1, 12, 100, 2500.5} {
		p := mustProject(t, lifetime, nil)

		if !reflect.DeepEqual(p.Series, p.Baseline) {
			t.Fatalf("L=%v: expected series to equal baseline", lifetime)
		}

		a := 100 / (lifetime * lifetime)
		for _, s := range p.Baseline {
			expected := math.Max(0, math.Min(100, 100-a*s.Time*s.Time))
			if math.Abs(s.Health-expected) > 1e-6 {
				t.Fatalf("L=%v t=%.1f: expected %.6f, got %.6f", lifetime, s.Time, expected, s.Health)
			}
		}

		if len(p.EventMarkers) != 0 || len(p.RepairMarkers) != 0 {
			t.Errorf("L=%v: expected no markers", lifetime)
		}
	}
}

func TestProject_SampleGrid(t *testing.T) {
	p := mustProject(t, 12, nil)

	if len(p.Series) != 121 {
		t.Fatalf("expected 121 samples, got %d", len(p.Series))
	}
	if p.Series[0].Time != 0 || p.Series[0].Health != 100 {
		t.Errorf("expected first sample (0, 100), got %+v", p.Series[0])
	}
	last := p.Series[len(p.Series)-1]
	if last.Time != 12 || last.Health != 0 {
		t.Errorf("expected last sample (12, 0), got %+v", last)
	}
	if p.Series[3].Time != 0.3 {
		t.Errorf("expected sample time 0.3, got %v", p.Series[3].Time)
	}
}

func TestProject_ConcreteBaseline(t *testing.T) {
	p := mustProject(t, 12, nil)

	s := sampleAt(t, p.Series, 6)
	if math.Abs(s.Health-75) > eps {
		t.Errorf("expected health 75 at t=6, got %.6f", s.Health)
	}
}

func TestProject_SingleUnrepairedEvent(t *testing.T) {
	events := []Event{{Name: "overheat", Time: 10, Severity: 5}}
	p := mustProject(t, 100, events)

	onset := sampleAt(t, p.Series, 10)
	base := sampleAt(t, p.Baseline, 10)
	if math.Abs(onset.Health-base.Health) > eps {
		t.Errorf("expected onset health %.4f to equal baseline, got %.4f", base.Health, onset.Health)
	}

	// rate = 0.01 * 1.5; loss at t=20 is 0.015 * 10^2
	at20 := sampleAt(t, p.Series, 20)
	if math.Abs(at20.Health-94.5) > 1e-6 {
		t.Errorf("expected health 94.5 at t=20, got %.6f", at20.Health)
	}

	prevGap := 0.0
	for i, s := range p.Series {
		if s.Time <= 10 {
			continue
		}
		gap := p.Baseline[i].Health - s.Health
		if s.Health > 0 && gap <= prevGap {
			t.Fatalf("expected widening gap after onset at t=%.1f (gap %.6f, previous %.6f)", s.Time, gap, prevGap)
		}
		prevGap = gap
	}
}

func TestProject_RepairedEvent(t *testing.T) {
	events := []Event{{
		Name:                "spindle crack",
		Time:                10,
		Severity:            10,
		RepairTime:          hours(20),
		RepairEffectiveness: 0.8,
	}}
	p := mustProject(t, 100, events)

	ceiling := sampleAt(t, p.Series, 10).Health
	before := sampleAt(t, p.Series, 19.9).Health
	atRepair := sampleAt(t, p.Series, 20).Health
	baseAtRepair := sampleAt(t, p.Baseline, 20).Health

	if atRepair > ceiling+eps {
		t.Errorf("repaired health %.4f exceeds event-start ceiling %.4f", atRepair, ceiling)
	}
	if atRepair > baseAtRepair+eps {
		t.Errorf("repaired health %.4f exceeds baseline %.4f", atRepair, baseAtRepair)
	}
	if atRepair <= before {
		t.Errorf("expected recovery at repair: before %.4f, after %.4f", before, atRepair)
	}

	// Residual decay is 20% of the base rate: 91 - 0.01*0.2*10^2
	at30 := sampleAt(t, p.Series, 30).Health
	if math.Abs(at30-90.8) > 1e-6 {
		t.Errorf("expected dampened health 90.8 at t=30, got %.6f", at30)
	}

	if len(p.EventMarkers) != 1 || p.EventMarkers[0].Label != "spindle crack" {
		t.Fatalf("unexpected event markers: %+v", p.EventMarkers)
	}
	if len(p.RepairMarkers) != 1 || p.RepairMarkers[0].Label != RepairLabel || p.RepairMarkers[0].Time != 20 {
		t.Fatalf("unexpected repair markers: %+v", p.RepairMarkers)
	}
}

func TestProject_RepairBoundedByCeiling(t *testing.T) {
	// The second event starts while the first is active, so its ceiling is
	// lower than the baseline by the time it is repaired.
	events := []Event{
		{Name: "a", Time: 5, Severity: 9, RepairTime: hours(30), RepairEffectiveness: 1},
		{Name: "b", Time: 25, Severity: 3, RepairTime: hours(32), RepairEffectiveness: 1},
	}
	p := mustProject(t, 100, events)

	ceilingB := sampleAt(t, p.Series, 25).Health
	for _, s := range p.Series {
		if s.Time < 32 {
			continue
		}
		if s.Health > ceilingB+eps {
			t.Fatalf("health %.4f at t=%.1f exceeds ceiling %.4f", s.Health, s.Time, ceilingB)
		}
	}
}

func TestProject_EventBeyondHorizon(t *testing.T) {
	events := []Event{{Name: "late", Time: 150, Severity: 7, RepairTime: hours(160), RepairEffectiveness: 0.5}}
	p := mustProject(t, 100, events)

	if !reflect.DeepEqual(p.Series, p.Baseline) {
		t.Error("expected series to equal baseline")
	}
	if len(p.EventMarkers) != 0 || len(p.RepairMarkers) != 0 {
		t.Errorf("expected no markers, got %d events, %d repairs", len(p.EventMarkers), len(p.RepairMarkers))
	}
}

func TestProject_ClampInvariant(t *testing.T) {
	events := []Event{
		{Name: "a", Time: 1, Severity: 10},
		{Name: "b", Time: 2, Severity: 10},
		{Name: "c", Time: 3, Severity: 9, RepairTime: hours(4), RepairEffectiveness: 0.1},
	}
	p := mustProject(t, 12, events)

	for _, s := range p.Series {
		if s.Health < 0 || s.Health > 100 {
			t.Fatalf("health %.4f out of range at t=%.1f", s.Health, s.Time)
		}
	}
	if p.Series[len(p.Series)-1].Health != 0 {
		t.Errorf("expected heavily damaged machine to reach 0")
	}
}

func TestProject_Idempotent(t *testing.T) {
	events := []Event{
		{Name: "a", Time: 3, Severity: 4, RepairTime: hours(6), RepairEffectiveness: 0.5},
		{Name: "b", Time: 7, Severity: 8},
	}

	first := mustProject(t, 24, events)
	second := mustProject(t, 24, events)

	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical projections for identical inputs")
	}
}

func TestProject_OrderIndependent(t *testing.T) {
	a := Event{Name: "a", Time: 3, Severity: 4, RepairTime: hours(6), RepairEffectiveness: 0.5}
	b := Event{Name: "b", Time: 7, Severity: 8, RepairTime: hours(9), RepairEffectiveness: 0.9}
	c := Event{Name: "c", Time: 1, Severity: 2}

	sorted := mustProject(t, 24, []Event{c, a, b})
	shuffled := mustProject(t, 24, []Event{b, c, a})

	if !reflect.DeepEqual(sorted, shuffled) {
		t.Error("expected input order not to affect the projection")
	}
}

func TestProject_SeverityOrdering(t *testing.T) {
	for s1 := 1; s1 < 10; s1++ {
		s2 := s1 + 1
		low := mustProject(t, 50, []Event{{Name: "e", Time: 5, Severity: s1}})
		high := mustProject(t, 50, []Event{{Name: "e", Time: 5, Severity: s2}})

		for i := range low.Series {
			if high.Series[i].Health > low.Series[i].Health+eps {
				t.Fatalf("severity %d healthier than %d at t=%.1f: %.4f > %.4f",
					s2, s1, low.Series[i].Time, high.Series[i].Health, low.Series[i].Health)
			}
		}
	}
}

func TestProject_CustomStep(t *testing.T) {
	p := mustProject(t, 10, []Event{{Name: "e", Time: 2.5, Severity: 5}}, WithStep(0.25))

	if len(p.Series) != 41 {
		t.Fatalf("expected 41 samples, got %d", len(p.Series))
	}
	if p.Series[1].Time != 0.25 {
		t.Errorf("expected second sample at 0.25, got %v", p.Series[1].Time)
	}
	if len(p.EventMarkers) != 1 || p.EventMarkers[0].Time != 2.5 {
		t.Errorf("unexpected markers: %+v", p.EventMarkers)
	}
}

func TestProject_MarkerTolerance(t *testing.T) {
	events := []Event{{Name: "off-grid", Time: 5.03, Severity: 2}}

	p := mustProject(t, 10, events)
	if len(p.EventMarkers) != 1 || p.EventMarkers[0].Time != 5.0 {
		t.Fatalf("expected marker snapped to 5.0, got %+v", p.EventMarkers)
	}

	p = mustProject(t, 10, events, WithStep(1), WithMarkerTolerance(0.01))
	if len(p.EventMarkers) != 0 {
		t.Errorf("expected no marker outside tolerance, got %+v", p.EventMarkers)
	}
}

func TestProject_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		lifetime float64
		events   []Event
		opts     []Option
		target   error
	}{
		{name: "zero lifetime", lifetime: 0, target: ErrInvalidLifetime},
		{name: "negative lifetime", lifetime: -5, target: ErrInvalidLifetime},
		{name: "NaN lifetime", lifetime: math.NaN(), target: ErrInvalidLifetime},
		{name: "zero step", lifetime: 10, opts: []Option{WithStep(0)}, target: ErrInvalidStep},
		{name: "lifetime overflows sample count", lifetime: 1e300, target: ErrTooManySamples},
		{name: "lifetime just over sample limit", lifetime: MaxSamples*DefaultStep + 1, target: ErrTooManySamples},
		{name: "step too fine for lifetime", lifetime: 10, opts: []Option{WithStep(1e-6)}, target: ErrTooManySamples},
		{
			name:     "severity too high",
			lifetime: 10,
			events:   []Event{{Time: 1, Severity: 11}},
			target:   ErrMalformedEvent,
		},
		{
			name:     "severity zero",
			lifetime: 10,
			events:   []Event{{Time: 1, Severity: 0}},
			target:   ErrMalformedEvent,
		},
		{
			name:     "repair before event",
			lifetime: 10,
			events:   []Event{{Time: 5, Severity: 3, RepairTime: hours(4), RepairEffectiveness: 0.5}},
			target:   ErrMalformedEvent,
		},
		{
			name:     "repair at event time",
			lifetime: 10,
			events:   []Event{{Time: 5, Severity: 3, RepairTime: hours(5), RepairEffectiveness: 0.5}},
			target:   ErrMalformedEvent,
		},
		{
			name:     "negative time",
			lifetime: 10,
			events:   []Event{{Time: -1, Severity: 3}},
			target:   ErrMalformedEvent,
		},
		{
			name:     "effectiveness above one",
			lifetime: 10,
			events:   []Event{{Time: 1, Severity: 3, RepairTime: hours(2), RepairEffectiveness: 1.5}},
			target:   ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Project(tt.lifetime, tt.events, tt.opts...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if p != nil {
				t.Error("expected no partial projection")
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestProject_EventErrorDetails(t *testing.T) {
	_, err := Project(10, []Event{
		{Name: "ok", Time: 1, Severity: 3},
		{Name: "bad", Time: 2, Severity: 12},
	})

	var evErr *EventError
	if !errors.As(err, &evErr) {
		t.Fatalf("expected *EventError, got %T", err)
	}
	if evErr.Index != 1 || evErr.Name != "bad" {
		t.Errorf("expected index 1 named bad, got %d %q", evErr.Index, evErr.Name)
	}
}

func TestBaseline_Restartable(t *testing.T) {
	seq := Baseline(12, DefaultStep)

	var first, second []HealthSample
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}

	if len(first) != 121 {
		t.Fatalf("expected 121 samples, got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected the sequence to restart identically")
	}

	p := mustProject(t, 12, nil)
	if !reflect.DeepEqual(first, p.Baseline) {
		t.Error("expected lazy baseline to match projection baseline")
	}
}

func TestBaseline_EarlyStopAndInvalid(t *testing.T) {
	count := 0
	for range Baseline(100, DefaultStep) {
		count++
		if count == 5 {
			break
		}
	}
	if count != 5 {
		t.Errorf("expected early stop after 5, got %d", count)
	}

	for range Baseline(-1, DefaultStep) {
		t.Fatal("expected empty sequence for invalid lifetime")
	}
	for range Baseline(1e300, DefaultStep) {
		t.Fatal("expected empty sequence beyond the sample limit")
	}
}

func TestProject_AtSampleLimit(t *testing.T) {
	p, err := Project(MaxSamples*DefaultStep, nil)
	if err != nil {
		t.Fatalf("expected the limit itself to be accepted, got %v", err)
	}
	if len(p.Series) != MaxSamples+1 {
		t.Errorf("expected %d samples, got %d", MaxSamples+1, len(p.Series))
	}
}

func TestNearestSample(t *testing.T) {
	series := []HealthSample{{0, 100}, {0.1, 99}, {0.2, 98}}

	tests := []struct {
		at       float64
		expected float64
		found    bool
	}{
		{0, 100, true},
		{0.14, 99, true},
		{0.16, 98, true},
		{0.26, 0, false},
		{-0.1, 0, false},
	}

	for _, tt := range tests {
		s, ok := nearestSample(series, tt.at, DefaultMarkerTolerance)
		if ok != tt.found {
			t.Errorf("at %.2f: expected found=%v, got %v", tt.at, tt.found, ok)
			continue
		}
		if ok && s.Health != tt.expected {
			t.Errorf("at %.2f: expected health %.0f, got %.0f", tt.at, tt.expected, s.Health)
		}
	}
}
