// Package rul implements the remaining-useful-life projection model: a
// parabolic baseline decay, perturbed by degradation events and bounded
// repair recoveries, sampled at a fixed time step.
package rul

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

const (
	// MaxHealth is the health of a new machine
	MaxHealth = 100.0

	// DefaultStep is the sampling interval in hours
	DefaultStep = 0.1

	// DefaultMarkerTolerance is the maximum distance in hours between a
	// requested time and the series sample it is matched to. Ceiling lookups
	// and marker placement both depend on it.
	DefaultMarkerTolerance = 0.05

	// RepairLabel labels every repair marker
	RepairLabel = "Repair Point"

	// MaxSamples bounds lifetime/step, the number of intervals a single
	// run may sample. At the default step it allows 100000 hours.
	MaxSamples = 1_000_000
)

// Option tunes a projection run
type Option func(*params)

type params struct {
	step      float64
	tolerance float64
}

// WithStep overrides the sampling step (hours)
func WithStep(step float64) Option {
	return func(p *params) { p.step = step }
}

// WithMarkerTolerance overrides the sample matching tolerance (hours)
func WithMarkerTolerance(tolerance float64) Option {
	return func(p *params) { p.tolerance = tolerance }
}

// Project computes the projected health series for a machine with the given
// nominal lifetime and event history. Events may be supplied in any order.
func Project(lifetime float64, events []Event, opts ...Option) (*Projection, error) {
	cfg := params{step: DefaultStep, tolerance: DefaultMarkerTolerance}
	for _, opt := range opts {
		opt(&cfg)
	}

	if !isFinite(lifetime) || lifetime <= 0 {
		return nil, ErrInvalidLifetime
	}
	if !isFinite(cfg.step) || cfg.step <= 0 {
		return nil, ErrInvalidStep
	}
	if !withinSampleLimit(lifetime, cfg.step) {
		return nil, fmt.Errorf("%w: %.6g hours at step %.6g", ErrTooManySamples, lifetime, cfg.step)
	}
	if err := ValidateEvents(events); err != nil {
		return nil, err
	}

	sorted := sortedEvents(events)
	g := newGrid(lifetime, cfg.step)
	baseRate := MaxHealth / (lifetime * lifetime)

	p := &Projection{
		Lifetime: lifetime,
		Step:     cfg.step,
		Series:   make([]HealthSample, 0, g.n+1),
		Baseline: make([]HealthSample, 0, g.n+1),
	}

	for i := 0; i <= g.n; i++ {
		t := g.at(i)
		baseline := baselineHealth(lifetime, t)
		p.Baseline = append(p.Baseline, HealthSample{Time: t, Health: clamp(baseline)})

		// Concurrent active events compound on the rate constant.
		rate := baseRate
		for _, ev := range sorted {
			if ev.activeAt(t) {
				rate *= SeverityFactor(ev.Severity)
			}
		}

		health := baseline
		for _, ev := range sorted {
			if ev.activeAt(t) {
				dt := t - ev.Time
				health = math.Max(0, health-rate*dt*dt)
			}
		}

		for _, ev := range sorted {
			if !ev.Repaired() || *ev.RepairTime > t {
				continue
			}

			// Recovery never exceeds the health held when the event started.
			ceiling := MaxHealth
			if s, ok := nearestSample(p.Series, ev.Time, cfg.tolerance); ok {
				ceiling = s.Health
			}
			target := math.Min(ceiling, baseline)
			health = math.Min(health+(target-health)*ev.RepairEffectiveness, target)

			if t > *ev.RepairTime {
				residual := rate * (1 - ev.RepairEffectiveness)
				dt := t - *ev.RepairTime
				health = math.Max(0, health-residual*dt*dt)
			}
		}

		p.Series = append(p.Series, HealthSample{Time: t, Health: clamp(health)})
	}

	p.EventMarkers, p.RepairMarkers = placeMarkers(p.Series, sorted, lifetime, cfg.tolerance)
	return p, nil
}

// Baseline yields the undisturbed health curve. The sequence is finite and
// may be ranged over any number of times. Input that Project would reject
// (a non-positive lifetime or step, or more than MaxSamples intervals)
// yields no samples.
func Baseline(lifetime, step float64) iter.Seq[HealthSample] {
	return func(yield func(HealthSample) bool) {
		if !isFinite(lifetime) || lifetime <= 0 || !isFinite(step) || step <= 0 {
			return
		}
		if !withinSampleLimit(lifetime, step) {
			return
		}
		g := newGrid(lifetime, step)
		for i := 0; i <= g.n; i++ {
			t := g.at(i)
			if !yield(HealthSample{Time: t, Health: clamp(baselineHealth(lifetime, t))}) {
				return
			}
		}
	}
}

// baselineHealth is 100 - (100/L^2) * t^2, written so that t == L yields exactly 0.
func baselineHealth(lifetime, t float64) float64 {
	r := t / lifetime
	return MaxHealth * (1 - r*r)
}

func placeMarkers(series []HealthSample, events []Event, lifetime, tolerance float64) ([]Marker, []Marker) {
	eventMarkers := []Marker{}
	repairMarkers := []Marker{}

	for _, ev := range events {
		if ev.Time > lifetime {
			continue
		}
		if s, ok := nearestSample(series, ev.Time, tolerance); ok {
			eventMarkers = append(eventMarkers, Marker{Time: s.Time, Health: s.Health, Label: ev.Name})
		}
		if !ev.Repaired() || *ev.RepairTime > lifetime {
			continue
		}
		if s, ok := nearestSample(series, *ev.RepairTime, tolerance); ok {
			repairMarkers = append(repairMarkers, Marker{Time: s.Time, Health: s.Health, Label: RepairLabel})
		}
	}

	return eventMarkers, repairMarkers
}

// nearestSample finds the sample closest to t, provided it lies within tolerance.
// series must be ordered by time.
func nearestSample(series []HealthSample, t, tolerance float64) (HealthSample, bool) {
	if len(series) == 0 {
		return HealthSample{}, false
	}

	idx := sort.Search(len(series), func(i int) bool { return series[i].Time >= t })

	best := -1
	bestDist := math.Inf(1)
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(series) {
			continue
		}
		if d := math.Abs(series[i].Time - t); d < bestDist {
			best, bestDist = i, d
		}
	}

	// Absorb representation error of decimal sample times.
	if best < 0 || bestDist > tolerance+1e-9 {
		return HealthSample{}, false
	}
	return series[best], true
}

func sortedEvents(events []Event) []Event {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		if c := cmp.Compare(repairOrInf(a), repairOrInf(b)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Severity, b.Severity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RepairEffectiveness, b.RepairEffectiveness); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}

func repairOrInf(e Event) float64 {
	if !e.Repaired() {
		return math.Inf(1)
	}
	return *e.RepairTime
}

// withinSampleLimit is checked on the float ratio, before any int conversion
func withinSampleLimit(lifetime, step float64) bool {
	return lifetime/step <= MaxSamples
}

// grid enumerates sample times 0, step, 2*step, ... up to the lifetime.
type grid struct {
	step     float64
	n        int
	decimals int
}

func newGrid(lifetime, step float64) grid {
	return grid{
		step:     step,
		n:        int(math.Floor(lifetime/step + 1e-9)),
		decimals: decimalPlaces(step),
	}
}

func (g grid) at(i int) float64 {
	return roundTo(float64(i)*g.step, g.decimals)
}

// Decimals returns the number of fractional digits sample times carry for step
func Decimals(step float64) int {
	return decimalPlaces(step)
}

// decimalPlaces returns how many fractional digits the shortest decimal
// representation of step needs, capped at 9.
func decimalPlaces(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return min(len(s)-dot-1, 9)
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}

func clamp(h float64) float64 {
	return math.Max(0, math.Min(MaxHealth, h))
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
