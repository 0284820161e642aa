package policy

import (
	"fmt"
)

// Engine classifies projected health against warning and critical thresholds
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates a new policy engine
func NewEngine(thresholds Thresholds) *Engine {
	return &Engine{thresholds: thresholds}
}

// Thresholds returns the thresholds the engine applies
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate classifies the current position and explains the outcome
func (e *Engine) Evaluate(in Input) *Assessment {
	result := &Assessment{
		Reasons: []string{},
	}

	if in.Current == nil {
		result.Status = StatusExpired
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"elapsed time %.1fh is past the projection horizon of %.1fh (nominal lifetime %.1fh)",
			in.ElapsedHours, in.Horizon, in.Lifetime))
		return result
	}

	health := in.Current.Health
	result.Health = health

	switch {
	case health <= e.thresholds.Critical:
		result.Status = StatusCritical
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"health %.1f%% at or below critical threshold %.0f%%", health, e.thresholds.Critical))
	case health <= e.thresholds.Warning:
		result.Status = StatusWarning
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"health %.1f%% at or below warning threshold %.0f%%", health, e.thresholds.Warning))
	default:
		result.Status = StatusHealthy
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"health %.1f%% above warning threshold %.0f%%", health, e.thresholds.Warning))
	}

	result.HoursToWarning = remaining(in.TimeToWarning, in.ElapsedHours)
	result.HoursToCritical = remaining(in.TimeToCritical, in.ElapsedHours)

	if result.HoursToWarning != nil {
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"warning threshold projected in %.1fh (at %.1fh)", *result.HoursToWarning, *in.TimeToWarning))
	}
	if result.HoursToCritical != nil {
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"critical threshold projected in %.1fh (at %.1fh)", *result.HoursToCritical, *in.TimeToCritical))
	} else if in.TimeToCritical == nil {
		result.Reasons = append(result.Reasons, "critical threshold not reached within the nominal lifetime")
	}

	return result
}

// remaining converts an absolute crossing time into hours from now
func remaining(crossing *float64, elapsed float64) *float64 {
	if crossing == nil || *crossing <= elapsed {
		return nil
	}
	h := *crossing - elapsed
	return &h
}
